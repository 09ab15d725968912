package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/akave-ai/scaffold/internal/config"
	"github.com/akave-ai/scaffold/internal/router"
	"github.com/akave-ai/scaffold/internal/validation"
)

type cardsModule struct{}

func (cardsModule) Name() string { return "cards" }

func (cardsModule) Routes() []router.Route {
	noop := func(echo.Context) (any, error) { return nil, nil }
	return []router.Route{
		{Method: http.MethodGet, Path: "/", ExcludePrefix: true, Handler: noop, Summary: "Get Index", Tags: []string{"Index"}},
		{Method: http.MethodGet, Path: "/cards/:id", Version: "1", Handler: noop, Tags: []string{"Cards"}},
		{
			Method:  http.MethodPost,
			Path:    "/cards",
			Version: "1",
			Handler: noop,
			Tags:    []string{"Cards"},
			Body: validation.Shape("CreateCard",
				validation.Field{Name: "front", Type: validation.KindString, Required: true, Rules: "min=1,max=200"},
				validation.Field{Name: "age", Type: validation.KindInteger, Rules: "gte=0", Example: 30},
				validation.Field{Name: "email", Type: validation.KindString, Rules: "email"},
				validation.Field{Name: "tags", Type: validation.KindArray},
			),
		},
	}
}

func testDocument(t *testing.T) *openapi3.T {
	t.Helper()
	reg := router.NewRegistry()
	require.NoError(t, reg.Register(cardsModule{}))
	routes, err := reg.Routes("api")
	require.NoError(t, err)
	return Build(config.DocsConfig{Title: "Cards API", Version: "1.0", BasePath: "/"}, routes)
}

func TestBuild(t *testing.T) {
	doc := testDocument(t)

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.Equal(t, "Cards API", doc.Info.Title)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "/", doc.Servers[0].URL)
	require.Len(t, doc.Tags, 2)
	assert.Equal(t, "Index", doc.Tags[0].Name)
	assert.Equal(t, "Cards", doc.Tags[1].Name)
	require.Equal(t, 3, doc.Paths.Len())

	index := doc.Paths.Value("/").Get
	require.NotNil(t, index)
	assert.Equal(t, "Get Index", index.Summary)
	assert.NotNil(t, index.Responses.Status(http.StatusOK))
	assert.NotNil(t, index.Responses.Status(http.StatusInternalServerError))
	assert.Nil(t, index.Responses.Status(http.StatusBadRequest))

	get := doc.Paths.Value("/api/v1/cards/{id}").Get
	require.NotNil(t, get)
	assert.Equal(t, "cards_get_api_v1_cards_id", get.OperationID)
	require.Len(t, get.Parameters, 1)
	assert.Equal(t, "id", get.Parameters[0].Value.Name)
	assert.Equal(t, openapi3.ParameterInPath, get.Parameters[0].Value.In)
	assert.True(t, get.Parameters[0].Value.Required)
	assert.NotNil(t, get.Responses.Status(http.StatusBadRequest))

	post := doc.Paths.Value("/api/v1/cards").Post
	require.NotNil(t, post)
	assert.NotNil(t, post.Responses.Status(http.StatusCreated))
	require.NotNil(t, post.RequestBody)
	assert.True(t, post.RequestBody.Value.Required)
	assert.Equal(t, "#/components/schemas/CreateCard",
		post.RequestBody.Value.Content.Get(echo.MIMEApplicationJSON).Schema.Ref)

	body := doc.Components.Schemas["CreateCard"].Value
	require.NotNil(t, body)
	assert.Equal(t, []string{"front"}, body.Required)
	front := body.Properties["front"].Value
	assert.Equal(t, uint64(1), front.MinLength)
	require.NotNil(t, front.MaxLength)
	assert.Equal(t, uint64(200), *front.MaxLength)
	age := body.Properties["age"].Value
	assert.True(t, age.Type.Is(openapi3.TypeInteger))
	require.NotNil(t, age.Min)
	assert.Equal(t, 0.0, *age.Min)
	assert.Equal(t, 30, age.Example)
	assert.Equal(t, "email", body.Properties["email"].Value.Format)
	assert.NotNil(t, body.Properties["tags"].Value.Items)

	assert.Contains(t, doc.Components.Schemas, "SuccessEnvelope")
	assert.Contains(t, doc.Components.Schemas, "ErrorEnvelope")
}

func TestBuild_IsValidOpenAPI(t *testing.T) {
	doc := testDocument(t)
	require.NoError(t, Validate(context.Background(), doc))

	out, err := JSON(doc)
	require.NoError(t, err)
	loaded, err := openapi3.NewLoader().LoadFromData(out)
	require.NoError(t, err)
	require.NoError(t, loaded.Validate(context.Background()))
	assert.NotNil(t, loaded.Paths.Value("/api/v1/cards/{id}"))
	assert.Equal(t, "CreateCard",
		strings.TrimPrefix(loaded.Paths.Value("/api/v1/cards").Post.RequestBody.Value.
			Content.Get(echo.MIMEApplicationJSON).Schema.Ref, "#/components/schemas/"))
}

func TestValidate_RejectsIncompleteDocument(t *testing.T) {
	reg := router.NewRegistry()
	require.NoError(t, reg.Register(cardsModule{}))
	routes, err := reg.Routes("api")
	require.NoError(t, err)

	doc := Build(config.DocsConfig{Title: "Cards API"}, routes)
	err = Validate(context.Background(), doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestBuild_SkipsUndocumentedMethods(t *testing.T) {
	routes := []router.MountedRoute{{
		Route:    router.Route{Method: "PROPFIND", Path: "/dav"},
		Module:   "dav",
		FullPath: "/dav",
	}}
	doc := Build(config.DocsConfig{Title: "DAV", Version: "1"}, routes)
	assert.Equal(t, 0, doc.Paths.Len())
	assert.NoError(t, Validate(context.Background(), doc))
}

func TestFromValidation_Primitive(t *testing.T) {
	s := FromValidation(validation.Primitive(validation.KindString))
	assert.True(t, s.Type.Is(openapi3.TypeString))
	assert.Equal(t, openapi3.NewSchema(), FromValidation(nil))

	arr := FromValidation(validation.Primitive(validation.KindArray))
	assert.True(t, arr.Type.Is(openapi3.TypeArray))
	assert.NotNil(t, arr.Items)
}

func TestRegister(t *testing.T) {
	doc := testDocument(t)
	e := echo.New()
	require.NoError(t, Register(e, doc, "docs"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMETextHTML)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentSecurityPolicy), "https://unpkg.com")
	assert.Contains(t, rec.Body.String(), "swagger-ui")
	assert.Contains(t, rec.Body.String(), "docs-json")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs-json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var fromJSON map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fromJSON))
	assert.Equal(t, "3.0.3", fromJSON["openapi"])

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs-yaml", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &fromYAML))
	assert.Equal(t, "3.0.3", fromYAML["openapi"])
	paths, ok := fromYAML["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/v1/cards")
}
