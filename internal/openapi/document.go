// Package openapi builds an OpenAPI 3 document from the mounted routes and
// serves it with Swagger UI.
package openapi

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/akave-ai/scaffold/internal/config"
	"github.com/akave-ai/scaffold/internal/router"
	"github.com/akave-ai/scaffold/internal/validation"
)

const Version = "3.0.3"

const (
	successEnvelopeName = "SuccessEnvelope"
	errorEnvelopeName   = "ErrorEnvelope"
	schemaRefPrefix     = "#/components/schemas/"
)

var pathParam = regexp.MustCompile(`:([A-Za-z0-9_]+)`)

// documented lists the methods an OpenAPI path item can hold.
var documented = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// Build describes routes. Path parameters in echo form (:id) become
// OpenAPI templates ({id}). Routes on methods OpenAPI cannot express are
// left out.
func Build(docs config.DocsConfig, routes []router.MountedRoute) *openapi3.T {
	success := successEnvelopeSchema()
	failure := errorEnvelopeSchema()
	doc := &openapi3.T{
		OpenAPI: Version,
		Info: &openapi3.Info{
			Title:       docs.Title,
			Description: docs.Description,
			Version:     docs.Version,
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: openapi3.Schemas{
			successEnvelopeName: openapi3.NewSchemaRef("", success),
			errorEnvelopeName:   openapi3.NewSchemaRef("", failure),
		}},
	}
	if docs.BasePath != "" {
		doc.AddServer(&openapi3.Server{URL: docs.BasePath})
	}
	envelopes := envelopeRefs{
		success: openapi3.NewSchemaRef(schemaRefPrefix+successEnvelopeName, success),
		failure: openapi3.NewSchemaRef(schemaRefPrefix+errorEnvelopeName, failure),
	}

	for _, rt := range routes {
		if !documented[rt.Method] {
			continue
		}
		for _, t := range rt.Tags {
			if doc.Tags.Get(t) == nil {
				doc.Tags = append(doc.Tags, &openapi3.Tag{Name: t})
			}
		}

		path, params := templatePath(rt.FullPath)
		op := &openapi3.Operation{
			OperationID: operationID(rt),
			Summary:     rt.Summary,
			Description: rt.Description,
			Tags:        rt.Tags,
			Parameters:  params,
			Responses:   responses(rt, envelopes),
		}
		if rt.Body != nil {
			name := rt.Body.Name
			if name == "" {
				name = op.OperationID + "Body"
			}
			body := FromValidation(rt.Body)
			doc.Components.Schemas[name] = openapi3.NewSchemaRef("", body)
			op.RequestBody = &openapi3.RequestBodyRef{
				Value: openapi3.NewRequestBody().
					WithRequired(true).
					WithJSONSchemaRef(openapi3.NewSchemaRef(schemaRefPrefix+name, body)),
			}
		}
		doc.AddOperation(path, rt.Method, op)
	}
	return doc
}

// Validate checks doc against the OpenAPI 3 rules.
func Validate(ctx context.Context, doc *openapi3.T) error {
	if err := doc.Validate(ctx); err != nil {
		return fmt.Errorf("invalid openapi document: %w", err)
	}
	return nil
}

type envelopeRefs struct {
	success *openapi3.SchemaRef
	failure *openapi3.SchemaRef
}

func templatePath(p string) (string, openapi3.Parameters) {
	var params openapi3.Parameters
	for _, m := range pathParam.FindAllStringSubmatch(p, -1) {
		params = append(params, &openapi3.ParameterRef{
			Value: openapi3.NewPathParameter(m[1]).WithSchema(openapi3.NewStringSchema()),
		})
	}
	return pathParam.ReplaceAllString(p, "{$1}"), params
}

// operationID follows the Module_method_path convention, e.g.
// index_get_api_v1_cards_id.
func operationID(rt router.MountedRoute) string {
	clean := strings.NewReplacer("/", "_", ":", "", "{", "", "}", "", "-", "_").Replace(strings.Trim(rt.FullPath, "/"))
	id := rt.Module + "_" + strings.ToLower(rt.Method)
	if clean != "" {
		id += "_" + clean
	}
	return id
}

func responses(rt router.MountedRoute, env envelopeRefs) *openapi3.Responses {
	status := http.StatusOK
	if rt.Method == http.MethodPost {
		status = http.StatusCreated
	}
	out := openapi3.NewResponses(
		openapi3.WithStatus(status, jsonResponse("Successful response.", env.success)),
		openapi3.WithStatus(http.StatusInternalServerError, jsonResponse("Internal server error.", env.failure)),
	)
	if rt.Body != nil || strings.Contains(rt.FullPath, ":") {
		out.Set(strconv.Itoa(http.StatusBadRequest), jsonResponse("Validation failed.", env.failure))
	}
	return out
}

func jsonResponse(description string, schema *openapi3.SchemaRef) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: openapi3.NewResponse().WithDescription(description).WithJSONSchemaRef(schema),
	}
}

func successEnvelopeSchema() *openapi3.Schema {
	data := openapi3.NewSchema()
	data.Description = "Handler result."
	return openapi3.NewObjectSchema().
		WithProperty("data", data).
		WithRequired([]string{"data"})
}

func errorEnvelopeSchema() *openapi3.Schema {
	statusCode := openapi3.NewIntegerSchema()
	statusCode.Example = 400
	message := openapi3.NewStringSchema()
	message.Example = "Payload validation failed"
	path := openapi3.NewStringSchema()
	path.Example = "/api/v1/cards"
	success := openapi3.NewBoolSchema()
	success.Example = false

	details := openapi3.NewObjectSchema().
		WithProperty("statusCode", statusCode).
		WithProperty("message", message).
		WithProperty("path", path).
		WithProperty("timestamp", openapi3.NewDateTimeSchema()).
		WithRequired([]string{"statusCode", "message", "path", "timestamp"})
	return openapi3.NewObjectSchema().
		WithProperty("success", success).
		WithProperty("data", details).
		WithRequired([]string{"success", "data"})
}

// FromValidation converts a declared schema. Validator rules that have a
// JSON Schema counterpart (min, max, gte, lte, len, email, url, uuid) are
// carried over.
func FromValidation(s *validation.Schema) *openapi3.Schema {
	if s == nil {
		return openapi3.NewSchema()
	}
	if s.Kind != validation.KindShape {
		return kindSchema(s.Kind)
	}
	out := openapi3.NewObjectSchema()
	for _, f := range s.Fields {
		prop := kindSchema(f.Type)
		prop.Description = f.Description
		prop.Example = f.Example
		applyRules(prop, f.Rules)
		out.Properties[f.Name] = openapi3.NewSchemaRef("", prop)
		if f.Required {
			out.Required = append(out.Required, f.Name)
		}
	}
	return out
}

func kindSchema(k validation.Kind) *openapi3.Schema {
	switch k {
	case "":
		return openapi3.NewSchema()
	case validation.KindShape, validation.KindObject:
		return openapi3.NewObjectSchema()
	case validation.KindArray:
		return openapi3.NewArraySchema().WithItems(openapi3.NewSchema())
	default:
		return &openapi3.Schema{Type: &openapi3.Types{string(k)}}
	}
}

func applyRules(s *openapi3.Schema, rules string) {
	if rules == "" {
		return
	}
	for _, rule := range strings.Split(rules, ",") {
		name, param, _ := strings.Cut(strings.TrimSpace(rule), "=")
		switch name {
		case "email":
			s.Format = "email"
		case "url":
			s.Format = "uri"
		case "uuid", "uuid4":
			s.Format = "uuid"
		case "min", "gte":
			setBound(s, param, true)
		case "max", "lte":
			setBound(s, param, false)
		case "len":
			setBound(s, param, true)
			setBound(s, param, false)
		}
	}
}

// setBound applies a length bound to strings and a value bound otherwise.
func setBound(s *openapi3.Schema, param string, lower bool) {
	if s.Type.Is(openapi3.TypeString) {
		n, err := strconv.ParseUint(param, 10, 64)
		if err != nil {
			return
		}
		if lower {
			s.MinLength = n
		} else {
			s.MaxLength = &n
		}
		return
	}
	f, err := strconv.ParseFloat(param, 64)
	if err != nil {
		return
	}
	if lower {
		s.Min = &f
	} else {
		s.Max = &f
	}
}
