package openapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

// uiCSP replaces the default Content-Security-Policy on the UI page so the
// Swagger UI bundle can load from its CDN.
const uiCSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com; " +
	"style-src 'self' 'unsafe-inline' https://unpkg.com; img-src 'self' data: https:; connect-src 'self'"

var uiTemplate = template.Must(template.New("ui").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
  <script>
    window.onload = function () {
      window.ui = SwaggerUIBundle({ url: {{.SpecURL}}, dom_id: "#swagger-ui" });
    };
  </script>
</body>
</html>
`))

// JSON encodes doc as indented JSON.
func JSON(doc *openapi3.T) ([]byte, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode openapi json: %w", err)
	}
	return b, nil
}

// YAML encodes doc as YAML.
func YAML(doc *openapi3.T) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode openapi yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode openapi yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// Register serves the UI at /<path>, the JSON document at /<path>-json and
// the YAML document at /<path>-yaml. The document is encoded once.
func Register(e *echo.Echo, doc *openapi3.T, path string) error {
	base := "/" + strings.Trim(path, "/")

	jsonDoc, err := JSON(doc)
	if err != nil {
		return err
	}
	yamlDoc, err := YAML(doc)
	if err != nil {
		return err
	}
	var page bytes.Buffer
	if err := uiTemplate.Execute(&page, map[string]string{
		"Title":   doc.Info.Title,
		"SpecURL": base + "-json",
	}); err != nil {
		return fmt.Errorf("render docs page: %w", err)
	}
	html := page.Bytes()

	e.GET(base, func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentSecurityPolicy, uiCSP)
		return c.HTMLBlob(http.StatusOK, html)
	})
	e.GET(base+"-json", func(c echo.Context) error {
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, jsonDoc)
	})
	e.GET(base+"-yaml", func(c echo.Context) error {
		return c.Blob(http.StatusOK, "application/yaml", yamlDoc)
	})
	return nil
}
