// Package validation implements the request pipes: the payload gate that
// checks bodies against a declared Schema, the integer transform for path
// parameters, and the echo.Validator used by handlers that bind structs.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	payloadFailedMessage = "Payload validation failed"

	// PayloadKey is the echo context key holding the validated body.
	PayloadKey = "validation.payload"
)

// Violation is one failed constraint. Violations are logged for operators
// and never sent to clients.
type Violation struct {
	Field      string
	Constraint string
	Value      any
}

type Violations []Violation

func (v Violations) Error() string {
	parts := make([]string, 0, len(v))
	for _, vi := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", vi.Field, vi.Constraint))
	}
	return "payload violations: " + strings.Join(parts, "; ")
}

// Gate validates payloads against declared schemas.
type Gate struct {
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewGate(logger zerolog.Logger) *Gate {
	return &Gate{
		validate: validator.New(),
		logger:   logger.With().Str("component", "ValidationGate").Logger(),
	}
}

// PayloadError is the error returned for any rejected payload. The cause
// is kept as the internal error so it reaches the logs only.
func PayloadError(cause error) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, payloadFailedMessage).SetInternal(cause)
}

// Validate checks payload against shape and returns payload itself when it
// passes. The shaped copy built for checking is discarded. Every violation
// is collected before deciding.
func (g *Gate) Validate(payload any, shape *Schema) (any, error) {
	if shape.Passthrough() {
		return payload, nil
	}

	instance, violations := instantiate(payload, shape)
	if instance != nil {
		for _, f := range shape.Fields {
			vs, err := g.checkField(instance, f)
			if err != nil {
				return nil, err
			}
			violations = append(violations, vs...)
		}
	}

	if len(violations) > 0 {
		g.logger.Debug().Str("shape", shape.Name).Err(violations).Msg("payload rejected")
		return nil, PayloadError(violations)
	}
	return payload, nil
}

// instantiate maps the declared fields present in payload onto a new map.
// Absent fields stay absent.
func instantiate(payload any, shape *Schema) (map[string]any, Violations) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, Violations{{Field: shape.Name, Constraint: "object", Value: payload}}
	}
	instance := make(map[string]any, len(shape.Fields))
	for _, f := range shape.Fields {
		if v, ok := obj[f.Name]; ok {
			instance[f.Name] = v
		}
	}
	return instance, nil
}

func (g *Gate) checkField(instance map[string]any, f Field) (vs Violations, err error) {
	value, present := instance[f.Name]
	if !present || value == nil {
		if f.Required {
			vs = append(vs, Violation{Field: f.Name, Constraint: "required"})
		}
		return vs, nil
	}

	if f.Type != "" && !matchesKind(value, f.Type) {
		vs = append(vs, Violation{Field: f.Name, Constraint: string(f.Type), Value: value})
		return vs, nil
	}

	if f.Rules == "" {
		return vs, nil
	}

	// validator panics on unknown tags; that is a bug in the schema, not in
	// the payload, so it surfaces as an unstructured error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("field %s: invalid rules %q: %v", f.Name, f.Rules, r)
		}
	}()
	if verr := g.validate.Var(value, f.Rules); verr != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(verr, &fieldErrs) {
			return nil, fmt.Errorf("field %s: %w", f.Name, verr)
		}
		for _, fe := range fieldErrs {
			constraint := fe.Tag()
			if fe.Param() != "" {
				constraint += "=" + fe.Param()
			}
			vs = append(vs, Violation{Field: f.Name, Constraint: constraint, Value: value})
		}
	}
	return vs, nil
}

func matchesKind(value any, kind Kind) bool {
	switch kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindBoolean:
		_, ok := value.(bool)
		return ok
	case KindNumber:
		_, ok := toFloat(value)
		return ok
	case KindInteger:
		f, ok := toFloat(value)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	case KindArray:
		_, ok := value.([]any)
		return ok
	case KindObject, KindShape:
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Body is the route-level pipe: it decodes the JSON body, validates it
// against shape and stores the result under PayloadKey.
func (g *Gate) Body(shape *Schema) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			payload, err := decodeBody(c.Request())
			if err != nil {
				return PayloadError(err)
			}
			out, err := g.Validate(payload, shape)
			if err != nil {
				return err
			}
			c.Set(PayloadKey, out)
			return next(c)
		}
	}
}

// Payload returns the body stored by Body.
func Payload(c echo.Context) any {
	return c.Get(PayloadKey)
}

// decodeBody reads a JSON body. An empty body decodes to an empty object.
func decodeBody(r *http.Request) (any, error) {
	if r.Body == nil {
		return map[string]any{}, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]any{}, nil
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return payload, nil
}
