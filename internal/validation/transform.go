package validation

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

const transformFailedMessage = "Transform validation failed"

// ParseInt reads the leading base-10 integer of value, ignoring leading
// whitespace and anything after the digits ("42px" is 42). A value with no
// leading digits is a 400.
func ParseInt(value string) (int, error) {
	s := strings.TrimLeftFunc(value, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, echo.NewHTTPError(http.StatusBadRequest, transformFailedMessage)
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, transformFailedMessage).SetInternal(err)
	}
	return n, nil
}

// ParamInt parses the named path parameter with ParseInt.
func ParamInt(c echo.Context, name string) (int, error) {
	return ParseInt(c.Param(name))
}

// StructValidator is the echo.Validator of the server, used by handlers
// that bind into tagged structs. Values that are not structs pass.
type StructValidator struct {
	validate *validator.Validate
}

func NewStructValidator() *StructValidator {
	return &StructValidator{validate: validator.New()}
}

func (v *StructValidator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return nil
	}
	return PayloadError(err)
}
