package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 8 << 20

// FieldError describes a single failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// BadRequest builds a 400 AppError.
func BadRequest(message string, err error) *AppError {
	return Fail(CodeBadRequest, message, err)
}

// DecodeJSON decodes the request body into dst and, when v is set, validates
// it. Failures are returned as BAD_REQUEST AppErrors.
func DecodeJSON(r *http.Request, dst any, v *validator.Validate) error {
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return BadRequest("request body is required", err)
		}
		appErr := BadRequest("invalid request payload", err)
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			appErr.Details = map[string]any{"offset": syntaxErr.Offset}
		}
		return appErr
	}
	if v == nil {
		return nil
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]FieldError, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, FieldError{Field: jsonPath(fe.Namespace()), Rule: fe.Tag(), Param: fe.Param()})
			}
			appErr := BadRequest("validation failed", err)
			appErr.Details = map[string]any{"fields": fields}
			return appErr
		}
		return BadRequest(fmt.Sprintf("validation failed: %v", err), err)
	}
	return nil
}

// NewValidator returns a validator that reports json field names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func jsonPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
