/*
validate.go - Request body decoding and validation

PURPOSE:
  Decodes JSON bodies strictly (unknown fields are rejected) and checks the
  validate tags on request DTOs with go-playground/validator.

ERRORS:
  Failures become a 400 validation error whose details map each offending
  json field name to a short message ("is required", "must be one of ...").

SEE ALSO:
  - dto.go: request types and their tags
  - errors.go: error envelope
*/
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// decodeJSON reads a strict JSON body into dest and validates its tags.
func decodeJSON(r *http.Request, dest any) error {
	defer io.Copy(io.Discard, r.Body)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return badRequest("invalid request body", map[string]string{"body": err.Error()})
	}
	if err := validate.Struct(dest); err != nil {
		return validationFailed(err)
	}
	return nil
}

func validationFailed(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return badRequest("validation failed", map[string]string{"body": err.Error()})
	}
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fe.Field()] = validationMessage(fe)
	}
	return badRequest("validation failed", details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "numeric":
		return "must be a decimal number"
	}
	return "is invalid"
}
