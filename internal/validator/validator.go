// Package validator adapts go-playground/validator for echo, reporting
// failures under the wire names from `param` and `json` tags instead of
// the Go field names.
package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	return cv.validator.Struct(i)
}

func Create() CustomValidator {
	validate := validator.New()
	validate.RegisterTagNameFunc(wireName)
	return CustomValidator{validator: validate}
}

func wireName(field reflect.StructField) string {
	if name := tagName(field.Tag.Get("param")); name != "" {
		return name
	}

	name := tagName(field.Tag.Get("json"))
	if name == "-" {
		return ""
	}
	return name
}

func tagName(tag string) string {
	return strings.SplitN(tag, ",", 2)[0]
}
