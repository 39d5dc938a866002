package types

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Error is the JSON error body returned by every endpoint.
type Error struct {
	Fields  *map[string]string `json:"fields,omitempty" validate:"optional"`
	Message string             `json:"message"          validate:"required"`
}

func StringError(message string) Error {
	return Error{Message: message}
}

// ValidationError flattens validator failures into a per-field map.
func ValidationError(err error) Error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return Error{Message: "validation error"}
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fieldError := range validationErrors {
		fields[fieldError.Field()] = fmt.Sprintf(
			"Failed to validate while checking condition: %s",
			fieldError.Tag(),
		)
	}
	return Error{Message: "validation error", Fields: &fields}
}
