package types

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type (
	// Body of every non 2xx answer. Fields maps a json field name to what is wrong with it
	Error struct {
		Fields  *map[string]string `json:"fields,omitempty" validate:"optional"`
		Message string             `json:"message"          validate:"required"`
	}
)

func StringError(err string) Error {
	return Error{Message: err}
}

// readable problem for the tags the request types use
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s long", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s long", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "base64":
		return "must be standard base64"
	case "telegramkey":
		return "must look like <bot id>:<secret>"
	case "uuid_rfc4122":
		return "must be a uuid"
	case "email", "ip", "url", "hostname", "hexadecimal":
		return fmt.Sprintf("must be a valid %s", fe.Tag())
	default:
		return fmt.Sprintf("Failed to validate while checking condition: %s", fe.Tag())
	}
}

func ValidationError(err error) Error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return Error{Message: "validation error"}
	}

	errorMap := make(map[string]string, len(validationErrors))
	for _, fieldError := range validationErrors {
		errorMap[fieldError.Field()] = describe(fieldError)
	}

	return Error{Message: "validation error", Fields: &errorMap}
}
