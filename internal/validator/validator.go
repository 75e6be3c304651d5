package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Bot API tokens are "<bot id>:<secret>"
var telegramKeyPattern = regexp.MustCompile(`^[0-9]+:[A-Za-z0-9_-]+$`)

// Echo compatible validator. Field errors are reported under their json (or param) names
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	return cv.validator.Struct(i)
}

func fieldName(field reflect.StructField) string {
	if paramName := strings.SplitN(field.Tag.Get("param"), ",", 2)[0]; paramName != "" {
		return paramName
	}

	switch jsonName := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]; jsonName {
	case "-":
		return ""
	case "-,":
		return "-"
	default:
		return jsonName
	}
}

func validTelegramKey(fl validator.FieldLevel) bool {
	return telegramKeyPattern.MatchString(fl.Field().String())
}

func Create() CustomValidator {
	validate := validator.New()
	validate.RegisterTagNameFunc(fieldName)

	// only fails on a malformed tag name, which is a programming error
	if err := validate.RegisterValidation("telegramkey", validTelegramKey); err != nil {
		panic(err)
	}

	return CustomValidator{validator: validate}
}
