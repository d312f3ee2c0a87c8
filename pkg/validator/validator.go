package validator

import (
	"fmt"

	"github.com/gamassss/shortlink/pkg/generator"
	"github.com/gamassss/shortlink/pkg/response"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterValidation("shortkey", validateShortKey)
}

func Validate(data interface{}) []response.ValidationError {
	var validationErrors []response.ValidationError

	err := validate.Struct(data)
	if err != nil {
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, response.ValidationError{
				Field:   err.Field(),
				Message: getErrorMessage(err),
			})
		}
	}

	return validationErrors
}

// IsShortKey reports whether key can name a link at all, so malformed keys
// are answered without a lookup.
func IsShortKey(key string) bool {
	return validate.Var(key, "required,max=32,shortkey") == nil
}

func validateShortKey(fl validator.FieldLevel) bool {
	return generator.IsValidKey(fl.Field().String())
}

func getErrorMessage(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, err.Param())
	case "shortkey":
		return fmt.Sprintf("%s must only contain letters and digits", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
