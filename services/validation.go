package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report form field names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateForm runs the struct tags of a form and turns failures into
// messages suitable for redisplay.
func validateForm(form any) ValidationErrors {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{err.Error()}
	}

	msgs := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return msgs
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_with":
		return fmt.Sprintf("The field %q must not be empty.", field)
	case "url", "http_url":
		return fmt.Sprintf("The field %q must be a valid URL.", field)
	case "iso4217":
		return fmt.Sprintf("The field %q must be an ISO 4217 currency code such as EUR.", field)
	case "numeric", "number":
		return fmt.Sprintf("The field %q must be a whole number.", field)
	case "max":
		return fmt.Sprintf("The field %q must be at most %s characters long.", field, fe.Param())
	case "alphanum":
		return fmt.Sprintf("The field %q may only contain letters and digits.", field)
	default:
		return fmt.Sprintf("The field %q is invalid.", field)
	}
}
