package usecase

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// inputValidator applies struct tag validation and HTML sanitization to
// untrusted input.
type inputValidator struct {
	validate *validator.Validate
	strict   *bluemonday.Policy
	ugc      *bluemonday.Policy
}

func newInputValidator() *inputValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			default:
				return false
			}
		}
		return true
	})

	return &inputValidator{
		validate: v,
		strict:   bluemonday.StrictPolicy(),
		ugc:      bluemonday.UGCPolicy(),
	}
}

// Struct validates s, converting failures into a ValidationError.
func (v *inputValidator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate input: %w", err)
	}

	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		if _, seen := out.Fields[fe.Field()]; seen {
			continue
		}
		out.Fields[fe.Field()] = fieldMessage(fe)
	}
	return out
}

// PlainText strips all markup and returns the text content.
func (v *inputValidator) PlainText(value string) string {
	return strings.TrimSpace(html.UnescapeString(v.strict.Sanitize(value)))
}

// RichText keeps user-generated-content markup and drops everything unsafe.
func (v *inputValidator) RichText(value string) string {
	return strings.TrimSpace(v.ugc.Sanitize(value))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "username":
		return "may contain only letters, digits, dot, underscore and hyphen"
	default:
		return "is invalid"
	}
}
