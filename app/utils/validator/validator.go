package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps the go-playground validator with this service's custom
// rules.
type Validator struct {
	validator *validator.Validate
}

// New creates a validator instance with custom rules registered.
func New() *Validator {
	validate := validator.New()

	registerCustomValidators(validate)

	// Use JSON field names in validation error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{
		validator: validate,
	}
}

// Validate validates a struct and returns validation errors. Satisfies
// echo.Validator.
func (v *Validator) Validate(i interface{}) error {
	if err := v.validator.Struct(i); err != nil {
		return NewValidationError(err.(validator.ValidationErrors))
	}
	return nil
}

// ValidateVar validates a single variable against a rule tag.
func (v *Validator) ValidateVar(field interface{}, tag string) error {
	return v.validator.Var(field, tag)
}

// ValidationError carries user-friendly per-field messages.
type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

// Error implements the error interface
func (e ValidationError) Error() string {
	var messages []string
	for field, message := range e.Errors {
		messages = append(messages, fmt.Sprintf("%s: %s", field, message))
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, ", "))
}

// NewValidationError creates a ValidationError from validator.ValidationErrors
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	errors := make(map[string]string)

	for _, err := range errs {
		field := err.Field()

		switch err.Tag() {
		case "required":
			errors[field] = fmt.Sprintf("%s is required", field)
		case "email":
			errors[field] = fmt.Sprintf("%s must be a valid email address", field)
		case "min":
			errors[field] = fmt.Sprintf("%s must be at least %s characters long", field, err.Param())
		case "max":
			errors[field] = fmt.Sprintf("%s must be at most %s characters long", field, err.Param())
		case "login_name":
			errors[field] = "username must be an email address using only letters, numbers, dots and @"
		case "user_role":
			errors[field] = "role must be one of student, staff or admin"
		default:
			errors[field] = fmt.Sprintf("%s is invalid", field)
		}
	}

	return &ValidationError{Errors: errors}
}

var loginNameRegex = regexp.MustCompile(`^[\w.@]+$`)

func registerCustomValidators(validate *validator.Validate) {
	// Login names are email-shaped and drawn from the character set safe
	// for every credential backend, directory filters included.
	validate.RegisterValidation("login_name", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return loginNameRegex.MatchString(name) && strings.Count(name, "@") == 1
	})

	validate.RegisterValidation("user_role", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "student", "staff", "admin":
			return true
		}
		return false
	})
}

// IsValidEmail checks if an email is valid
func IsValidEmail(email string) bool {
	v := New()
	return v.ValidateVar(email, "required,email") == nil
}
