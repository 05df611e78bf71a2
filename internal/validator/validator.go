// Package validator accumulates field-level validation errors, either checked
// by hand or collected from struct tags, and hands them back in field order.
package validator

import (
	"errors"
	"reflect"
	"strings"

	playground "github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// FieldError is one failed check, reported under the JSON name of the field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Validator holds the field errors collected so far.
// A Validator without errors is considered valid.
type Validator struct {
	Errors []FieldError
}

// structValidate is shared by every Validator; it caches struct metadata.
var structValidate = newStructValidate()

func newStructValidate() *playground.Validate {
	v := playground.New(playground.WithRequiredStructEnabled())

	// Report fields under their JSON names ("isbn", not "ISBN").
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}

	return v
}

// New creates and returns a fresh, empty Validator.
func New() *Validator {
	return &Validator{}
}

// Valid returns true if no errors have been recorded.
func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

// AddError records key as failing with the given message.
// The first failure recorded for a field is the one that is reported.
func (v *Validator) AddError(key, message string) {
	for _, fe := range v.Errors {
		if fe.Field == key {
			return
		}
	}
	v.Errors = append(v.Errors, FieldError{Field: key, Message: message})
}

// Check adds an error for key with message only when ok is false.
//
//	v.Check(p.Size > 0, "size", "must be greater than zero")
func (v *Validator) Check(ok bool, key, message string) {
	if !ok {
		v.AddError(key, message)
	}
}

// Struct runs the `validate` tags of s and records one error per offending field.
func (v *Validator) Struct(s any) {
	err := structValidate.Struct(s)
	if err == nil {
		return
	}

	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.AddError("", err.Error())
		return
	}

	for _, fe := range fieldErrs {
		v.AddError(fe.Field(), messageFor(fe))
	}
}

func messageFor(fe playground.FieldError) string {
	switch fe.Tag() {
	case "notblank", "required":
		return "must not be blank"
	case "max":
		return "must not be longer than " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

// In returns true if value is present in the list slice.
func In(value string, list ...string) bool {
	for _, item := range list {
		if value == item {
			return true
		}
	}
	return false
}
