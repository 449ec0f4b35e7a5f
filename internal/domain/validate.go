package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// A zero timestamp counts as missing for "required".
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		ts, ok := field.Interface().(Timestamp)
		if !ok || ts.IsZero() {
			return nil
		}
		return ts.String()
	}, Timestamp{})
	return v
}

// Validate checks presence of the required fields and the numeric bounds.
// Ordering of pickup and delivery is left to the server.
func (r OrderRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate order request: %w", err)
	}

	verr := &ValidationError{Fields: make(map[string][]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		msg := fieldMessage(fe)
		verr.Fields[fe.Field()] = append(verr.Fields[fe.Field()], msg)
		if verr.Message == "" {
			verr.Message = msg
		}
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", fe.Field())
	case "gt":
		return fmt.Sprintf("The %s field must be greater than %s.", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("The %s field must be at least %s.", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("The %s field is invalid.", fe.Field())
	}
}
