package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type registerPayload struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" validate:"eqfield=Password"`
	PhoneNumber          string `json:"phone_number" validate:"required"`
	Address              string `json:"address" validate:"required"`
}

type loginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type orderPayload struct {
	Location     string   `json:"location" validate:"required"`
	Destination  string   `json:"destination" validate:"required"`
	NoOfTrucks   int      `json:"no_of_trucks" validate:"required,gt=0"`
	TypeOfTruck  string   `json:"type_of_truck"`
	CompanyName  string   `json:"company_name"`
	CargoType    string   `json:"cargo_type" validate:"required"`
	CargoWeight  *float64 `json:"cargo_weight" validate:"omitempty,gte=0"`
	PickupTime   string   `json:"pickup_time" validate:"required,datetime=2006-01-02 15:04:05"`
	DeliveryTime string   `json:"delivery_time" validate:"required,datetime=2006-01-02 15:04:05"`
}

// validationErrors is the body of a 422 response: the first message plus
// every message keyed by field.
type validationErrors struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func (v *validationErrors) add(field, msg string) {
	if v.Errors == nil {
		v.Errors = make(map[string][]string)
	}
	v.Errors[field] = append(v.Errors[field], msg)
	if v.Message == "" {
		v.Message = msg
	}
}

func (v *validationErrors) empty() bool {
	return len(v.Errors) == 0
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) validatePayload(payload interface{}) (*validationErrors, error) {
	out := &validationErrors{}

	err := s.validate.Struct(payload)
	if err == nil {
		return out, nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil, err
	}
	for _, fe := range fieldErrs {
		field := fe.Field()
		if fe.Tag() == "eqfield" {
			field = "password"
		}
		out.add(field, validationMessage(fe))
	}
	return out, nil
}

func attribute(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

func validationMessage(fe validator.FieldError) string {
	attr := attribute(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", attr)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", attr)
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters.", attr, fe.Param())
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", attr, fe.Param())
	case "eqfield":
		return "The password field confirmation does not match."
	case "gt":
		return fmt.Sprintf("The %s field must be greater than %s.", attr, fe.Param())
	case "gte":
		return fmt.Sprintf("The %s field must be at least %s.", attr, fe.Param())
	case "datetime":
		return fmt.Sprintf("The %s field must match the format Y-m-d H:i:s.", attr)
	default:
		return fmt.Sprintf("The %s field is invalid.", attr)
	}
}
