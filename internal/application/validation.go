package application

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func inputValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
		_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
			_, err := time.Parse(dateLayout, fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
			_, err := time.Parse(periodLayout, fl.Field().String())
			return err == nil
		})
		validate = v
	})
	return validate
}

// validateInput runs struct tag validation and converts failures into a ValidationError
// keyed by JSON field names.
func validateInput(input any) *ValidationError {
	vErr := &ValidationError{}
	err := inputValidator().Struct(input)
	if err == nil {
		return vErr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add("input", "input is invalid")
		return vErr
	}
	for _, fe := range fieldErrs {
		vErr.add(fieldPath(fe), fieldMessage(fe))
	}
	return vErr
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte", "gt":
		return fmt.Sprintf("%s must be greater than %s", field, orEqual(fe))
	case "lte", "lt":
		return fmt.Sprintf("%s must be less than %s", field, orEqual(fe))
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "numeric":
		return field + " must contain digits only"
	case "url":
		return field + " must be a valid URL"
	case "date":
		return field + " must be a date formatted as YYYY-MM-DD"
	case "period":
		return field + " must be a month formatted as YYYY-MM"
	case "dive":
		return field + " is invalid"
	}
	return field + " is invalid"
}

func orEqual(fe validator.FieldError) string {
	if strings.HasSuffix(fe.Tag(), "e") {
		return "or equal to " + fe.Param()
	}
	return fe.Param()
}
