package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rinkdesk/ice-booking-api/internal/booking"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

// newValidator registers the booking tags on v, creating one when nil.
func newValidator(v *validator.Validate) *validator.Validate {
	if v == nil {
		v = validator.New()
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("recurrence", func(fl validator.FieldLevel) bool {
		_, err := booking.ParseRule(fl.Field().String())
		return err == nil
	})
	return v
}

// validationError maps validator output to VALIDATION_ERROR with per-field details.
func validationError(err error, message string) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}
	wrapped := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	wrapped.Details = details
	return wrapped
}
