package validator

import (
	"github.com/go-playground/validator/v10"
	ierr "github.com/ledgerline/ledgerline/internal/errors"
	"github.com/ledgerline/ledgerline/internal/types"
	"github.com/shopspring/decimal"
)

var validate *validator.Validate

// NewValidator builds the shared validator and registers the domain tags:
// "currency" for supported ISO codes and "decimal_gte0" for non-negative
// decimal amounts.
func NewValidator() *validator.Validate {
	validate = validator.New()
	_ = validate.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		_, err := types.ParseCurrency(fl.Field().String())
		return err == nil
	})
	_ = validate.RegisterValidation("decimal_gte0", func(fl validator.FieldLevel) bool {
		switch v := fl.Field().Interface().(type) {
		case decimal.Decimal:
			return !v.IsNegative()
		case *decimal.Decimal:
			return v == nil || !v.IsNegative()
		}
		return false
	})
	return validate
}

func GetValidator() *validator.Validate {
	if validate == nil {
		return NewValidator()
	}
	return validate
}

func ValidateRequest(req interface{}) error {
	if err := GetValidator().Struct(req); err != nil {
		details := make(map[string]any)
		var validateErrs validator.ValidationErrors
		if ierr.As(err, &validateErrs) {
			for _, err := range validateErrs {
				details[err.Field()] = err.Error()
			}
		}
		return ierr.WithError(err).
			WithHint("Request validation failed").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	return nil
}
