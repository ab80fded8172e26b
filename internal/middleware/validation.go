package middleware

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/therapyassist/therapy-api/internal/model"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var errorMessages = map[string]string{
	"required":    "Field is required",
	"email":       "Invalid email format",
	"min":         "Value is too short",
	"max":         "Value is too long",
	"oneof":       "Value is not allowed",
	"decimal_gt0": "Must be greater than zero",
	"decimal_2dp": "Must have at most two decimal places",
}

var registerOnce sync.Once

// RegisterValidators installs the money validators on gin's binding engine
// and reports field names by their json tag.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		// Validate decimals as their canonical string instead of descending
		// into the struct's unexported fields.
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})

		if err = v.RegisterValidation("decimal_gt0", decimalPositive); err != nil {
			return
		}
		err = v.RegisterValidation("decimal_2dp", decimalTwoPlaces)
	})
	return err
}

func decimalValue(fl validator.FieldLevel) (decimal.Decimal, bool) {
	field := fl.Field()
	switch field.Kind() {
	case reflect.String:
		d, err := decimal.NewFromString(field.String())
		return d, err == nil
	case reflect.Struct:
		d, ok := field.Interface().(decimal.Decimal)
		return d, ok
	}
	return decimal.Decimal{}, false
}

func decimalPositive(fl validator.FieldLevel) bool {
	d, ok := decimalValue(fl)
	return ok && d.IsPositive()
}

func decimalTwoPlaces(fl validator.FieldLevel) bool {
	d, ok := decimalValue(fl)
	return ok && model.ValidMoneyScale(d)
}

func fieldErrors(errs validator.ValidationErrors) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		msg := errorMessages[e.Tag()]
		if msg == "" {
			msg = e.Error()
		}
		out = append(out, ValidationError{Field: e.Field(), Message: msg})
	}
	return out
}
