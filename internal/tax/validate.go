package tax

import "github.com/go-playground/validator/v10"

// ValidationTag is the struct tag validating a combined GST slab.
const ValidationTag = "gst_rate"

// RegisterValidation installs the gst_rate rule on v.
func RegisterValidation(v *validator.Validate) error {
	return v.RegisterValidation(ValidationTag, func(fl validator.FieldLevel) bool {
		return IsAllowedRate(fl.Field().Float())
	})
}
