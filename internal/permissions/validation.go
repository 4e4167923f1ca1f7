package permissions

import (
	"github.com/go-playground/validator/v10"

	pkgvalidator "github.com/charlesng35/policyhub/pkg/validator"
)

// Custom validator tags for request payloads.
const (
	TagAction          = "action"
	TagResourcePattern = "resource_pattern"
)

func init() {
	if err := pkgvalidator.RegisterValidation(TagAction, func(fl validator.FieldLevel) bool {
		return IsRegisteredAction(Action(fl.Field().String()))
	}); err != nil {
		panic(err)
	}
	if err := pkgvalidator.RegisterValidation(TagResourcePattern, func(fl validator.FieldLevel) bool {
		return ValidateResourcePattern(fl.Field().String()) == nil
	}); err != nil {
		panic(err)
	}
}
