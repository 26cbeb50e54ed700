package ticket

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/rmtbiph/ratemyteacher/core"
)

var (
	categoryTag  = "ticketcategory"
	categoryText = "please pick a category from the list"

	statusTag  = "ticketstatus"
	statusText = "{0} must be one of open, in_progress, resolved or closed"

	categoryOtherText = "please describe the category"
)

// InitValidators registers the ticket validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(categoryTag, oneOfValidation(Categories))
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)

	_ = validate.RegisterValidation(statusTag, oneOfValidation(Statuses))
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	core.RegisterCustomTranslation(validate, translator, "required_if", categoryOtherText, true)
}

func oneOfValidation(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		for _, a := range allowed {
			if a == v {
				return true
			}
		}
		return false
	}
}
