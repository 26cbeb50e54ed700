package review

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/rmtbiph/ratemyteacher/core"
)

var (
	gradeTag  = "grade"
	gradeText = "{0} must be one of A+, A, A-, B+, B, B-, C+, C, C-, D, F, P or NP"
)

// InitValidators registers the review validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(gradeTag, gradeValidation)
	core.RegisterCustomTranslation(validate, translator, gradeTag, gradeText)
}

// gradeValidation only allows the known letter grades (or no grade).
func gradeValidation(fl validator.FieldLevel) bool {
	grade := fl.Field().String()
	for _, g := range Grades {
		if g == grade {
			return true
		}
	}
	return false
}
