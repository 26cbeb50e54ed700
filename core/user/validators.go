package user

import (
	"fmt"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/rmtbiph/ratemyteacher/core"
)

var (
	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password is too similar to your email"

	pwdMismatchText = "passwords do not match"
)

// InitValidators registers the account validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(userStructValidation, SignUpForm{}, SetPasswordForm{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, "eqfield", pwdMismatchText, true)
}

// userStructValidation does struct level validation on SignUpForm and SetPasswordForm.
func userStructValidation(sl validator.StructLevel) {
	switch f := sl.Current().Interface().(type) {
	case SignUpForm:
		validatePassword(f.Password, f.Email, sl)
	case SetPasswordForm:
		validatePassword(f.Password, f.Email, sl)
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no similarity with the email's local part
func validatePassword(pwd, email string, sl validator.StructLevel) {
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	if len([]rune(pwd)) < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
	}

	local := strings.ToLower(strings.SplitN(email, "@", 2)[0])
	if local == "" {
		return
	}
	ratio := difflib.NewMatcher(strings.Split(strings.ToLower(pwd), ""), strings.Split(local, "")).QuickRatio()
	if ratio >= pwdMaxSim {
		reportErr(pwdAttrSimTag)
	}
}
