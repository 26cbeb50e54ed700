package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/rmtbiph/ratemyteacher/core"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"` // UTC
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"` // UTC
	LastLogin    null.Time `db:"last_login" json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(pwd))
}

// SignUpForm contains information needed to create a new User.
type SignUpForm struct {
	Email           string `form:"email" validate:"required,email"`
	Password        string `form:"password" validate:"required"`
	PasswordConfirm string `form:"password_confirm" validate:"required,eqfield=Password"`
}

// Validate cleans the form and checks, in order: the email domain, the fields, the email uniqueness.
func (f *SignUpForm) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	f.Email = core.CleanString(f.Email, true /* lower */)

	if !svc.AllowedEmail(f.Email) {
		return svc.domainError()
	}
	if err := validate.Struct(f); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, f.Email)
}

type SignInForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

func (f *SignInForm) Validate(validate *validator.Validate, svc *Service) error {
	f.Email = core.CleanString(f.Email, true /* lower */)

	if !svc.AllowedEmail(f.Email) {
		return svc.domainError()
	}
	return validate.Struct(f)
}

// SetPasswordForm is used by operators to replace a user's password.
type SetPasswordForm struct {
	Email           string `form:"email" validate:"required,email"`
	Password        string `form:"password" validate:"required"`
	PasswordConfirm string `form:"password_confirm" validate:"required,eqfield=Password"`
}

func (f *SetPasswordForm) Validate(validate *validator.Validate) error {
	f.Email = core.CleanString(f.Email, true /* lower */)
	return validate.Struct(f)
}
