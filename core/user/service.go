package user

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/access"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrEmailExists        = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (User, error)
		GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	}

	Service struct {
		repo  Repository
		guard *access.Guard
	}
)

func NewService(repo Repository, guard *access.Guard) *Service {
	return &Service{repo: repo, guard: guard}
}

func (svc *Service) AllowedEmail(email string) bool {
	return svc.guard.AllowedEmail(email)
}

func (svc *Service) domainError() error {
	return core.NewValidationError(access.ErrDomainNotAllowed,
		core.FieldError{Field: "email", Error: access.ErrDomainNotAllowed.Error()})
}

func (svc *Service) CheckUniqueness(ctx context.Context, email string) error {
	_, err := svc.repo.GetUserByEmail(ctx, email)
	switch errors.Cause(err) {
	case nil:
		return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	case ErrNotFound:
		return nil
	default:
		return errors.Wrap(err, "checking email uniqueness")
	}
}

// SignUp creates the account of a validated SignUpForm and signs it in.
func (svc *Service) SignUp(ctx context.Context, form SignUpForm) (User, error) {
	now := core.Now()
	usr := User{
		ID:        uuid.NewString(),
		Email:     form.Email,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: null.TimeFrom(now),
	}
	if err := usr.SetPassword(form.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

// SignIn checks the credentials of a validated SignInForm and records the login.
func (svc *Service) SignIn(ctx context.Context, form SignInForm) (User, error) {
	if !svc.AllowedEmail(form.Email) {
		return User{}, svc.domainError()
	}

	usr, err := svc.repo.GetUserByEmail(ctx, form.Email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(form.Password); err != nil {
		return User{}, ErrInvalidCredentials
	}

	usr.LastLogin = null.TimeFrom(core.Now())
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

// SetPassword replaces the password of the account of a validated SetPasswordForm.
func (svc *Service) SetPassword(ctx context.Context, form SetPasswordForm) error {
	usr, err := svc.GetByEmail(ctx, form.Email)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(form.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = core.Now()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

