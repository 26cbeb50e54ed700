package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/access"
	"github.com/rmtbiph/ratemyteacher/core/user"
	sqlxrepos "github.com/rmtbiph/ratemyteacher/storage/database/sqlx"
	"github.com/rmtbiph/ratemyteacher/testutil"
)

func setup(t *testing.T) (*user.Service, user.Repository) {
	conf := testutil.NewConfig(t)
	db := testutil.PrepareDB(t, conf)
	repo := sqlxrepos.NewUserRepository(db)
	return user.NewService(repo, access.NewGuard(access.EmailSuffix(conf.AllowedEmailDomain))), repo
}

func TestSignUpForm_Validate(t *testing.T) {
	svc, repo := setup(t)
	validate := testutil.NewValidator()
	testutil.CreateUser(t, repo, testutil.Email("taken"))

	tests := []struct {
		name      string
		form      user.SignUpForm
		wantErr   error
		wantField string
	}{
		{name: "foreign domain", form: user.SignUpForm{Email: "kid@gmail.com", Password: testutil.Password, PasswordConfirm: testutil.Password}, wantErr: access.ErrDomainNotAllowed},
		{name: "lookalike domain", form: user.SignUpForm{Email: "kid@basischina.com.evil.io", Password: testutil.Password, PasswordConfirm: testutil.Password}, wantErr: access.ErrDomainNotAllowed},
		{name: "taken", form: user.SignUpForm{Email: " TAKEN" + testutil.Domain, Password: testutil.Password, PasswordConfirm: testutil.Password}, wantErr: user.ErrEmailExists},
		{name: "too short", form: user.SignUpForm{Email: testutil.Email("new"), Password: "Ab1-", PasswordConfirm: "Ab1-"}, wantField: "password"},
		{name: "whitespace", form: user.SignUpForm{Email: testutil.Email("new"), Password: "with space 123", PasswordConfirm: "with space 123"}, wantField: "password"},
		{name: "similar to email", form: user.SignUpForm{Email: testutil.Email("johnathan.smith"), Password: "johnathansmith", PasswordConfirm: "johnathansmith"}, wantField: "password"},
		{name: "mismatch", form: user.SignUpForm{Email: testutil.Email("new"), Password: testutil.Password, PasswordConfirm: testutil.Password + "!"}, wantField: "password_confirm"},
		{name: "valid", form: user.SignUpForm{Email: testutil.Email("new"), Password: testutil.Password, PasswordConfirm: testutil.Password}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := tt.form
			err := form.Validate(context.Background(), validate, svc)
			switch {
			case tt.wantErr != nil:
				var vErr *core.ValidationError
				require.True(t, errors.As(err, &vErr), "err = %v", err)
				assert.Equal(t, tt.wantErr, vErr.Err)
			case tt.wantField != "":
				fields := core.ValidationFields(err, core.NewTranslator())
				assert.Contains(t, fields, tt.wantField, "err = %v", err)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_SignUpSignIn(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	usr, err := svc.SignUp(ctx, user.SignUpForm{Email: testutil.Email("jane"), Password: testutil.Password})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.NotEqual(t, testutil.Password, usr.PasswordHash)
	assert.True(t, usr.LastLogin.Valid)

	tests := []struct {
		name    string
		form    user.SignInForm
		wantErr error
	}{
		{name: "foreign domain", form: user.SignInForm{Email: "jane@gmail.com", Password: testutil.Password}, wantErr: access.ErrDomainNotAllowed},
		{name: "unknown", form: user.SignInForm{Email: testutil.Email("nobody"), Password: testutil.Password}, wantErr: user.ErrInvalidCredentials},
		{name: "wrong password", form: user.SignInForm{Email: usr.Email, Password: "nope"}, wantErr: user.ErrInvalidCredentials},
		{name: "signed in", form: user.SignInForm{Email: usr.Email, Password: testutil.Password}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.SignIn(ctx, tt.form)
			if tt.wantErr != nil {
				var vErr *core.ValidationError
				if errors.As(err, &vErr) {
					err = vErr.Err
				}
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, usr.ID, got.ID)
			assert.True(t, !got.LastLogin.Time.Before(usr.LastLogin.Time))
		})
	}

	stored, err := repo.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, usr.Email, stored.Email)
}

func TestService_SetPassword(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, testutil.Email("jane"))

	err := svc.SetPassword(ctx, user.SetPasswordForm{Email: testutil.Email("nobody"), Password: "Another-pass-9"})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	require.NoError(t, svc.SetPassword(ctx, user.SetPasswordForm{Email: " JANE" + testutil.Domain, Password: "Another-pass-9"}))
	got, err := repo.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("Another-pass-9"))
	assert.Error(t, got.CheckPassword(testutil.Password))
}
