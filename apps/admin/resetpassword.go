package main

import (
	"context"

	"github.com/rmtbiph/ratemyteacher/core/user"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	form := user.SetPasswordForm{Email: email, Password: pwd, PasswordConfirm: pwd}
	if err := form.Validate(cli.validate); err != nil {
		return err
	}
	return cli.usrSvc.SetPassword(context.Background(), form)
}
