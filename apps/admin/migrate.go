package main

import (
	"context"

	"github.com/pressly/goose/v3"

	"github.com/rmtbiph/ratemyteacher/storage/database"
)

var gooseRunFunc = goose.RunContext // mockable

func (cli *commandLine) migrate(args []string) error {
	if err := goose.SetDialect(database.Dialect(cli.db)); err != nil {
		return err
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(context.Background(), args[0], cli.db.DB, database.MigrationsDir, arguments...)
}
