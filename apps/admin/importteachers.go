package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rmtbiph/ratemyteacher/core/teacher"
)

// importTeachers reads a YAML list of {name, subjects} and creates the missing teachers.
func (cli *commandLine) importTeachers(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var records []teacher.ImportRecord
	if err = yaml.Unmarshal(content, &records); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}

	created, skipped, err := cli.teacherSvc.Import(context.Background(), cli.validate, records)
	fmt.Fprintf(cli.out, "%d teacher(s) created, %d already existed\n", created, skipped)
	return err
}
