package main

import (
	"context"

	"github.com/trezcool/attendly/core"
)

func (cli *commandLine) resetPassword(code, login, pwd string) error {
	ctx := context.Background()
	sch, err := cli.schools.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, sch.ID, core.CleanString(login, true /* lower */))
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateUser(ctx, usr)
	return err
}
