package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/user"
)

// addUser updates or creates an active user.User of the school.
func (cli *commandLine) addUser(code, name, uname, email, pwd string, roles []string) error {
	ctx := context.Background()
	sch, err := cli.schools.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	for _, role := range roles {
		if !user.IsValidRole(role) {
			return fmt.Errorf("invalid role: %q", role)
		}
	}
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	login := uname
	if login == "" {
		login = email
	}
	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, sch.ID, login)
	isNew := false
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		isNew = true
		usr = user.User{SchoolID: sch.ID, CreatedAt: now}
	}
	if isNew || uname != "" {
		usr.Username = uname
	}
	if isNew || email != "" {
		usr.Email = email
	}
	usr.Name = core.CleanString(name)
	usr.Roles = roles
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	excluded := make([]string, 0, 1)
	if !isNew {
		excluded = append(excluded, usr.ID)
	}
	if err := cli.usrRepo.CheckUniqueness(ctx, sch.ID, usr.Username, usr.Email, excluded...); err != nil {
		return err
	}
	if isNew {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	return err
}
