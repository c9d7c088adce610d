package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/attendly/apps/shared"
	"github.com/trezcool/attendly/core/dbadmin"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sqlx.DB // nil on the memory engine
	usrRepo user.Repository
	schools school.Service
	dbAdmin dbadmin.Service
	in      io.Reader
	out     io.Writer
}

func newCommandLine(stack *shared.Stack) *commandLine {
	return &commandLine{
		db:      stack.DB,
		usrRepo: stack.UserRepository(),
		schools: stack.Schools,
		dbAdmin: stack.DBAdmin,
		in:      os.Stdin,
		out:     os.Stdout,
	}
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, redo, ...)")
	fmt.Fprintln(cli.out, "  adduser -school CODE -name NAME -username USERNAME -email EMAIL [-roles ROLES] - add or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -school CODE -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  collections [-filter TEXT] - list the collections & their sizes")
	fmt.Fprintln(cli.out, "  cleardb [-filter TEXT] [-all] [-collections NAMES] -action clear|drop|dropdb - clear or drop collections, or drop the database")
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserSchool := addUserCmd.String("school", "", "The school code.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRoles := addUserCmd.String("roles", user.RolePrincipal, "Comma separated roles.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordSchool := resetPasswordCmd.String("school", "", "The school code.")
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	collectionsCmd := flag.NewFlagSet("collections", flag.ContinueOnError)
	collectionsFilter := collectionsCmd.String("filter", "", "Only list the collections containing this text.")

	clearDBCmd := flag.NewFlagSet("cleardb", flag.ContinueOnError)
	clearDBFilter := clearDBCmd.String("filter", "", "Only consider the collections containing this text.")
	clearDBAll := clearDBCmd.Bool("all", false, "Select every collection matching the filter.")
	clearDBCollections := clearDBCmd.String("collections", "", "Comma separated collections to select.")
	clearDBAction := clearDBCmd.String("action", string(dbadmin.ActionClear), "clear, drop or dropdb. The confirmation is prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserSchool == "" || *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserSchool, *addUserName, *addUserUname, *addUserEmail, pwd, splitNames(*addUserRoles))

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordSchool == "" || *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordSchool, *resetPasswordUname, pwd)

	case "collections":
		if err := collectionsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.collections(*collectionsFilter)

	case "cleardb":
		if err := clearDBCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.clearDB(dbadmin.Action(*clearDBAction), *clearDBFilter, *clearDBAll, splitNames(*clearDBCollections))

	default:
		cli.printUsage()
		return errHelp
	}
}

func splitNames(s string) []string {
	names := make([]string, 0)
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
