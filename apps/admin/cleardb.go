package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/attendly/client/cleardb"
	"github.com/trezcool/attendly/core/dbadmin"
)

func (cli *commandLine) loadPanel(ctx context.Context, filter string) (*cleardb.Panel, error) {
	panel := cleardb.New(cli.dbAdmin)
	if err := panel.Load(ctx); err != nil {
		return nil, err
	}
	panel.SetFilter(filter)
	return panel, nil
}

func (cli *commandLine) collections(filter string) error {
	panel, err := cli.loadPanel(context.Background(), filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "database: %s\n", panel.Database())
	for _, c := range panel.Visible() {
		fmt.Fprintf(cli.out, "  %-24s %d\n", c.Name, c.Count)
	}
	return nil
}

// clearDB selects the collections like the panel does, then asks for the confirmation phrase on stdin.
func (cli *commandLine) clearDB(action dbadmin.Action, filter string, all bool, names []string) error {
	ctx := context.Background()
	panel, err := cli.loadPanel(ctx, filter)
	if err != nil {
		return err
	}
	if all {
		panel.SetAllFiltered(true)
	}
	for _, name := range names {
		if panel.IsSelected(name) {
			continue
		}
		if err := panel.Toggle(name); err != nil {
			return err
		}
	}

	phrase, err := panel.ConfirmPhrase(action)
	if err != nil {
		return err
	}
	if action != dbadmin.ActionDropDB {
		selected := panel.Selected()
		if len(selected) == 0 {
			return cleardb.ErrNothingSelected
		}
		fmt.Fprintf(cli.out, "collections: %s\n", strings.Join(selected, ", "))
	} else {
		fmt.Fprintf(cli.out, "database: %s\n", panel.Database())
	}

	fmt.Fprintf(cli.out, "Type %q to %s: ", phrase, action)
	typed, err := bufio.NewReader(cli.in).ReadString('\n')
	fmt.Fprintln(cli.out)
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "reading confirmation")
	}

	res, err := panel.Execute(ctx, action, strings.TrimSpace(typed))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, res.Message)
	return nil
}
