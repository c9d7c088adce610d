package dbadmin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/user"
)

var (
	ErrDisabled          = errors.New("destructive administration is disabled")
	ErrBadConfirm        = errors.New("confirmation does not match")
	ErrNoCollection      = errors.New("select at least one collection")
	ErrUnknownCollection = errors.New("unknown collection")
)

type (
	Repository interface {
		DatabaseName(ctx context.Context) (string, error)
		// ListCollections never lists the migrations bookkeeping table.
		ListCollections(ctx context.Context) ([]Collection, error)
		// Truncate empties the tables (and the ones referencing them) atomically.
		Truncate(ctx context.Context, names []string) error
		// Drop drops the tables atomically.
		Drop(ctx context.Context, names []string) error
	}

	Service interface {
		// Authorize rejects anybody but a principal, and everybody when destructive administration is off.
		Authorize(actor user.User) error
		Collections(ctx context.Context) (Overview, error)
		ClearDocuments(ctx context.Context, req Request) (Result, error)
		DropCollections(ctx context.Context, req Request) (Result, error)
		DropDatabase(ctx context.Context, confirm string) (Result, error)
	}

	service struct {
		repo    Repository
		logger  core.Logger
		enabled bool
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, logger core.Logger, conf *core.Config) Service {
	return &service{repo: repo, logger: logger, enabled: conf.AllowDestructiveAdmin}
}

func (svc *service) Authorize(actor user.User) error {
	if !svc.enabled {
		return ErrDisabled
	}
	if !actor.HasRole(user.RolePrincipal) {
		return core.ErrForbidden
	}
	return nil
}

func (svc *service) Collections(ctx context.Context) (Overview, error) {
	name, err := svc.repo.DatabaseName(ctx)
	if err != nil {
		return Overview{}, errors.Wrap(err, "getting database name")
	}
	cols, err := svc.repo.ListCollections(ctx)
	if err != nil {
		return Overview{}, errors.Wrap(err, "listing collections")
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	return Overview{Database: name, Collections: cols}, nil
}

// resolve checks that every name is a listed collection and removes duplicates.
func (svc *service) resolve(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, core.NewValidationError(ErrNoCollection, core.FieldError{Field: "collections", Error: ErrNoCollection.Error()})
	}
	cols, err := svc.repo.ListCollections(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing collections")
	}
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c.Name] = true
	}

	seen := make(map[string]bool, len(names))
	resolved := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if !known[n] {
			msg := fmt.Sprintf("%s: %q", ErrUnknownCollection, n)
			return nil, core.NewValidationError(ErrUnknownCollection, core.FieldError{Field: "collections", Error: msg})
		}
		if !seen[n] {
			seen[n] = true
			resolved = append(resolved, n)
		}
	}
	return resolved, nil
}

func checkConfirm(got, want string) error {
	if got != want {
		return core.NewValidationError(ErrBadConfirm, core.FieldError{
			Field: "confirm",
			Error: fmt.Sprintf("type %q to confirm", want),
		})
	}
	return nil
}

func (svc *service) run(action Action, names []string, exec func() error) (Result, error) {
	res := Result{Action: action, Collections: names}
	if err := exec(); err != nil {
		res.Message = err.Error()
		svc.logger.Error(fmt.Sprintf("dbadmin %s %v: %v", action, names, err), err)
		return res, err
	}
	res.Success = true
	switch action {
	case ActionClear:
		res.Message = fmt.Sprintf("cleared %d collection(s)", len(names))
	case ActionDrop:
		res.Message = fmt.Sprintf("dropped %d collection(s)", len(names))
	case ActionDropDB:
		res.Message = fmt.Sprintf("dropped database (%d collections)", len(names))
	}
	svc.logger.Warn(fmt.Sprintf("dbadmin: %s %v", action, names))
	return res, nil
}

func (svc *service) ClearDocuments(ctx context.Context, req Request) (Result, error) {
	if err := checkConfirm(req.Confirm, ConfirmClear); err != nil {
		return Result{Action: ActionClear}, err
	}
	names, err := svc.resolve(ctx, req.Collections)
	if err != nil {
		return Result{Action: ActionClear}, err
	}
	return svc.run(ActionClear, names, func() error { return svc.repo.Truncate(ctx, names) })
}

func (svc *service) DropCollections(ctx context.Context, req Request) (Result, error) {
	if err := checkConfirm(req.Confirm, ConfirmDrop); err != nil {
		return Result{Action: ActionDrop}, err
	}
	names, err := svc.resolve(ctx, req.Collections)
	if err != nil {
		return Result{Action: ActionDrop}, err
	}
	return svc.run(ActionDrop, names, func() error { return svc.repo.Drop(ctx, names) })
}

func (svc *service) DropDatabase(ctx context.Context, confirm string) (Result, error) {
	dbName, err := svc.repo.DatabaseName(ctx)
	if err != nil {
		return Result{Action: ActionDropDB}, errors.Wrap(err, "getting database name")
	}
	if err := checkConfirm(confirm, dbName); err != nil {
		return Result{Action: ActionDropDB}, err
	}
	cols, err := svc.repo.ListCollections(ctx)
	if err != nil {
		return Result{Action: ActionDropDB}, errors.Wrap(err, "listing collections")
	}
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return svc.run(ActionDropDB, names, func() error { return svc.repo.Drop(ctx, names) })
}
