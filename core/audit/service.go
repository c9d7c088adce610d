package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/user"
)

type (
	Repository interface {
		CreateEntry(ctx context.Context, e Entry) (Entry, error)
		// QueryEntries returns one page of matching entries, newest first, and the total count.
		QueryEntries(ctx context.Context, schoolID string, filter QueryFilter, page core.PageParams) ([]Entry, int, error)
	}

	// Recorder is what mutating code paths use to append to the log.
	Recorder interface {
		Record(ctx context.Context, e Entry) error
	}

	Service interface {
		Recorder
		List(ctx context.Context, schoolID string, filter QueryFilter, page core.PageParams) (Page, error)
	}

	service struct {
		repo   Repository
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, logger core.Logger) Service {
	return &service{repo: repo, logger: logger}
}

// Record stores e, assigning its id & timestamp when missing.
func (svc *service) Record(ctx context.Context, e Entry) error {
	Stamp(&e)
	if _, err := svc.repo.CreateEntry(ctx, e); err != nil {
		return errors.Wrap(err, "recording audit entry")
	}
	return nil
}

func (svc *service) List(ctx context.Context, schoolID string, filter QueryFilter, page core.PageParams) (Page, error) {
	page = page.Normalize()
	items, total, err := svc.repo.QueryEntries(ctx, schoolID, filter, page)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying audit log")
	}
	if items == nil {
		items = []Entry{}
	}
	return Page{Items: items, Meta: core.NewPageMeta(page, total)}, nil
}

// Stamp assigns the id & timestamp of an entry that has none; recorders call it before
// handing the entry over, so that retried deliveries keep their identity.
func Stamp(e *Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Diff == nil {
		e.Diff = Diff{}
	}
}

// NewEntry builds the entry of actor performing action on an entity; before & after feed the diff.
func NewEntry(actor user.User, activeRole string, action Action, entityType, entityID string, before, after interface{}) (Entry, error) {
	diff, err := ComputeDiff(before, after)
	if err != nil {
		return Entry{}, err
	}
	if activeRole == "" {
		activeRole = actor.PrimaryRole()
	}
	e := Entry{
		SchoolID:   actor.SchoolID,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		ActorRole:  activeRole,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Diff:       diff,
	}
	Stamp(&e)
	return e, nil
}
