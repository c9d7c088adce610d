package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/audit"
)

const auditColumns = `id, school_id, actor_id, actor_name, actor_role, action, entity_type, entity_id, diff, created_at`

type auditRow struct {
	ID         string         `db:"id"`
	SchoolID   string         `db:"school_id"`
	ActorID    string         `db:"actor_id"`
	ActorName  string         `db:"actor_name"`
	ActorRole  string         `db:"actor_role"`
	Action     string         `db:"action"`
	EntityType string         `db:"entity_type"`
	EntityID   string         `db:"entity_id"`
	Diff       types.JSONText `db:"diff"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r auditRow) entry() (audit.Entry, error) {
	e := audit.Entry{
		ID:         r.ID,
		SchoolID:   r.SchoolID,
		ActorID:    r.ActorID,
		ActorName:  r.ActorName,
		ActorRole:  r.ActorRole,
		Action:     audit.Action(r.Action),
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Diff:       audit.Diff{},
		CreatedAt:  r.CreatedAt,
	}
	if err := r.Diff.Unmarshal(&e.Diff); err != nil {
		return audit.Entry{}, errors.Wrapf(err, "decoding diff of audit entry %s", r.ID)
	}
	return e, nil
}

type auditRepository struct {
	db *sqlx.DB
}

var _ audit.Repository = (*auditRepository)(nil)

func NewAuditRepository(db *sqlx.DB) audit.Repository {
	return &auditRepository{db: db}
}

// CreateEntry ignores entries already stored, so that redelivered events are harmless.
func (repo *auditRepository) CreateEntry(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	diff, err := json.Marshal(e.Diff)
	if err != nil {
		return audit.Entry{}, errors.Wrap(err, "encoding diff")
	}
	_, err = repo.db.ExecContext(ctx, `
		INSERT INTO audit_log (`+auditColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.SchoolID, e.ActorID, e.ActorName, e.ActorRole, string(e.Action), e.EntityType, e.EntityID,
		types.JSONText(diff), e.CreatedAt)
	if err != nil {
		return audit.Entry{}, errors.Wrap(err, "inserting audit entry")
	}
	return e, nil
}

func (repo *auditRepository) QueryEntries(
	ctx context.Context,
	schoolID string,
	filter audit.QueryFilter,
	page core.PageParams,
) ([]audit.Entry, int, error) {
	var w where
	w.add("school_id::text = ?", schoolID)
	if filter.Action != "" {
		w.add("action = ?", string(filter.Action))
	}
	if filter.EntityType != "" {
		w.add("entity_type = ?", filter.EntityType)
	}
	if filter.ActorID != "" {
		w.add("actor_id::text = ?", filter.ActorID)
	}

	var total int
	if err := repo.db.GetContext(ctx, &total, `SELECT count(*) FROM audit_log`+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting audit entries")
	}

	page = page.Normalize()
	q := `SELECT ` + auditColumns + ` FROM audit_log` + w.String() + ` ORDER BY created_at DESC, id DESC`
	q += ` LIMIT ` + w.next(page.Limit) + ` OFFSET ` + w.next(page.Offset())

	var rows []auditRow
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting audit entries")
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, nil
}
