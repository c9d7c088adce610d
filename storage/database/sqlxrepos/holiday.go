package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/holiday"
)

type holidayRow struct {
	ID          string      `db:"id"`
	SchoolID    string      `db:"school_id"`
	Name        string      `db:"name"`
	StartDate   core.Date   `db:"start_date"`
	EndDate     core.Date   `db:"end_date"`
	Category    string      `db:"category"`
	Description null.String `db:"description"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

const holidayColumns = `id, school_id, name, start_date, end_date, category, description, created_at, updated_at`

func (r holidayRow) holiday() holiday.Holiday {
	return holiday.Holiday{
		ID:          r.ID,
		SchoolID:    r.SchoolID,
		Name:        r.Name,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Category:    holiday.Category(r.Category),
		Description: r.Description.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type holidayRepository struct {
	db *sqlx.DB
}

var _ holiday.Repository = (*holidayRepository)(nil)

func NewHolidayRepository(db *sqlx.DB) holiday.Repository {
	return &holidayRepository{db: db}
}

func (repo *holidayRepository) CreateHoliday(ctx context.Context, h holiday.Holiday) (holiday.Holiday, error) {
	h.ID = newID()
	_, err := repo.db.ExecContext(ctx, `INSERT INTO holiday (`+holidayColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		h.ID, h.SchoolID, h.Name, h.StartDate, h.EndDate, string(h.Category),
		null.NewString(h.Description, h.Description != ""), h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return holiday.Holiday{}, errors.Wrap(err, "inserting holiday")
	}
	return h, nil
}

func (repo *holidayRepository) QueryHolidays(ctx context.Context, schoolID string, filter holiday.QueryFilter) ([]holiday.Holiday, error) {
	var w where
	w.add("school_id::text = ?", schoolID)
	if filter.Category != "" {
		w.add("category = ?", string(filter.Category))
	}
	if !filter.From.IsZero() {
		w.add("end_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("start_date <= ?", filter.To)
	}

	var rows []holidayRow
	q := `SELECT ` + holidayColumns + ` FROM holiday` + w.String() + ` ORDER BY start_date, name`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting holidays")
	}
	hols := make([]holiday.Holiday, 0, len(rows))
	for _, r := range rows {
		hols = append(hols, r.holiday())
	}
	return hols, nil
}

func (repo *holidayRepository) GetHolidayByID(ctx context.Context, schoolID, id string) (holiday.Holiday, error) {
	var row holidayRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+holidayColumns+` FROM holiday WHERE school_id::text = $1 AND id::text = $2`, schoolID, id)
	if err != nil {
		return holiday.Holiday{}, trapNoRowsErr(err, holiday.ErrNotFound, "getting holiday")
	}
	return row.holiday(), nil
}

func (repo *holidayRepository) UpdateHoliday(ctx context.Context, h holiday.Holiday) (holiday.Holiday, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE holiday
		SET name = $3, start_date = $4, end_date = $5, category = $6, description = $7, updated_at = $8
		WHERE school_id = $1 AND id = $2`,
		h.SchoolID, h.ID, h.Name, h.StartDate, h.EndDate, string(h.Category),
		null.NewString(h.Description, h.Description != ""), h.UpdatedAt)
	if err != nil {
		return holiday.Holiday{}, errors.Wrap(err, "updating holiday")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return holiday.Holiday{}, holiday.ErrNotFound
	}
	return h, nil
}

func (repo *holidayRepository) DeleteHoliday(ctx context.Context, schoolID, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM holiday WHERE school_id::text = $1 AND id::text = $2`, schoolID, id)
	if err != nil {
		return errors.Wrap(err, "deleting holiday")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return holiday.ErrNotFound
	}
	return nil
}
