package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/attendance"
)

const recordColumns = `id, school_id, class_id, student_id, date, status, remark, marked_by, marked_at`

type recordRow struct {
	ID        string    `db:"id"`
	SchoolID  string    `db:"school_id"`
	ClassID   string    `db:"class_id"`
	StudentID string    `db:"student_id"`
	Date      core.Date `db:"date"`
	Status    string    `db:"status"`
	Remark    string    `db:"remark"`
	MarkedBy  string    `db:"marked_by"`
	MarkedAt  time.Time `db:"marked_at"`
}

func (r recordRow) record() attendance.Record {
	return attendance.Record{
		ID:        r.ID,
		SchoolID:  r.SchoolID,
		ClassID:   r.ClassID,
		StudentID: r.StudentID,
		Date:      r.Date,
		Status:    attendance.Status(r.Status),
		Remark:    r.Remark,
		MarkedBy:  r.MarkedBy,
		MarkedAt:  r.MarkedAt,
	}
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) UpsertRecords(ctx context.Context, records []attendance.Record) ([]attendance.Record, error) {
	saved := make([]attendance.Record, 0, len(records))
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO attendance (`+recordColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (class_id, student_id, date) DO UPDATE
			SET status = EXCLUDED.status, remark = EXCLUDED.remark,
				marked_by = EXCLUDED.marked_by, marked_at = EXCLUDED.marked_at
			RETURNING id`)
		if err != nil {
			return errors.Wrap(err, "preparing attendance upsert")
		}
		defer func() { _ = stmt.Close() }()

		for _, rec := range records {
			err := stmt.QueryRowxContext(ctx, newID(), rec.SchoolID, rec.ClassID, rec.StudentID, rec.Date,
				string(rec.Status), rec.Remark, rec.MarkedBy, rec.MarkedAt).Scan(&rec.ID)
			if err != nil {
				return errors.Wrapf(err, "upserting attendance of student %s", rec.StudentID)
			}
			saved = append(saved, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, schoolID string, filter attendance.RecordFilter) ([]attendance.Record, error) {
	var w where
	w.add("school_id::text = ?", schoolID)
	if filter.ClassID != "" {
		w.add("class_id::text = ?", filter.ClassID)
	}
	if filter.StudentID != "" {
		w.add("student_id::text = ?", filter.StudentID)
	}
	if !filter.From.IsZero() {
		w.add("date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("date <= ?", filter.To)
	}

	var rows []recordRow
	q := `SELECT ` + recordColumns + ` FROM attendance` + w.String() + ` ORDER BY date, student_id`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting attendance")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}
