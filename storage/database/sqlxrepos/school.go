package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/school"
)

const (
	schoolColumns       = `id, code, name, email, phone, address, is_active, created_at, updated_at`
	subscriptionColumns = `id, school_id, plan_id, billable_students, paid_amount, starts_on, ends_on, status, created_at`
)

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *sqlx.DB) school.Repository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CheckCodeUniqueness(ctx context.Context, code string) error {
	var exists bool
	if err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM school WHERE code = $1)`, code); err != nil {
		return errors.Wrap(err, "checking school code")
	}
	if exists {
		return school.ErrCodeExists
	}
	return nil
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, sch school.School) (school.School, error) {
	sch.ID = newID()
	_, err := repo.db.ExecContext(ctx, `INSERT INTO school (`+schoolColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sch.ID, sch.Code, sch.Name, sch.Email, sch.Phone, sch.Address, sch.IsActive, sch.CreatedAt, sch.UpdatedAt)
	if err != nil {
		if uniqueViolationOn(err, "school_code_key") {
			return school.School{}, school.ErrCodeExists
		}
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return sch, nil
}

func (repo *schoolRepository) getSchool(ctx context.Context, q string, arg interface{}) (school.School, error) {
	var sch school.School
	err := repo.db.QueryRowxContext(ctx, q, arg).Scan(
		&sch.ID, &sch.Code, &sch.Name, &sch.Email, &sch.Phone, &sch.Address, &sch.IsActive, &sch.CreatedAt, &sch.UpdatedAt)
	if err != nil {
		return school.School{}, trapNoRowsErr(err, school.ErrNotFound, "getting school")
	}
	return sch, nil
}

func (repo *schoolRepository) GetSchoolByID(ctx context.Context, id string) (school.School, error) {
	return repo.getSchool(ctx, `SELECT `+schoolColumns+` FROM school WHERE id::text = $1`, id)
}

func (repo *schoolRepository) GetSchoolByCode(ctx context.Context, code string) (school.School, error) {
	return repo.getSchool(ctx, `SELECT `+schoolColumns+` FROM school WHERE code = $1`, code)
}

func (repo *schoolRepository) UpdateSchool(ctx context.Context, sch school.School) (school.School, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE school SET name = $2, email = $3, phone = $4, address = $5, is_active = $6, updated_at = $7 WHERE id = $1`,
		sch.ID, sch.Name, sch.Email, sch.Phone, sch.Address, sch.IsActive, sch.UpdatedAt)
	if err != nil {
		return school.School{}, errors.Wrap(err, "updating school")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.School{}, school.ErrNotFound
	}
	return sch, nil
}

func (repo *schoolRepository) DeleteSchool(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM school WHERE id::text = $1`, id)
	return errors.Wrap(err, "deleting school")
}

func scanSubscription(row interface{ Scan(...interface{}) error }) (school.Subscription, error) {
	var sub school.Subscription
	err := row.Scan(&sub.ID, &sub.SchoolID, &sub.PlanID, &sub.BillableStudents, &sub.PaidAmount,
		&sub.StartsOn, &sub.EndsOn, &sub.Status, &sub.CreatedAt)
	return sub, err
}

func (repo *schoolRepository) CreateSubscription(ctx context.Context, sub school.Subscription) (school.Subscription, error) {
	sub.ID = newID()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO subscription (`+subscriptionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.SchoolID, sub.PlanID, sub.BillableStudents, sub.PaidAmount, sub.StartsOn, sub.EndsOn, sub.Status, sub.CreatedAt)
	if err != nil {
		return school.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	return sub, nil
}

func (repo *schoolRepository) UpdateSubscription(ctx context.Context, sub school.Subscription) (school.Subscription, error) {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE subscription SET status = $2, ends_on = $3 WHERE id = $1`, sub.ID, sub.Status, sub.EndsOn)
	if err != nil {
		return school.Subscription{}, errors.Wrap(err, "updating subscription")
	}
	return sub, nil
}

func (repo *schoolRepository) GetLatestSubscription(ctx context.Context, schoolID string) (school.Subscription, error) {
	row := repo.db.QueryRowxContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscription WHERE school_id::text = $1 ORDER BY created_at DESC LIMIT 1`, schoolID)
	sub, err := scanSubscription(row)
	if err != nil {
		return school.Subscription{}, trapNoRowsErr(err, school.ErrNoSubscription, "getting subscription")
	}
	return sub, nil
}

func (repo *schoolRepository) ListSubscriptions(ctx context.Context, schoolID string) ([]school.Subscription, error) {
	rows, err := repo.db.QueryxContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscription WHERE school_id::text = $1 ORDER BY created_at DESC`, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "listing subscriptions")
	}
	defer func() { _ = rows.Close() }()

	subs := make([]school.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning subscription")
		}
		subs = append(subs, sub)
	}
	return subs, errors.Wrap(rows.Err(), "listing subscriptions")
}

func (repo *schoolRepository) ExpireSubscriptions(ctx context.Context, day core.Date) (int, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE subscription SET status = $1 WHERE status IN ($2, $3) AND ends_on < $4`,
		school.StatusExpired, school.StatusTrial, school.StatusActive, day)
	if err != nil {
		return 0, errors.Wrap(err, "expiring subscriptions")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "expiring subscriptions")
}
