package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core/dbadmin"
)

// migrationsTable is goose's bookkeeping table; it is never exposed.
const migrationsTable = "goose_db_version"

type dbAdminRepository struct {
	db *sqlx.DB
}

var _ dbadmin.Repository = (*dbAdminRepository)(nil)

func NewDBAdminRepository(db *sqlx.DB) dbadmin.Repository {
	return &dbAdminRepository{db: db}
}

func (repo *dbAdminRepository) DatabaseName(ctx context.Context) (string, error) {
	var name string
	err := repo.db.GetContext(ctx, &name, `SELECT current_database()`)
	return name, errors.Wrap(err, "selecting database name")
}

// ListCollections reports the planner's row estimates, which are cheap but approximate.
func (repo *dbAdminRepository) ListCollections(ctx context.Context) ([]dbadmin.Collection, error) {
	var cols []struct {
		Name  string `db:"name"`
		Count int64  `db:"count"`
	}
	err := repo.db.SelectContext(ctx, &cols, `
		SELECT c.relname AS name, GREATEST(c.reltuples, 0)::bigint AS count
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = 'public' AND c.relkind = 'r' AND c.relname <> $1
		ORDER BY c.relname`, migrationsTable)
	if err != nil {
		return nil, errors.Wrap(err, "listing tables")
	}
	collections := make([]dbadmin.Collection, 0, len(cols))
	for _, c := range cols {
		collections = append(collections, dbadmin.Collection{Name: c.Name, Count: c.Count})
	}
	return collections, nil
}

func quoteTables(names []string) string {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		quoted = append(quoted, pq.QuoteIdentifier(n))
	}
	return strings.Join(quoted, ", ")
}

func (repo *dbAdminRepository) Truncate(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `TRUNCATE TABLE `+quoteTables(names)+` CASCADE`)
		return errors.Wrap(err, "truncating tables")
	})
}

func (repo *dbAdminRepository) Drop(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteTables(names)+` CASCADE`)
		return errors.Wrap(err, "dropping tables")
	})
}
