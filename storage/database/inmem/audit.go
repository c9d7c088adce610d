package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/audit"
)

type auditRepository struct {
	db *DB
}

var _ audit.Repository = (*auditRepository)(nil)

func NewAuditRepository(db *DB) audit.Repository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) CreateEntry(_ context.Context, e audit.Entry) (audit.Entry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, prev := range repo.db.auditLog {
		if prev.ID == e.ID {
			return prev, nil
		}
	}
	repo.db.auditLog = append(repo.db.auditLog, e)
	return e, nil
}

func (repo *auditRepository) QueryEntries(_ context.Context, schoolID string, filter audit.QueryFilter, page core.PageParams) ([]audit.Entry, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	matched := make([]audit.Entry, 0)
	for _, e := range repo.db.auditLog {
		if e.SchoolID == schoolID && filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	page = page.Normalize()
	start := page.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + page.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}
