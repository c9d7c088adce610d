package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/attendly/core/holiday"
)

type holidayRepository struct {
	db *DB
}

var _ holiday.Repository = (*holidayRepository)(nil)

func NewHolidayRepository(db *DB) holiday.Repository {
	return &holidayRepository{db: db}
}

func (repo *holidayRepository) CreateHoliday(_ context.Context, h holiday.Holiday) (holiday.Holiday, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	h.ID = newID()
	repo.db.holidays[h.ID] = h
	return h, nil
}

func (repo *holidayRepository) QueryHolidays(_ context.Context, schoolID string, filter holiday.QueryFilter) ([]holiday.Holiday, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	hols := make([]holiday.Holiday, 0)
	for _, h := range repo.db.holidays {
		if h.SchoolID == schoolID && filter.Matches(h) {
			hols = append(hols, h)
		}
	}
	sort.Slice(hols, func(i, j int) bool {
		if !hols[i].StartDate.Equal(hols[j].StartDate) {
			return hols[i].StartDate.Before(hols[j].StartDate)
		}
		return hols[i].Name < hols[j].Name
	})
	return hols, nil
}

func (repo *holidayRepository) GetHolidayByID(_ context.Context, schoolID, id string) (holiday.Holiday, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if h, ok := repo.db.holidays[id]; ok && h.SchoolID == schoolID {
		return h, nil
	}
	return holiday.Holiday{}, holiday.ErrNotFound
}

func (repo *holidayRepository) UpdateHoliday(_ context.Context, h holiday.Holiday) (holiday.Holiday, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if orig, ok := repo.db.holidays[h.ID]; !ok || orig.SchoolID != h.SchoolID {
		return holiday.Holiday{}, holiday.ErrNotFound
	}
	repo.db.holidays[h.ID] = h
	return h, nil
}

func (repo *holidayRepository) DeleteHoliday(_ context.Context, schoolID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if h, ok := repo.db.holidays[id]; !ok || h.SchoolID != schoolID {
		return holiday.ErrNotFound
	}
	delete(repo.db.holidays, id)
	return nil
}
