package inmemdb

import (
	"context"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) codeTaken(code string) bool {
	for _, sch := range repo.db.schools {
		if sch.Code == code {
			return true
		}
	}
	return false
}

func (repo *schoolRepository) CheckCodeUniqueness(_ context.Context, code string) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if repo.codeTaken(code) {
		return school.ErrCodeExists
	}
	return nil
}

func (repo *schoolRepository) CreateSchool(_ context.Context, sch school.School) (school.School, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.codeTaken(sch.Code) {
		return school.School{}, school.ErrCodeExists
	}
	sch.ID = newID()
	repo.db.schools[sch.ID] = sch
	return sch, nil
}

func (repo *schoolRepository) GetSchoolByID(_ context.Context, id string) (school.School, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sch, ok := repo.db.schools[id]; ok {
		return sch, nil
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) GetSchoolByCode(_ context.Context, code string) (school.School, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, sch := range repo.db.schools {
		if sch.Code == code {
			return sch, nil
		}
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) UpdateSchool(_ context.Context, sch school.School) (school.School, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.schools[sch.ID]; !ok {
		return school.School{}, school.ErrNotFound
	}
	repo.db.schools[sch.ID] = sch
	return sch, nil
}

// DeleteSchool cascades to the users & subscriptions of the school.
func (repo *schoolRepository) DeleteSchool(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.schools, id)
	for uid, usr := range repo.db.users {
		if usr.SchoolID == id {
			delete(repo.db.users, uid)
			repo.db.dropProfilesOf(uid)
		}
	}
	subs := repo.db.subscriptions[:0]
	for _, sub := range repo.db.subscriptions {
		if sub.SchoolID != id {
			subs = append(subs, sub)
		}
	}
	repo.db.subscriptions = subs
	return nil
}

func (repo *schoolRepository) CreateSubscription(_ context.Context, sub school.Subscription) (school.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	sub.ID = newID()
	repo.db.subscriptions = append(repo.db.subscriptions, sub)
	return sub, nil
}

func (repo *schoolRepository) UpdateSubscription(_ context.Context, sub school.Subscription) (school.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for i, s := range repo.db.subscriptions {
		if s.ID == sub.ID {
			repo.db.subscriptions[i] = sub
			return sub, nil
		}
	}
	return school.Subscription{}, school.ErrNoSubscription
}

func (repo *schoolRepository) GetLatestSubscription(_ context.Context, schoolID string) (school.Subscription, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for i := len(repo.db.subscriptions) - 1; i >= 0; i-- {
		if sub := repo.db.subscriptions[i]; sub.SchoolID == schoolID {
			return sub, nil
		}
	}
	return school.Subscription{}, school.ErrNoSubscription
}

func (repo *schoolRepository) ListSubscriptions(_ context.Context, schoolID string) ([]school.Subscription, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]school.Subscription, 0)
	for i := len(repo.db.subscriptions) - 1; i >= 0; i-- {
		if sub := repo.db.subscriptions[i]; sub.SchoolID == schoolID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (repo *schoolRepository) ExpireSubscriptions(_ context.Context, day core.Date) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for i, sub := range repo.db.subscriptions {
		if (sub.Status == school.StatusTrial || sub.Status == school.StatusActive) && sub.EndsOn.Before(day) {
			repo.db.subscriptions[i].Status = school.StatusExpired
			n++
		}
	}
	return n, nil
}
