package inmemdb

import (
	"context"

	"github.com/trezcool/attendly/core/academic"
	"github.com/trezcool/attendly/core/attendance"
	"github.com/trezcool/attendly/core/dbadmin"
	"github.com/trezcool/attendly/core/holiday"
	"github.com/trezcool/attendly/core/user"
)

// Table names of the memory engine, matching the SQL schema.
const (
	tableSchool       = "school"
	tableSubscription = "subscription"
	tableUser         = "user"
	tableHoliday      = "holiday"
	tableSession      = "academic_session"
	tableClass        = "class"
	tableTeacher      = "teacher"
	tableStudent      = "student"
	tableAssignment   = "class_assignment"
	tableAttendance   = "attendance"
	tableAuditLog     = "audit_log"
)

type dbAdminRepository struct {
	db *DB
}

var _ dbadmin.Repository = (*dbAdminRepository)(nil)

func NewDBAdminRepository(db *DB) dbadmin.Repository {
	return &dbAdminRepository{db: db}
}

func (repo *dbAdminRepository) DatabaseName(context.Context) (string, error) {
	return Name, nil
}

func (db *DB) counts() map[string]int {
	return map[string]int{
		tableSchool:       len(db.schools),
		tableSubscription: len(db.subscriptions),
		tableUser:         len(db.users),
		tableHoliday:      len(db.holidays),
		tableSession:      len(db.sessions),
		tableClass:        len(db.classes),
		tableTeacher:      len(db.teachers),
		tableStudent:      len(db.students),
		tableAssignment:   len(db.assignments),
		tableAttendance:   len(db.records),
		tableAuditLog:     len(db.auditLog),
	}
}

func (repo *dbAdminRepository) ListCollections(context.Context) ([]dbadmin.Collection, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	cols := make([]dbadmin.Collection, 0)
	for name, n := range repo.db.counts() {
		if !repo.db.dropped[name] {
			cols = append(cols, dbadmin.Collection{Name: name, Count: int64(n)})
		}
	}
	return cols, nil
}

// truncate empties a table; like TRUNCATE ... CASCADE, the tables referencing it go too.
func (db *DB) truncate(name string) {
	switch name {
	case tableSchool:
		db.reset()
	case tableSubscription:
		db.subscriptions = nil
	case tableUser:
		db.users = make(map[string]user.User)
		db.truncate(tableTeacher)
		db.truncate(tableStudent)
	case tableHoliday:
		db.holidays = make(map[string]holiday.Holiday)
	case tableSession:
		db.sessions = make(map[string]academic.Session)
		db.truncate(tableClass)
	case tableClass:
		db.classes = make(map[string]academic.Class)
		db.truncate(tableAssignment)
		db.truncate(tableAttendance)
	case tableTeacher:
		db.teachers = make(map[string]academic.Teacher)
	case tableStudent:
		db.students = make(map[string]academic.Student)
		db.truncate(tableAttendance)
	case tableAssignment:
		db.assignments = nil
	case tableAttendance:
		db.records = make(map[recordKey]attendance.Record)
	case tableAuditLog:
		db.auditLog = nil
	}
}

func (repo *dbAdminRepository) Truncate(_ context.Context, names []string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	for _, name := range names {
		repo.db.truncate(name)
	}
	return nil
}

// Drop empties the tables and hides them from the listing until the next Reset.
func (repo *dbAdminRepository) Drop(_ context.Context, names []string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	for _, name := range names {
		repo.db.truncate(name)
		repo.db.dropped[name] = true
	}
	return nil
}
