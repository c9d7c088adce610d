// Package inmemdb holds map-backed repositories, used by tests and the "memory" database engine.
package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/attendly/core/academic"
	"github.com/trezcool/attendly/core/attendance"
	"github.com/trezcool/attendly/core/audit"
	"github.com/trezcool/attendly/core/holiday"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
)

// Name is reported as the database name of the memory engine.
const Name = "memory"

type recordKey struct {
	classID, studentID, date string
}

// DB is a single lock over every table; the repositories share it so joins stay consistent.
type DB struct {
	mu sync.RWMutex

	schools       map[string]school.School
	subscriptions []school.Subscription
	users         map[string]user.User
	holidays      map[string]holiday.Holiday
	sessions      map[string]academic.Session
	classes       map[string]academic.Class
	teachers      map[string]academic.Teacher
	students      map[string]academic.Student
	assignments   []academic.ClassAssignment
	records       map[recordKey]attendance.Record
	auditLog      []audit.Entry

	dropped map[string]bool
}

func Open() *DB {
	db := &DB{dropped: make(map[string]bool)}
	db.reset()
	return db
}

func (db *DB) reset() {
	db.schools = make(map[string]school.School)
	db.subscriptions = nil
	db.users = make(map[string]user.User)
	db.holidays = make(map[string]holiday.Holiday)
	db.sessions = make(map[string]academic.Session)
	db.classes = make(map[string]academic.Class)
	db.teachers = make(map[string]academic.Teacher)
	db.students = make(map[string]academic.Student)
	db.assignments = nil
	db.records = make(map[recordKey]attendance.Record)
	db.auditLog = nil
}

// Reset empties every table; tests call it between cases.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.reset()
	db.dropped = make(map[string]bool)
}

func newID() string {
	return uuid.NewString()
}
