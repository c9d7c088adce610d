package academic

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/attendly/core"
)

type Session struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	Name      string    `json:"name"`
	StartDate core.Date `json:"start_date"`
	EndDate   core.Date `json:"end_date"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s Session) Range() core.DateRange {
	return core.DateRange{From: s.StartDate, To: s.EndDate}
}

type SessionData struct {
	Name      string    `json:"name" validate:"required,notblank,max=64"`
	StartDate core.Date `json:"start_date"`
	EndDate   core.Date `json:"end_date"`
}

type Class struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Section   string    `json:"section"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Class) Label() string {
	if c.Section == "" {
		return c.Name
	}
	return c.Name + " - " + c.Section
}

type ClassData struct {
	SessionID string `json:"session_id" validate:"required"`
	Name      string `json:"name" validate:"required,notblank,max=64"`
	Section   string `json:"section" validate:"max=16"`
}

type ClassFilter struct {
	SessionID string `query:"session_id"`
}

type PersonKind string

const (
	KindTeacher PersonKind = "teacher"
	KindStudent PersonKind = "student"
)

// ClassAssignment is one entry of a person's class history; at most one is active per person.
type ClassAssignment struct {
	ID         string     `json:"id"`
	ClassID    string     `json:"class_id"`
	PersonID   string     `json:"person_id"`
	PersonKind PersonKind `json:"person_kind"`
	IsActive   bool       `json:"is_active"`
	AssignedAt time.Time  `json:"assigned_at"`
	EndedAt    null.Time  `json:"ended_at"`
}

// Teacher is a teacher profile joined with its user account.
type Teacher struct {
	ID            string            `json:"id"`
	SchoolID      string            `json:"school_id"`
	UserID        string            `json:"user_id"`
	Name          string            `json:"name"`
	Username      string            `json:"username"`
	Email         string            `json:"email"`
	IsActive      bool              `json:"is_active"`
	IsCoordinator bool              `json:"is_coordinator"`
	Phone         string            `json:"phone"`
	Subject       string            `json:"subject"`
	ClassID       string            `json:"class_id"` // active class, if any
	History       []ClassAssignment `json:"history,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

type NewTeacher struct {
	Name            string `json:"name" validate:"required,max=150"`
	Username        string `json:"username" validate:"omitempty,min=3,max=150,alphanum_"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Phone           string `json:"phone" validate:"max=32"`
	Subject         string `json:"subject" validate:"max=64"`
	IsCoordinator   bool   `json:"is_coordinator"`
	ClassID         string `json:"class_id"`
}

// Student is a student profile joined with its user account.
type Student struct {
	ID            string            `json:"id"`
	SchoolID      string            `json:"school_id"`
	UserID        string            `json:"user_id"`
	Name          string            `json:"name"`
	Username      string            `json:"username"`
	Email         string            `json:"email"`
	IsActive      bool              `json:"is_active"`
	RollNumber    string            `json:"roll_number"`
	GuardianName  string            `json:"guardian_name"`
	GuardianPhone string            `json:"guardian_phone"`
	ClassID       string            `json:"class_id"` // active class, if any
	History       []ClassAssignment `json:"history,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

type NewStudent struct {
	Name            string `json:"name" validate:"required,max=150"`
	Username        string `json:"username" validate:"omitempty,min=3,max=150,alphanum_"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	RollNumber      string `json:"roll_number" validate:"max=32"`
	GuardianName    string `json:"guardian_name" validate:"max=150"`
	GuardianPhone   string `json:"guardian_phone" validate:"max=32"`
	ClassID         string `json:"class_id"`
}

// PersonFilter applies to both teacher & student listings.
type PersonFilter struct {
	ClassID string `query:"class_id"`
	Search  string `query:"search"`
}

type AssignClass struct {
	ClassID string `json:"class_id" validate:"required"`
}

// ImportRowError reports why one CSV row could not be imported; Line is 1-based and counts the header.
type ImportRowError struct {
	Line   int               `json:"line"`
	Errors map[string]string `json:"errors"`
}

type ImportResult struct {
	Created []Student        `json:"created"`
	Failed  []ImportRowError `json:"failed"`
}
