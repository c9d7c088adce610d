package school

import (
	"strings"
	"time"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/user"
)

type School struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lookup is what an anonymous visitor learns about a school from its code.
type Lookup struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

func (s School) Lookup() Lookup {
	return Lookup{Code: s.Code, Name: s.Name, IsActive: s.IsActive}
}

type SubscriptionStatus string

const (
	StatusTrial     SubscriptionStatus = "TRIAL"
	StatusActive    SubscriptionStatus = "ACTIVE"
	StatusExpired   SubscriptionStatus = "EXPIRED"
	StatusCancelled SubscriptionStatus = "CANCELLED"
)

type Subscription struct {
	ID               string             `json:"id"`
	SchoolID         string             `json:"school_id"`
	PlanID           string             `json:"plan_id"`
	BillableStudents int                `json:"billable_students"`
	PaidAmount       int64              `json:"paid_amount"` // minor units
	StartsOn         core.Date          `json:"starts_on"`
	EndsOn           core.Date          `json:"ends_on"`
	Status           SubscriptionStatus `json:"status"`
	CreatedAt        time.Time          `json:"created_at"`
}

// IsCurrent reports whether the subscription grants access on the given day.
func (s Subscription) IsCurrent(day core.Date) bool {
	if s.Status != StatusTrial && s.Status != StatusActive {
		return false
	}
	return !day.Before(s.StartsOn) && !day.After(s.EndsOn)
}

// RegisterSchool is submitted by the public registration page: a new tenant and its principal account.
type RegisterSchool struct {
	SchoolName        string `json:"school_name" validate:"required,max=150"`
	SchoolCode        string `json:"school_code" validate:"required,schoolcode"`
	SchoolEmail       string `json:"school_email" validate:"omitempty,email"`
	SchoolPhone       string `json:"school_phone" validate:"omitempty,max=32"`
	SchoolAddress     string `json:"school_address"`
	PrincipalName     string `json:"principal_name" validate:"required,max=150"`
	PrincipalUsername string `json:"principal_username" validate:"omitempty,min=3,max=150,alphanum_"`
	PrincipalEmail    string `json:"principal_email" validate:"required,email"`
	Password          string `json:"password" validate:"required"`
	PasswordConfirm   string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (rs *RegisterSchool) Clean() {
	rs.SchoolName = core.CleanString(rs.SchoolName)
	rs.SchoolCode = NormalizeCode(rs.SchoolCode)
	rs.SchoolEmail = core.CleanString(rs.SchoolEmail, true /* lower */)
	rs.SchoolPhone = core.CleanString(rs.SchoolPhone)
	rs.SchoolAddress = core.CleanString(rs.SchoolAddress)
	rs.PrincipalName = core.CleanString(rs.PrincipalName)
	rs.PrincipalUsername = core.CleanString(rs.PrincipalUsername, true /* lower */)
	rs.PrincipalEmail = core.CleanString(rs.PrincipalEmail, true /* lower */)
}

func (rs RegisterSchool) principal(schoolID string) user.NewUser {
	return user.NewUser{
		SchoolID:        schoolID,
		Name:            rs.PrincipalName,
		Username:        rs.PrincipalUsername,
		Email:           rs.PrincipalEmail,
		Password:        rs.Password,
		PasswordConfirm: rs.PasswordConfirm,
		Roles:           []string{user.RolePrincipal},
	}
}

type UpdateSchool struct {
	Name    string `json:"name" validate:"omitempty,max=150"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	Address string `json:"address"`
}

type QuoteRequest struct {
	PlanID   string `json:"plan_id" validate:"required"`
	Students int    `json:"students" validate:"gte=0"`
}

type SubscribeRequest struct {
	PlanID     string `json:"plan_id" validate:"required"`
	Students   int    `json:"students" validate:"gte=1"`
	PaidAmount int64  `json:"paid_amount" validate:"gte=0"`
}

// NormalizeCode is the canonical form of a school code: trimmed and upper-cased.
func NormalizeCode(code string) string {
	return strings.ToUpper(core.CleanString(code))
}
