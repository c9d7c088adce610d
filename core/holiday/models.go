package holiday

import (
	"fmt"
	"time"

	"github.com/trezcool/attendly/core"
)

type Category string

const (
	CategoryNational Category = "NATIONAL"
	CategoryFestival Category = "FESTIVAL"
	CategorySchool   Category = "SCHOOL"
)

var Categories = []Category{CategoryNational, CategoryFestival, CategorySchool}

func IsValidCategory(c Category) bool {
	for _, cat := range Categories {
		if cat == c {
			return true
		}
	}
	return false
}

type Holiday struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"school_id"`
	Name        string    `json:"name"`
	StartDate   core.Date `json:"start_date"`
	EndDate     core.Date `json:"end_date"`
	Category    Category  `json:"category"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (h Holiday) Range() core.DateRange {
	return core.DateRange{From: h.StartDate, To: h.EndDate}
}

func (h Holiday) Covers(day core.Date) bool {
	return !day.Before(h.StartDate) && !day.After(h.EndDate)
}

func (h Holiday) String() string {
	if h.StartDate.Equal(h.EndDate) {
		return fmt.Sprintf("%s (%s)", h.Name, h.StartDate)
	}
	return fmt.Sprintf("%s (%s to %s)", h.Name, h.StartDate, h.EndDate)
}

// HolidayData is the payload of both creation and edition.
type HolidayData struct {
	Name        string    `json:"name" validate:"required,notblank,max=150"`
	StartDate   core.Date `json:"start_date"`
	EndDate     core.Date `json:"end_date"`
	Category    Category  `json:"category" validate:"required,holidaycategory"`
	Description string    `json:"description" validate:"max=1000"`
}

func (hd *HolidayData) Clean() {
	hd.Name = core.CleanString(hd.Name)
	hd.Description = core.CleanString(hd.Description)
	if hd.EndDate.IsZero() {
		hd.EndDate = hd.StartDate
	}
}

// QueryFilter selects the holidays intersecting [From, To] (open bounds when zero).
type QueryFilter struct {
	From     core.Date `query:"from"`
	To       core.Date `query:"to"`
	Category Category  `query:"category"`
}

func (qf QueryFilter) Matches(h Holiday) bool {
	if qf.Category != "" && h.Category != qf.Category {
		return false
	}
	if !qf.From.IsZero() && h.EndDate.Before(qf.From) {
		return false
	}
	if !qf.To.IsZero() && h.StartDate.After(qf.To) {
		return false
	}
	return true
}
