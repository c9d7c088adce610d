package holiday

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
)

var (
	ErrPastStart  = errors.New("start date cannot be in the past")
	ErrEndBefore  = errors.New("end date cannot be before start date")
	ErrMissingDay = errors.New("start date is required")
)

// ValidateDates enforces the holiday date rules: a start date that is not before today,
// and an end date on or after the start date.
func ValidateDates(start, end, today core.Date) error {
	if start.IsZero() {
		return core.NewValidationError(ErrMissingDay, core.FieldError{Field: "start_date", Error: ErrMissingDay.Error()})
	}
	if start.Before(today) {
		return core.NewValidationError(ErrPastStart, core.FieldError{Field: "start_date", Error: ErrPastStart.Error()})
	}
	if !end.IsZero() && end.Before(start) {
		return core.NewValidationError(ErrEndBefore, core.FieldError{Field: "end_date", Error: ErrEndBefore.Error()})
	}
	return nil
}

// CheckOverlap rejects a candidate that overlaps, or touches by one day, another holiday of its school.
// The candidate itself is skipped so that edits can keep their own dates.
func CheckOverlap(candidate Holiday, existing []Holiday) error {
	for _, h := range existing {
		if h.ID == candidate.ID && candidate.ID != "" {
			continue
		}
		if h.SchoolID != candidate.SchoolID {
			continue
		}
		if !candidate.StartDate.After(h.EndDate.AddDays(1)) && !h.StartDate.After(candidate.EndDate.AddDays(1)) {
			msg := fmt.Sprintf("overlaps or is adjacent to %s", h)
			return core.NewValidationError(errors.New(msg), core.FieldError{Field: "start_date", Error: msg})
		}
	}
	return nil
}
