package attendance

import (
	"math"
	"time"

	"github.com/trezcool/attendly/core"
)

type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusLate    Status = "LATE"
	StatusExcused Status = "EXCUSED"
)

type Record struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	ClassID   string    `json:"class_id"`
	StudentID string    `json:"student_id"`
	Date      core.Date `json:"date"`
	Status    Status    `json:"status"`
	Remark    string    `json:"remark"`
	MarkedBy  string    `json:"marked_by"`
	MarkedAt  time.Time `json:"marked_at"`
}

type Entry struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    Status `json:"status" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	Remark    string `json:"remark" validate:"max=500"`
}

type MarkAttendance struct {
	ClassID string    `json:"class_id" validate:"required"`
	Date    core.Date `json:"date"`
	Entries []Entry   `json:"entries" validate:"required,min=1,dive"`
}

// RecordFilter selects records; empty fields do not filter.
type RecordFilter struct {
	ClassID   string
	StudentID string
	From      core.Date
	To        core.Date
}

type SheetRow struct {
	StudentID  string `json:"student_id"`
	Name       string `json:"name"`
	RollNumber string `json:"roll_number"`
	Status     Status `json:"status,omitempty"` // empty when not marked yet
	Remark     string `json:"remark"`
}

type Sheet struct {
	ClassID string     `json:"class_id"`
	Date    core.Date  `json:"date"`
	Holiday string     `json:"holiday,omitempty"`
	Rows    []SheetRow `json:"rows"`
}

type Counts struct {
	Present    int     `json:"present"`
	Absent     int     `json:"absent"`
	Late       int     `json:"late"`
	Excused    int     `json:"excused"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

func (c *Counts) Add(s Status) {
	switch s {
	case StatusPresent:
		c.Present++
	case StatusAbsent:
		c.Absent++
	case StatusLate:
		c.Late++
	case StatusExcused:
		c.Excused++
	default:
		return
	}
	c.Total++
	c.Percentage = Percentage(c.Present+c.Late, c.Total)
}

// Percentage returns attended/total as a percentage rounded to 2 decimals.
func Percentage(attended, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(attended)*10000/float64(total)) / 100
}

type StudentSummary struct {
	StudentID  string `json:"student_id"`
	Name       string `json:"name"`
	RollNumber string `json:"roll_number"`
	Counts
}

type ClassReport struct {
	ClassID  string           `json:"class_id"`
	From     core.Date        `json:"from"`
	To       core.Date        `json:"to"`
	Overall  Counts           `json:"overall"`
	Students []StudentSummary `json:"students"`
}

type StudentReport struct {
	StudentID string    `json:"student_id"`
	From      core.Date `json:"from"`
	To        core.Date `json:"to"`
	Counts    Counts    `json:"counts"`
	Records   []Record  `json:"records"`
}

// TrendPoint is one day of a class attendance series.
type TrendPoint struct {
	Date core.Date `json:"date"`
	Counts
}
