package school

import (
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
)

// Currency of every amount, in minor units.
const Currency = "USD"

// TrialPlanID identifies the free subscription granted on registration.
const TrialPlanID = "trial"

var ErrUnknownPlan = errors.New("unknown plan")

type Plan struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	PricePerStudent int64    `json:"price_per_student"` // minor units, per student per year
	MinStudents     int      `json:"min_students"`
	Features        []string `json:"features"`
}

// Plans is the pricing catalog, cheapest first.
var Plans = []Plan{
	{
		ID: "basic", Name: "Basic", PricePerStudent: 300, MinStudents: 50,
		Features: []string{"Attendance marking", "Holiday calendar", "Class & student management"},
	},
	{
		ID: "standard", Name: "Standard", PricePerStudent: 500, MinStudents: 100,
		Features: []string{"Everything in Basic", "Attendance reports & trends", "Coordinator role", "Audit logs"},
	},
	{
		ID: "premium", Name: "Premium", PricePerStudent: 800, MinStudents: 200,
		Features: []string{"Everything in Standard", "Bulk student import", "Priority support", "Database administration"},
	},
}

func PlanByID(id string) (Plan, bool) {
	for _, p := range Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

type Quote struct {
	PlanID           string `json:"plan_id"`
	Students         int    `json:"students"`
	BillableStudents int    `json:"billable_students"`
	PricePerStudent  int64  `json:"price_per_student"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

// NewQuote prices a yearly subscription: every plan bills at least its minimum number of students.
func NewQuote(planID string, students int) (Quote, error) {
	plan, ok := PlanByID(planID)
	if !ok {
		return Quote{}, core.NewValidationError(ErrUnknownPlan, core.FieldError{Field: "plan_id", Error: ErrUnknownPlan.Error()})
	}
	if students < 0 {
		return Quote{}, core.NewFieldError("students", "students cannot be negative")
	}
	billable := students
	if billable < plan.MinStudents {
		billable = plan.MinStudents
	}
	return Quote{
		PlanID:           plan.ID,
		Students:         students,
		BillableStudents: billable,
		PricePerStudent:  plan.PricePerStudent,
		Amount:           int64(billable) * plan.PricePerStudent,
		Currency:         Currency,
	}, nil
}
