package school

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/attendly/core"
)

func TestNewQuote(t *testing.T) {
	tests := []struct {
		name     string
		planID   string
		students int
		want     Quote
		wantErr  bool
	}{
		{
			name: "below minimum", planID: "basic", students: 20,
			want: Quote{PlanID: "basic", Students: 20, BillableStudents: 50, PricePerStudent: 300, Amount: 15000, Currency: Currency},
		},
		{
			name: "above minimum", planID: "standard", students: 240,
			want: Quote{PlanID: "standard", Students: 240, BillableStudents: 240, PricePerStudent: 500, Amount: 120000, Currency: Currency},
		},
		{
			name: "no students", planID: "premium", students: 0,
			want: Quote{PlanID: "premium", BillableStudents: 200, PricePerStudent: 800, Amount: 160000, Currency: Currency},
		},
		{name: "unknown plan", planID: "gold", students: 10, wantErr: true},
		{name: "trial is not for sale", planID: TrialPlanID, students: 10, wantErr: true},
		{name: "negative students", planID: "basic", students: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewQuote(tt.planID, tt.students)
			if tt.wantErr {
				require.Error(t, err)
				assert.IsType(t, &core.ValidationError{}, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubscription_IsCurrent(t *testing.T) {
	sub := Subscription{StartsOn: core.NewDate(2026, 1, 1), EndsOn: core.NewDate(2026, 12, 31), Status: StatusActive}

	assert.True(t, sub.IsCurrent(core.NewDate(2026, 1, 1)))
	assert.True(t, sub.IsCurrent(core.NewDate(2026, 12, 31)))
	assert.False(t, sub.IsCurrent(core.NewDate(2027, 1, 1)))

	sub.Status = StatusCancelled
	assert.False(t, sub.IsCurrent(core.NewDate(2026, 6, 1)))
}
