package holiday_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/holiday"
	testutil "github.com/trezcool/attendly/tests"
)

func TestService(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	sch, _ := env.RegisterSchool(t, "HOL")
	other, _ := env.RegisterSchool(t, "HOL2")
	today := core.Today()

	midterm, err := env.Holidays.Create(ctx, sch.ID, holiday.HolidayData{
		Name: "  Mid-term break ", StartDate: today.AddDays(10), EndDate: today.AddDays(14), Category: holiday.CategorySchool,
	})
	require.NoError(t, err)
	assert.Equal(t, "Mid-term break", midterm.Name)

	single, err := env.Holidays.Create(ctx, sch.ID, holiday.HolidayData{
		Name: "Independence Day", StartDate: today.AddDays(20), Category: holiday.CategoryNational,
	})
	require.NoError(t, err)
	assert.Equal(t, single.StartDate, single.EndDate, "end date defaults to the start date")

	// another school is free to use the same days
	_, err = env.Holidays.Create(ctx, other.ID, holiday.HolidayData{
		Name: "Retreat", StartDate: today.AddDays(12), Category: holiday.CategorySchool,
	})
	require.NoError(t, err)

	t.Run("rejected", func(t *testing.T) {
		tests := []struct {
			name      string
			data      holiday.HolidayData
			wantField string
		}{
			{
				name:      "adjacent",
				data:      holiday.HolidayData{Name: "Long weekend", StartDate: today.AddDays(15), Category: holiday.CategoryFestival},
				wantField: "start_date",
			},
			{
				name:      "in the past",
				data:      holiday.HolidayData{Name: "Too late", StartDate: today.AddDays(-1), Category: holiday.CategoryFestival},
				wantField: "start_date",
			},
			{
				name:      "bad category",
				data:      holiday.HolidayData{Name: "Weird", StartDate: today.AddDays(40), Category: "PARTY"},
				wantField: "category",
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := env.Holidays.Create(ctx, sch.ID, tt.data)
				require.Error(t, err)
				switch e := err.(type) {
				case *core.ValidationError:
					assert.Equal(t, tt.wantField, e.Fields[0].Field)
				default:
					assert.Contains(t, err.Error(), tt.wantField)
				}
			})
		}
	})

	t.Run("update keeps its own dates", func(t *testing.T) {
		upd, err := env.Holidays.Update(ctx, midterm, holiday.HolidayData{
			Name: "Mid-term", StartDate: midterm.StartDate, EndDate: midterm.EndDate.AddDays(1), Category: holiday.CategorySchool,
		})
		require.NoError(t, err)
		assert.Equal(t, today.AddDays(15), upd.EndDate)
	})

	t.Run("list", func(t *testing.T) {
		hols, err := env.Holidays.List(ctx, sch.ID, holiday.QueryFilter{})
		require.NoError(t, err)
		require.Len(t, hols, 2)
		assert.Equal(t, midterm.ID, hols[0].ID)

		hols, err = env.Holidays.List(ctx, sch.ID, holiday.QueryFilter{Category: holiday.CategoryNational})
		require.NoError(t, err)
		require.Len(t, hols, 1)
		assert.Equal(t, single.ID, hols[0].ID)
	})

	t.Run("is holiday", func(t *testing.T) {
		h, ok, err := env.Holidays.IsHoliday(ctx, sch.ID, today.AddDays(12))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, midterm.ID, h.ID)

		_, ok, err = env.Holidays.IsHoliday(ctx, sch.ID, today.AddDays(17))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("tenant scoped", func(t *testing.T) {
		_, err := env.Holidays.Get(ctx, other.ID, midterm.ID)
		assert.Equal(t, holiday.ErrNotFound, err)
		assert.Equal(t, holiday.ErrNotFound, env.Holidays.Delete(ctx, other.ID, midterm.ID))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, env.Holidays.Delete(ctx, sch.ID, single.ID))
		_, err := env.Holidays.Get(ctx, sch.ID, single.ID)
		assert.True(t, core.IsNotFound(err))
	})
}
