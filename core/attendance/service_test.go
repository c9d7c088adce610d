package attendance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/academic"
	"github.com/trezcool/attendly/core/attendance"
	"github.com/trezcool/attendly/core/holiday"
	"github.com/trezcool/attendly/core/user"
	testutil "github.com/trezcool/attendly/tests"
)

func markAll(t *testing.T, env *testutil.Env, f testutil.Fixture, day core.Date, statuses ...attendance.Status) []attendance.Record {
	t.Helper()
	entries := make([]attendance.Entry, 0, len(statuses))
	for i, s := range statuses {
		entries = append(entries, attendance.Entry{StudentID: f.Students[i].ID, Status: s})
	}
	recs, err := env.Attendance.Mark(context.Background(), f.School.ID, f.Principal, attendance.MarkAttendance{
		ClassID: f.Class.ID, Date: day, Entries: entries,
	})
	require.NoError(t, err)
	return recs
}

func fieldOf(t *testing.T, err error) core.FieldError {
	t.Helper()
	require.Error(t, err)
	vErr, ok := err.(*core.ValidationError)
	require.True(t, ok, "got %T: %v", err, err)
	require.NotEmpty(t, vErr.Fields)
	return vErr.Fields[0]
}

func TestService_Mark_upserts(t *testing.T) {
	env := testutil.NewEnv()
	f := env.NewFixture(t, "MARK")
	today := core.Today()

	first := markAll(t, env, f, today, attendance.StatusAbsent, attendance.StatusPresent)
	require.Len(t, first, 2)
	assert.Equal(t, f.Principal.ID, first[0].MarkedBy)

	second := markAll(t, env, f, today, attendance.StatusLate, attendance.StatusPresent)
	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, second[0].ID, "one record per student & day")
	assert.Equal(t, attendance.StatusLate, second[0].Status)

	report, err := env.Attendance.StudentReport(context.Background(), f.School.ID, f.Students[0].ID, core.DateRange{})
	require.NoError(t, err)
	require.Len(t, report.Records, 1)
	assert.Equal(t, attendance.StatusLate, report.Records[0].Status)
}

func TestService_Mark_byRole(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	f := env.NewFixture(t, "ROLES")

	classTeacher, err := env.Users.GetByID(ctx, f.Teacher.UserID)
	require.NoError(t, err)

	other, err := env.Academics.CreateTeacher(ctx, f.School, academic.NewTeacher{
		Name: "Olga Other", Username: "olga", Password: testutil.Password, PasswordConfirm: testutil.Password,
	})
	require.NoError(t, err)
	otherTeacher, err := env.Users.GetByID(ctx, other.UserID)
	require.NoError(t, err)

	coord, err := env.Academics.CreateTeacher(ctx, f.School, academic.NewTeacher{
		Name: "Cyril Coordinator", Username: "cyril", Password: testutil.Password, PasswordConfirm: testutil.Password,
		IsCoordinator: true,
	})
	require.NoError(t, err)
	coordinator, err := env.Users.GetByID(ctx, coord.UserID)
	require.NoError(t, err)

	student, err := env.Users.GetByID(ctx, f.Students[0].UserID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		marker  user.User
		wantErr error
	}{
		{name: "principal", marker: f.Principal},
		{name: "coordinator", marker: coordinator},
		{name: "class teacher", marker: classTeacher},
		{name: "other teacher", marker: otherTeacher, wantErr: core.ErrForbidden},
		{name: "student", marker: student, wantErr: core.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Attendance.Mark(ctx, f.School.ID, tt.marker, attendance.MarkAttendance{
				ClassID: f.Class.ID,
				Date:    core.Today(),
				Entries: []attendance.Entry{{StudentID: f.Students[0].ID, Status: attendance.StatusPresent}},
			})
			assert.Equal(t, tt.wantErr, err)
		})
	}
}

func TestService_Mark_rejects(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	f := env.NewFixture(t, "REJECT")
	today := core.Today()

	stranger, err := env.Academics.CreateStudent(ctx, f.School, academic.NewStudent{
		Name: "Sam Stranger", Username: "sam", Password: testutil.Password, PasswordConfirm: testutil.Password,
	})
	require.NoError(t, err)

	present := func(ids ...string) []attendance.Entry {
		entries := make([]attendance.Entry, 0, len(ids))
		for _, id := range ids {
			entries = append(entries, attendance.Entry{StudentID: id, Status: attendance.StatusPresent})
		}
		return entries
	}

	tests := []struct {
		name      string
		day       core.Date
		entries   []attendance.Entry
		wantField string
		wantErr   error
	}{
		{name: "future", day: today.AddDays(1), entries: present(f.Students[0].ID), wantField: "date", wantErr: attendance.ErrFutureDate},
		{name: "before session", day: today.AddDays(-31), entries: present(f.Students[0].ID), wantField: "date", wantErr: attendance.ErrOutOfSession},
		{name: "not enrolled", day: today, entries: present(f.Students[0].ID, stranger.ID), wantField: "entries[1].student_id", wantErr: attendance.ErrNotEnrolled},
		{name: "listed twice", day: today, entries: present(f.Students[0].ID, f.Students[0].ID), wantField: "entries[1].student_id", wantErr: attendance.ErrDuplicate},
		{name: "no date", entries: present(f.Students[0].ID), wantField: "date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Attendance.Mark(ctx, f.School.ID, f.Principal, attendance.MarkAttendance{
				ClassID: f.Class.ID, Date: tt.day, Entries: tt.entries,
			})
			fe := fieldOf(t, err)
			assert.Equal(t, tt.wantField, fe.Field)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err.(*core.ValidationError).Err, tt.wantErr)
			}
		})
	}

	t.Run("unknown class", func(t *testing.T) {
		_, err := env.Attendance.Mark(ctx, f.School.ID, f.Principal, attendance.MarkAttendance{
			ClassID: "nope", Date: today, Entries: present(f.Students[0].ID),
		})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("holiday", func(t *testing.T) {
		_, err := env.Holidays.Create(ctx, f.School.ID, holiday.HolidayData{
			Name: "Heroes Day", StartDate: today, EndDate: today, Category: holiday.CategoryNational,
		})
		require.NoError(t, err)

		_, err = env.Attendance.Mark(ctx, f.School.ID, f.Principal, attendance.MarkAttendance{
			ClassID: f.Class.ID, Date: today, Entries: present(f.Students[0].ID),
		})
		fe := fieldOf(t, err)
		assert.Equal(t, "date is a holiday: Heroes Day", fe.Error)

		sheet, err := env.Attendance.Sheet(ctx, f.School.ID, f.Class.ID, today)
		require.NoError(t, err)
		assert.Equal(t, "Heroes Day", sheet.Holiday)
	})
}

func TestService_Sheet(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	f := env.NewFixture(t, "SHEET")

	_, err := env.Attendance.Mark(ctx, f.School.ID, f.Principal, attendance.MarkAttendance{
		ClassID: f.Class.ID,
		Date:    core.Today(),
		Entries: []attendance.Entry{{StudentID: f.Students[1].ID, Status: attendance.StatusExcused, Remark: "  sick  "}},
	})
	require.NoError(t, err)

	sheet, err := env.Attendance.Sheet(ctx, f.School.ID, f.Class.ID, core.Date{})
	require.NoError(t, err)
	assert.Equal(t, core.Today(), sheet.Date)
	assert.Empty(t, sheet.Holiday)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, attendance.SheetRow{StudentID: f.Students[0].ID, Name: "Amani Student"}, sheet.Rows[0])
	assert.Equal(t, attendance.StatusExcused, sheet.Rows[1].Status)
	assert.Equal(t, "sick", sheet.Rows[1].Remark)

	_, err = env.Attendance.Sheet(ctx, f.School.ID, "nope", core.Today())
	assert.True(t, core.IsNotFound(err))
}

func TestService_reports(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	f := env.NewFixture(t, "REPORT")
	today := core.Today()

	markAll(t, env, f, today.AddDays(-2), attendance.StatusPresent, attendance.StatusAbsent)
	markAll(t, env, f, today.AddDays(-1), attendance.StatusLate, attendance.StatusExcused)
	markAll(t, env, f, today, attendance.StatusPresent, attendance.StatusPresent)

	t.Run("class", func(t *testing.T) {
		report, err := env.Attendance.ClassReport(ctx, f.School.ID, f.Class.ID, core.DateRange{})
		require.NoError(t, err)
		assert.Equal(t, f.Session.StartDate, report.From)
		assert.Equal(t, today, report.To, "open periods stop at today")
		assert.Equal(t, attendance.Counts{Present: 3, Absent: 1, Late: 1, Excused: 1, Total: 6, Percentage: 66.67}, report.Overall)

		require.Len(t, report.Students, 2)
		assert.Equal(t, "Amani Student", report.Students[0].Name)
		assert.Equal(t, 100.0, report.Students[0].Percentage)
		assert.Equal(t, 33.33, report.Students[1].Percentage)
	})

	t.Run("class, bounded", func(t *testing.T) {
		report, err := env.Attendance.ClassReport(ctx, f.School.ID, f.Class.ID, core.DateRange{From: today.AddDays(-1), To: today})
		require.NoError(t, err)
		assert.Equal(t, 4, report.Overall.Total)
		assert.Equal(t, 75.0, report.Overall.Percentage)
	})

	t.Run("class, reversed period", func(t *testing.T) {
		_, err := env.Attendance.ClassReport(ctx, f.School.ID, f.Class.ID, core.DateRange{From: today, To: today.AddDays(-1)})
		assert.Equal(t, "to", fieldOf(t, err).Field)
	})

	t.Run("student", func(t *testing.T) {
		report, err := env.Attendance.StudentReport(ctx, f.School.ID, f.Students[1].ID, core.DateRange{})
		require.NoError(t, err)
		assert.Len(t, report.Records, 3)
		assert.Equal(t, attendance.Counts{Present: 1, Absent: 1, Excused: 1, Total: 3, Percentage: 33.33}, report.Counts)
	})

	t.Run("trend", func(t *testing.T) {
		points, err := env.Attendance.Trend(ctx, f.School.ID, f.Class.ID, core.DateRange{})
		require.NoError(t, err)
		require.Len(t, points, 3)
		assert.Equal(t, today.AddDays(-2), points[0].Date)
		assert.Equal(t, 50.0, points[0].Percentage)
		assert.Equal(t, 50.0, points[1].Percentage)
		assert.Equal(t, 100.0, points[2].Percentage)
	})

	t.Run("left the class", func(t *testing.T) {
		other, err := env.Academics.CreateClass(ctx, f.School.ID, academic.ClassData{SessionID: f.Session.ID, Name: "Grade 6"})
		require.NoError(t, err)
		_, err = env.Academics.EnrollStudent(ctx, f.School.ID, f.Students[1].ID, other.ID)
		require.NoError(t, err)

		report, err := env.Attendance.ClassReport(ctx, f.School.ID, f.Class.ID, core.DateRange{})
		require.NoError(t, err)
		require.Len(t, report.Students, 2, "past records still count")
		assert.Equal(t, "Baraka Student", report.Students[1].Name)
	})
}
