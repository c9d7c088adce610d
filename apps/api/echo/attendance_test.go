package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/academic"
	"github.com/trezcool/attendly/core/attendance"
	"github.com/trezcool/attendly/core/audit"
	"github.com/trezcool/attendly/core/holiday"
	"github.com/trezcool/attendly/core/user"
	testutil "github.com/trezcool/attendly/tests"
)

func markData(t *testing.T, classID string, day core.Date, entries ...attendance.Entry) []byte {
	return marchallObj(t, attendance.MarkAttendance{ClassID: classID, Date: day, Entries: entries})
}

func Test_attendanceApi_mark(t *testing.T) {
	env.Reset()
	f := env.NewFixture(t, "GHS")
	amani, baraka := f.Students[0], f.Students[1]
	teacherTkn := getToken(t, userOf(t, f.Teacher.UserID))
	yesterday := core.Today().AddDays(-1)

	tina, err := env.Academics.CreateTeacher(context.Background(), f.School, academic.NewTeacher{
		Name: "Tina Teacher", Username: "tina", Password: testutil.Password, PasswordConfirm: testutil.Password,
	})
	require.NoError(t, err)
	coord := testutil.CreateUser(t, env.UserRepo, f.School.ID, "Carol", "carol", "", "", []string{user.RoleCoordinator}, true)

	present := attendance.Entry{StudentID: amani.ID, Status: attendance.StatusPresent}
	fieldErr := func(fld, msg string) []byte { return marchallObj(t, map[string]string{fld: msg}) }

	tests := []httpTest{
		{name: "students cannot mark", path: "/api/attendance", token: getToken(t, userOf(t, amani.UserID)),
			body: markData(t, f.Class.ID, yesterday, present), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "not their class", path: "/api/attendance", token: getToken(t, userOf(t, tina.UserID)),
			body: markData(t, f.Class.ID, yesterday, present), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "entries required", path: "/api/attendance", token: teacherTkn,
			body: markData(t, f.Class.ID, yesterday), wantCode: http.StatusBadRequest},
		{name: "bad status", path: "/api/attendance", token: teacherTkn,
			body: markData(t, f.Class.ID, yesterday, attendance.Entry{StudentID: amani.ID, Status: "SICK"}), wantCode: http.StatusBadRequest},
		{name: "future", path: "/api/attendance", token: teacherTkn,
			body:     markData(t, f.Class.ID, core.Today().AddDays(1), present),
			wantCode: http.StatusBadRequest, wantData: fieldErr("date", attendance.ErrFutureDate.Error())},
		{name: "out of session", path: "/api/attendance", token: teacherTkn,
			body:     markData(t, f.Class.ID, core.Today().AddDays(-31), present),
			wantCode: http.StatusBadRequest, wantData: fieldErr("date", attendance.ErrOutOfSession.Error())},
		{name: "not enrolled", path: "/api/attendance", token: teacherTkn,
			body:     markData(t, f.Class.ID, yesterday, present, attendance.Entry{StudentID: "nope", Status: attendance.StatusAbsent}),
			wantCode: http.StatusBadRequest, wantData: fieldErr("entries[1].student_id", attendance.ErrNotEnrolled.Error())},
		{name: "listed twice", path: "/api/attendance", token: teacherTkn,
			body:     markData(t, f.Class.ID, yesterday, present, present),
			wantCode: http.StatusBadRequest, wantData: fieldErr("entries[1].student_id", attendance.ErrDuplicate.Error())},
		{name: "unknown class", path: "/api/attendance", token: teacherTkn,
			body: markData(t, "nope", yesterday, present), wantCode: http.StatusNotFound},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
	}
	runHTTPTests(t, tests)

	t.Run("class teacher marks", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/attendance", teacherTkn, markData(t, f.Class.ID, yesterday,
			present, attendance.Entry{StudentID: baraka.ID, Status: attendance.StatusLate, Remark: " bus "}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var records []attendance.Record
		unmarshal(t, rec, &records)
		require.Len(t, records, 2)
		for _, r := range records {
			assert.Equal(t, f.Teacher.UserID, r.MarkedBy)
			if r.StudentID == baraka.ID {
				assert.Equal(t, "bus", r.Remark)
			}
		}
	})
	t.Run("coordinator overwrites", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/attendance", getToken(t, coord), markData(t, f.Class.ID, yesterday,
			attendance.Entry{StudentID: amani.ID, Status: attendance.StatusAbsent}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = serve(http.MethodGet, "/api/attendance/sheet?class_id="+f.Class.ID+"&date="+yesterday.String(), teacherTkn)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sheet attendance.Sheet
		unmarshal(t, rec, &sheet)
		require.Len(t, sheet.Rows, 2)
		statuses := map[string]attendance.Status{}
		for _, row := range sheet.Rows {
			statuses[row.StudentID] = row.Status
		}
		assert.Equal(t, map[string]attendance.Status{amani.ID: attendance.StatusAbsent, baraka.ID: attendance.StatusLate}, statuses)
	})
	t.Run("audited", func(t *testing.T) {
		page, err := env.Audit.List(context.Background(), f.School.ID, audit.QueryFilter{EntityType: "attendance"}, core.PageParams{})
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		actors := make([]string, 0, 2)
		for _, e := range page.Items {
			assert.Equal(t, f.Class.ID+"@"+yesterday.String(), e.EntityID)
			assert.Equal(t, audit.ActionUpdate, e.Action)
			actors = append(actors, e.ActorID)
		}
		assert.ElementsMatch(t, []string{f.Teacher.UserID, coord.ID}, actors)
	})
}

func Test_attendanceApi_holiday(t *testing.T) {
	env.Reset()
	f := env.NewFixture(t, "GHS")
	today := core.Today()
	createHoliday(t, f.School.ID, "Founders", today, today, holiday.CategorySchool)
	token := getToken(t, f.Principal)

	rec := serve(http.MethodPost, "/api/attendance", token, markData(t, f.Class.ID, today,
		attendance.Entry{StudentID: f.Students[0].ID, Status: attendance.StatusPresent}))
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"date": attendance.ErrHoliday.Error() + ": Founders"}),
	}, rec)

	rec = serve(http.MethodGet, "/api/attendance/sheet?class_id="+f.Class.ID, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sheet attendance.Sheet
	unmarshal(t, rec, &sheet)
	assert.Equal(t, "Founders", sheet.Holiday)
	assert.True(t, sheet.Date.Equal(today))
	for _, row := range sheet.Rows {
		assert.Empty(t, row.Status)
	}
}

func Test_attendanceApi_sheetParams(t *testing.T) {
	env.Reset()
	f := env.NewFixture(t, "GHS")
	token := getToken(t, f.Principal)

	tests := []httpTest{
		{name: "class required", path: "/api/attendance/sheet", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"class_id": "this field is required"})},
		{name: "bad date", path: "/api/attendance/sheet?class_id=" + f.Class.ID + "&date=15/10/2026", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"date": "date must be formatted as YYYY-MM-DD"})},
		{name: "unknown class", path: "/api/attendance/sheet?class_id=nope", token: token, wantCode: http.StatusNotFound},
		{name: "bad period", path: "/api/attendance/reports/classes/" + f.Class.ID + "?from=yesterday", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"from": "date must be formatted as YYYY-MM-DD"})},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
	}
	runHTTPTests(t, tests)
}

func Test_attendanceApi_reports(t *testing.T) {
	env.Reset()
	f := env.NewFixture(t, "GHS")
	amani, baraka := f.Students[0], f.Students[1]
	ctx := context.Background()
	today := core.Today()

	for _, m := range []struct {
		day    core.Date
		amani  attendance.Status
		baraka attendance.Status
	}{
		{today.AddDays(-2), attendance.StatusPresent, attendance.StatusLate},
		{today.AddDays(-1), attendance.StatusAbsent, attendance.StatusPresent},
	} {
		_, err := env.Attendance.Mark(ctx, f.School.ID, f.Principal, attendance.MarkAttendance{
			ClassID: f.Class.ID, Date: m.day, Entries: []attendance.Entry{
				{StudentID: amani.ID, Status: m.amani},
				{StudentID: baraka.ID, Status: m.baraka},
			},
		})
		require.NoError(t, err)
	}
	teacherTkn := getToken(t, userOf(t, f.Teacher.UserID))
	amaniTkn := getToken(t, userOf(t, amani.UserID))

	t.Run("class report", func(t *testing.T) {
		rec := serve(http.MethodGet, "/api/attendance/reports/classes/"+f.Class.ID, teacherTkn)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var report attendance.ClassReport
		unmarshal(t, rec, &report)
		assert.True(t, report.From.Equal(f.Session.StartDate))
		assert.True(t, report.To.Equal(today))
		assert.Equal(t, 4, report.Overall.Total)
		assert.Equal(t, 75.0, report.Overall.Percentage)
		require.Len(t, report.Students, 2)
		for _, s := range report.Students {
			switch s.StudentID {
			case amani.ID:
				assert.Equal(t, 50.0, s.Percentage)
			case baraka.ID:
				assert.Equal(t, 100.0, s.Percentage)
			}
		}
	})
	t.Run("class report, period", func(t *testing.T) {
		p := "/api/attendance/reports/classes/" + f.Class.ID + "?from=" + today.AddDays(-1).String() + "&to=" + today.String()
		rec := serve(http.MethodGet, p, teacherTkn)
		var report attendance.ClassReport
		unmarshal(t, rec, &report)
		assert.Equal(t, 2, report.Overall.Total)
		assert.Equal(t, 1, report.Overall.Absent)
	})
	t.Run("trend", func(t *testing.T) {
		rec := serve(http.MethodGet, "/api/attendance/reports/classes/"+f.Class.ID+"/trend", teacherTkn)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var points []attendance.TrendPoint
		unmarshal(t, rec, &points)
		require.Len(t, points, 2)
		assert.True(t, points[0].Date.Equal(today.AddDays(-2)))
		assert.Equal(t, 100.0, points[0].Percentage)
		assert.Equal(t, 50.0, points[1].Percentage)
	})
	t.Run("students read their own", func(t *testing.T) {
		rec := serve(http.MethodGet, "/api/attendance/reports/students/"+amani.ID, amaniTkn)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var report attendance.StudentReport
		unmarshal(t, rec, &report)
		assert.Equal(t, 2, report.Counts.Total)
		assert.Len(t, report.Records, 2)

		rec = serve(http.MethodGet, "/api/attendance/reports/me", amaniTkn)
		var own attendance.StudentReport
		unmarshal(t, rec, &own)
		assert.Equal(t, report.StudentID, own.StudentID)
	})

	tests := []httpTest{
		{name: "not someone else's", path: "/api/attendance/reports/students/" + baraka.ID, token: amaniTkn,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "students cannot read class reports", path: "/api/attendance/reports/classes/" + f.Class.ID, token: amaniTkn,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "me, students only", path: "/api/attendance/reports/me", token: teacherTkn, wantCode: http.StatusForbidden},
		{name: "staff read any student", path: "/api/attendance/reports/students/" + baraka.ID, token: teacherTkn},
		{name: "end before start", path: "/api/attendance/reports/classes/" + f.Class.ID + "?from=" + today.String() + "&to=" + today.AddDays(-3).String(),
			token: teacherTkn, wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"to": "end of period is before its start"})},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
	}
	runHTTPTests(t, tests)
}
