package echoapi_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/academic"
	"github.com/trezcool/attendly/core/user"
	testutil "github.com/trezcool/attendly/tests"
)

func Test_academicApi_sessions(t *testing.T) {
	env.Reset()
	f := env.NewFixture(t, "GHS")
	token := getToken(t, f.Principal)
	today := core.Today()

	tests := []httpTest{
		{name: "active, any member", method: http.MethodGet, path: "/api/sessions/active",
			token: getToken(t, userOf(t, f.Students[0].UserID)), wantData: marchallObj(t, f.Session)},
		{name: "list, staff only", method: http.MethodGet, path: "/api/sessions",
			token: getToken(t, userOf(t, f.Students[0].UserID)), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "create, principal only", method: http.MethodPost, path: "/api/sessions",
			token: getToken(t, userOf(t, f.Teacher.UserID)), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "end before start", method: http.MethodPost, path: "/api/sessions", token: token,
			body: marchallObj(t, academic.SessionData{Name: "Next", StartDate: today.AddDays(40), EndDate: today.AddDays(40)}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"end_date": academic.ErrInvalidDateRange.Error()})},
		{name: "in use", method: http.MethodDelete, path: "/api/sessions/" + f.Session.ID, token: token,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: academic.ErrSessionInUse.Error()})},
		{name: "unknown", method: http.MethodGet, path: "/api/sessions/nope", token: token, wantCode: http.StatusNotFound},
	}
	runHTTPTests(t, tests)

	var next academic.Session
	t.Run("created inactive", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/sessions", token,
			marchallObj(t, academic.SessionData{Name: " Next year ", StartDate: today.AddDays(40), EndDate: today.AddDays(300)}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &next)
		assert.Equal(t, "Next year", next.Name)
		assert.False(t, next.IsActive)
	})
	t.Run("activated", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/sessions/"+next.ID+"/activate", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = serve(http.MethodGet, "/api/sessions", getToken(t, userOf(t, f.Teacher.UserID)))
		var sessions []academic.Session
		unmarshal(t, rec, &sessions)
		require.Len(t, sessions, 2)
		for _, s := range sessions {
			assert.Equal(t, s.ID == next.ID, s.IsActive, s.Name)
		}
	})
	t.Run("deleted", func(t *testing.T) {
		rec := serve(http.MethodDelete, "/api/sessions/"+next.ID, token)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func Test_academicApi_classes(t *testing.T) {
	env.Reset()
	f := env.NewFixture(t, "GHS")
	other := env.NewFixture(t, "OTH")
	coord := testutil.CreateUser(t, env.UserRepo, f.School.ID, "Carol", "carol", "", "", []string{user.RoleCoordinator}, true)
	teacherTkn := getToken(t, userOf(t, f.Teacher.UserID))

	tests := []httpTest{
		{name: "teacher lists", method: http.MethodGet, path: "/api/classes", token: teacherTkn, wantData: marchallList(t, f.Class)},
		{name: "by session", method: http.MethodGet, path: "/api/classes?session_id=nope", token: teacherTkn, wantData: marchallList(t)},
		{name: "other school's class", method: http.MethodGet, path: "/api/classes/" + other.Class.ID, token: teacherTkn, wantCode: http.StatusNotFound},
		{name: "teacher cannot create", method: http.MethodPost, path: "/api/classes", token: teacherTkn,
			body: marchallObj(t, academic.ClassData{SessionID: f.Session.ID, Name: "Grade 6"}), wantCode: http.StatusForbidden},
		{name: "unknown session", method: http.MethodPost, path: "/api/classes", token: getToken(t, coord),
			body:     marchallObj(t, academic.ClassData{SessionID: other.Session.ID, Name: "Grade 6"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"session_id": "unknown session"})},
	}
	runHTTPTests(t, tests)

	t.Run("coordinator creates & renames", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/classes", getToken(t, coord),
			marchallObj(t, academic.ClassData{SessionID: f.Session.ID, Name: "Grade 6", Section: "B"}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var class academic.Class
		unmarshal(t, rec, &class)

		rec = serve(http.MethodPut, "/api/classes/"+class.ID, getToken(t, coord),
			marchallObj(t, academic.ClassData{SessionID: f.Session.ID, Name: "Grade 6", Section: "C"}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &class)
		assert.Equal(t, "C", class.Section)

		rec = serve(http.MethodDelete, "/api/classes/"+class.ID, getToken(t, coord))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func Test_academicApi_teachers(t *testing.T) {
	env.Reset()
	f := env.NewFixture(t, "GHS")
	token := getToken(t, f.Principal)
	class2, err := env.Academics.CreateClass(context.Background(), f.School.ID, academic.ClassData{SessionID: f.Session.ID, Name: "Grade 6"})
	require.NoError(t, err)

	t.Run("managers list", func(t *testing.T) {
		rec := serve(http.MethodGet, "/api/teachers", getToken(t, userOf(t, f.Teacher.UserID)))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		rec = serve(http.MethodGet, "/api/teachers", token)
		var teachers []academic.Teacher
		unmarshal(t, rec, &teachers)
		require.Len(t, teachers, 1)
		assert.Equal(t, f.Class.ID, teachers[0].ClassID)
	})

	var coord academic.Teacher
	t.Run("coordinator created", func(t *testing.T) {
		env.Mail.Reset()
		rec := serve(http.MethodPost, "/api/teachers", token, marchallObj(t, academic.NewTeacher{
			Name: "Carol Coord", Email: "carol@ghs.test", Password: testutil.Password, PasswordConfirm: testutil.Password,
			IsCoordinator: true, Subject: "Maths",
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &coord)
		assert.True(t, coord.IsCoordinator)
		assert.Empty(t, coord.ClassID)
		assert.True(t, userOf(t, coord.UserID).HasRole(user.RoleCoordinator))
		assert.Len(t, env.Mail.SentMessages(), 1)
	})
	t.Run("assign class required", func(t *testing.T) {
		rec := serve(http.MethodPut, "/api/teachers/"+coord.ID+"/class", token, []byte(`{}`))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"class_id": "this field is required"}),
		}, rec)
	})
	t.Run("reassigned", func(t *testing.T) {
		rec := serve(http.MethodPut, "/api/teachers/"+f.Teacher.ID+"/class", getToken(t, userOf(t, coord.UserID)),
			marchallObj(t, academic.AssignClass{ClassID: class2.ID}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got academic.Teacher
		unmarshal(t, rec, &got)
		assert.Equal(t, class2.ID, got.ClassID)
		require.Len(t, got.History, 2)

		active := 0
		for _, a := range got.History {
			if a.IsActive {
				active++
				assert.Equal(t, class2.ID, a.ClassID)
			} else {
				assert.True(t, a.EndedAt.Valid)
			}
		}
		assert.Equal(t, 1, active)
	})
	t.Run("deleted with account", func(t *testing.T) {
		rec := serve(http.MethodDelete, "/api/teachers/"+coord.ID, token)
		require.Equal(t, http.StatusNoContent, rec.Code)
		_, err := env.Users.GetByID(context.Background(), coord.UserID)
		assert.True(t, core.IsNotFound(err))
	})
}

func Test_academicApi_students(t *testing.T) {
	env.Reset()
	f := env.NewFixture(t, "GHS")
	amani, baraka := f.Students[0], f.Students[1]
	teacherTkn := getToken(t, userOf(t, f.Teacher.UserID))
	class2, err := env.Academics.CreateClass(context.Background(), f.School.ID, academic.ClassData{SessionID: f.Session.ID, Name: "Grade 6"})
	require.NoError(t, err)

	tests := []httpTest{
		{name: "students cannot list", method: http.MethodGet, path: "/api/students", token: getToken(t, userOf(t, amani.UserID)),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "by class", method: http.MethodGet, path: "/api/students?class_id=" + f.Class.ID, token: teacherTkn,
			wantData: marchallList(t, amani, baraka)},
		{name: "search", method: http.MethodGet, path: "/api/students?search=BARA", token: teacherTkn, wantData: marchallList(t, baraka)},
		{name: "empty class", method: http.MethodGet, path: "/api/students?class_id=" + class2.ID, token: teacherTkn, wantData: marchallList(t)},
		{name: "me, students only", method: http.MethodGet, path: "/api/students/me", token: teacherTkn, wantCode: http.StatusForbidden},
		{name: "unknown class", method: http.MethodPut, path: "/api/students/" + amani.ID + "/class", token: getToken(t, f.Principal),
			body:     marchallObj(t, academic.AssignClass{ClassID: "nope"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"class_id": "unknown class"})},
	}
	runHTTPTests(t, tests)

	t.Run("me", func(t *testing.T) {
		rec := serve(http.MethodGet, "/api/students/me", getToken(t, userOf(t, baraka.UserID)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got academic.Student
		unmarshal(t, rec, &got)
		assert.Equal(t, baraka.ID, got.ID)
	})
	t.Run("duplicate username", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/students", getToken(t, f.Principal), marchallObj(t, academic.NewStudent{
			Name: "Amani Two", Username: "amani", Password: testutil.Password, PasswordConfirm: testutil.Password,
		}))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		}, rec)
	})
	t.Run("moved", func(t *testing.T) {
		rec := serve(http.MethodPut, "/api/students/"+amani.ID+"/class", getToken(t, f.Principal),
			marchallObj(t, academic.AssignClass{ClassID: class2.ID}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got academic.Student
		unmarshal(t, rec, &got)
		assert.Equal(t, class2.ID, got.ClassID)

		rec = serve(http.MethodGet, "/api/students?class_id="+f.Class.ID, teacherTkn)
		var students []academic.Student
		unmarshal(t, rec, &students)
		require.Len(t, students, 1)
		assert.Equal(t, baraka.ID, students[0].ID)
	})
	t.Run("deleted", func(t *testing.T) {
		rec := serve(http.MethodDelete, "/api/students/"+baraka.ID, teacherTkn)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		rec = serve(http.MethodDelete, "/api/students/"+baraka.ID, getToken(t, f.Principal))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func newImportRequest(t *testing.T, token, classID string, csvData []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if classID != "" {
		require.NoError(t, w.WriteField("class_id", classID))
	}
	if csvData != nil {
		fw, err := w.CreateFormFile("file", "students.csv")
		require.NoError(t, err)
		_, err = fw.Write(csvData)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/students/import", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func Test_academicApi_importStudents(t *testing.T) {
	env.Reset()
	f := env.NewFixture(t, "GHS")
	token := getToken(t, f.Principal)

	t.Run("file required", func(t *testing.T) {
		rec := newImportRequest(t, token, "", nil)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"file": "a CSV file is required"}),
		}, rec)
	})
	t.Run("bad header", func(t *testing.T) {
		rec := newImportRequest(t, token, "", []byte("full_name,username\nJoe,joe\n"))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"file": academic.ErrImportHeader.Error()}),
		}, rec)
	})
	t.Run("teachers cannot import", func(t *testing.T) {
		rec := newImportRequest(t, getToken(t, userOf(t, f.Teacher.UserID)), "", []byte("name,username\nJoe,joe\n"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
	t.Run("imported", func(t *testing.T) {
		env.Mail.Reset()
		csvData := []byte("username,name,email,roll_number\n" +
			"chiku,Chiku Student,chiku@ghs.test,12\n" +
			"amani,Amani Again,,13\n" +
			",No Login,,14\n" +
			"dede,,,15\n" +
			"chiku,Chiku Twin,,16\n")
		rec := newImportRequest(t, token, f.Class.ID, csvData)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res academic.ImportResult
		unmarshal(t, rec, &res)
		require.Len(t, res.Created, 1)
		assert.Equal(t, "chiku", res.Created[0].Username)
		assert.Equal(t, f.Class.ID, res.Created[0].ClassID)

		lines := make([]int, 0, len(res.Failed))
		for _, fl := range res.Failed {
			lines = append(lines, fl.Line)
		}
		assert.Equal(t, []int{3, 4, 5, 6}, lines)
		assert.Equal(t, map[string]string{"username": user.ErrUsernameExists.Error()}, res.Failed[0].Errors)
		assert.Equal(t, map[string]string{"username": "duplicates line 2"}, res.Failed[3].Errors)
		assert.Len(t, env.Mail.SentMessages(), 1)

		students, err := env.Academics.ListStudents(context.Background(), f.School.ID, academic.PersonFilter{ClassID: f.Class.ID})
		require.NoError(t, err)
		assert.Len(t, students, 3)
	})
}
