package echoapi_test

import (
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/attendly/core/user"
	testutil "github.com/trezcool/attendly/tests"
)

func Test_userApi_query(t *testing.T) {
	env.Reset()
	sch, principal := env.RegisterSchool(t, "GHS")
	otherSch, _ := env.RegisterSchool(t, "OTH")

	now := time.Now()
	coord := testutil.CreateUser(t, env.UserRepo, sch.ID, "Carol Coord", "carol", "carol@ghs.test", "", []string{user.RoleCoordinator, user.RoleTeacher}, true, now.Add(time.Hour))
	teacher := testutil.CreateUser(t, env.UserRepo, sch.ID, "Tom Teacher", "tom", "", "", []string{user.RoleTeacher}, true, now.Add(2*time.Hour))
	student := testutil.CreateUser(t, env.UserRepo, sch.ID, "Amani Student", "amani", "", "", []string{user.RoleStudent}, true, now.Add(3*time.Hour))
	naughty := testutil.CreateUser(t, env.UserRepo, sch.ID, "N Dog", "ndog", "", "", []string{user.RoleStudent}, false, now.Add(4*time.Hour))
	testutil.CreateUser(t, env.UserRepo, otherSch.ID, "Tom Other", "tom", "", "", []string{user.RoleTeacher}, true)

	path := func(search, ordering string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/api/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }
	token := getToken(t, principal)

	tests := []httpTest{
		{name: "auth required", path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "principal required", path: "/api/users", token: getToken(t, coord), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "own school only", path: "/api/users", token: token, wantData: marchallList(t, principal, coord, teacher, student, naughty)},
		{name: "search (unknown)", path: path("lol", "", nil), token: token, wantData: marchallList(t)},
		{name: "search=TOM", path: path("TOM", "", nil), token: token, wantData: marchallList(t, teacher)},
		{name: "role=teacher", path: path("", "", nil, user.RoleTeacher), token: token, wantData: marchallList(t, coord, teacher)},
		{name: "role=principal,student", path: path("", "", nil, user.RolePrincipal, user.RoleStudent), token: token,
			wantData: marchallList(t, principal, student, naughty)},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: token, wantData: marchallList(t, naughty)},
		{name: "all combo", path: path("a", "", bPtr(true), user.RoleStudent), token: token, wantData: marchallList(t, student)},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
	}
	runHTTPTests(t, tests)

	t.Run("ordering", func(t *testing.T) {
		ids := func(p string) []string {
			rec := serve(http.MethodGet, p, token)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var users []user.User
			unmarshal(t, rec, &users)
			out := make([]string, 0, len(users))
			for _, u := range users {
				out = append(out, u.ID)
			}
			return out
		}
		assert.Equal(t, []string{naughty.ID, student.ID, teacher.ID, coord.ID, principal.ID}, ids(path("", "-created_at", nil)))
		assert.Equal(t, []string{naughty.ID, student.ID, coord.ID, principal.ID, teacher.ID}, ids(path("", "is_active,name", nil)))
		// unknown fields are ignored
		assert.Equal(t, []string{student.ID, coord.ID, principal.ID, naughty.ID, teacher.ID}, ids(path("", "password_hash,name", nil)))
	})
}

func Test_userApi_detail(t *testing.T) {
	env.Reset()
	sch, principal := env.RegisterSchool(t, "GHS")
	otherSch, otherPrincipal := env.RegisterSchool(t, "OTH")
	teacher := testutil.CreateUser(t, env.UserRepo, sch.ID, "Tom Teacher", "tom", "tom@ghs.test", testutil.Password, []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, env.UserRepo, sch.ID, "Amani Student", "amani", "", testutil.Password, []string{user.RoleStudent}, true)
	foreign := testutil.CreateUser(t, env.UserRepo, otherSch.ID, "Tom Other", "tom", "", "", []string{user.RoleTeacher}, true)
	notFound := marchallObj(t, httpErr{Error: "not found"})

	tests := []httpTest{
		{name: "self", path: "/api/users/" + teacher.ID, token: getToken(t, teacher), wantData: marchallObj(t, teacher)},
		{name: "someone else", path: "/api/users/" + student.ID, token: getToken(t, teacher), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "principal", path: "/api/users/" + student.ID, token: getToken(t, principal), wantData: marchallObj(t, student)},
		{name: "other school", path: "/api/users/" + foreign.ID, token: getToken(t, principal), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "unknown", path: "/api/users/nope", token: getToken(t, otherPrincipal), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "roles", path: "/api/users/roles", token: getToken(t, student), wantData: marchallObj(t, user.Roles)},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
	}
	runHTTPTests(t, tests)

	t.Run("update self", func(t *testing.T) {
		rec := serve(http.MethodPut, "/api/users/"+teacher.ID, getToken(t, teacher), []byte(`{"name":"  Tommy Teacher "}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got user.User
		unmarshal(t, rec, &got)
		assert.Equal(t, "Tommy Teacher", got.Name)
		assert.Equal(t, "tom", got.Username)
	})
	t.Run("no self promotion", func(t *testing.T) {
		rec := serve(http.MethodPut, "/api/users/"+teacher.ID, getToken(t, teacher), []byte(`{"roles":["principal"]}`))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})
	t.Run("principal updates roles", func(t *testing.T) {
		rec := serve(http.MethodPut, "/api/users/"+teacher.ID, getToken(t, principal), []byte(`{"roles":["teacher","coordinator"]}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, userOf(t, teacher.ID).HasRole(user.RoleCoordinator))
	})
	t.Run("taken username", func(t *testing.T) {
		rec := serve(http.MethodPut, "/api/users/"+teacher.ID, getToken(t, principal), []byte(`{"username":"amani"}`))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		}, rec)
	})
}

func Test_userApi_createAndDestroy(t *testing.T) {
	env.Reset()
	sch, principal := env.RegisterSchool(t, "GHS")
	token := getToken(t, principal)

	t.Run("username or email required", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/users", token, marchallObj(t, user.NewUser{
			Name: "Nobody", Password: testutil.Password, PasswordConfirm: testutil.Password, Roles: []string{user.RoleCoordinator},
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	var coordID string
	t.Run("created", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/users", token, marchallObj(t, user.NewUser{
			Name: "Carol Coord", Username: "Carol", Password: testutil.Password, PasswordConfirm: testutil.Password,
			Roles: []string{user.RoleCoordinator},
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var got user.User
		unmarshal(t, rec, &got)
		assert.Equal(t, sch.ID, got.SchoolID)
		assert.Equal(t, "carol", got.Username)
		coordID = got.ID
	})

	a := testutil.CreateUser(t, env.UserRepo, sch.ID, "A", "usera", "", "", []string{user.RoleStudent}, true)
	b := testutil.CreateUser(t, env.UserRepo, sch.ID, "B", "userb", "", "", []string{user.RoleStudent}, true)

	tests := []httpTest{
		{name: "no suicide", method: http.MethodDelete, path: "/api/users/" + principal.ID, token: token,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "no bulk suicide", method: http.MethodDelete, path: "/api/users?id=" + a.ID + "&id=" + principal.ID, token: token,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "principal required", method: http.MethodDelete, path: "/api/users/" + coordID, token: getToken(t, userOf(t, coordID)),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "deleted", method: http.MethodDelete, path: "/api/users/" + coordID, token: token, wantCode: http.StatusNoContent},
		{name: "bulk deleted", method: http.MethodDelete, path: "/api/users?id=" + a.ID + "&id=" + b.ID, token: token, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt.method, tt.path, tt.token)
			checkCodeAndData(t, tt, rec)
		})
	}

	rec := serve(http.MethodGet, "/api/users", token)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, userOf(t, principal.ID))}, rec)
}
