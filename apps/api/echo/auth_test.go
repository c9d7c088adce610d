package echoapi_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/attendly/apps/api/echo"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
	testutil "github.com/trezcool/attendly/tests"
)

func Test_authApi_login(t *testing.T) {
	env.Reset()
	sch, principal := env.RegisterSchool(t, "GHS")
	testutil.CreateUser(t, env.UserRepo, sch.ID, "N Dog", "ndog", "", testutil.Password, []string{user.RoleTeacher}, false)

	login := func(code, uname, pwd string) []byte {
		return marchallObj(t, LoginRequest{SchoolCode: code, Username: uname, Password: pwd})
	}
	failed := marchallObj(t, httpErr{Error: "authentication failed"})

	tests := []httpTest{
		{name: "unknown role", path: "/api/auth/janitor/login", body: login("GHS", "principal", testutil.Password),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})},
		{name: "required fields", path: "/api/auth/principal/login", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, LoginRequest{SchoolCode: "this field is required", Username: "this field is required", Password: "this field is required"})},
		{name: "unknown school", path: "/api/auth/principal/login", body: login("NOPE", "principal", testutil.Password),
			wantCode: http.StatusBadRequest, wantData: failed},
		{name: "unknown user", path: "/api/auth/principal/login", body: login("GHS", "nobody", testutil.Password),
			wantCode: http.StatusBadRequest, wantData: failed},
		{name: "wrong password", path: "/api/auth/principal/login", body: login("GHS", "principal", "Wr0ng&pass"),
			wantCode: http.StatusBadRequest, wantData: failed},
		{name: "inactive account", path: "/api/auth/teacher/login", body: login("GHS", "ndog", testutil.Password),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "role not assigned", path: "/api/auth/teacher/login", body: login("GHS", "principal", testutil.Password),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "role not assigned to this account"})},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
	}
	runHTTPTests(t, tests)

	t.Run("logged in (code & login are case-insensitive)", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/auth/principal/login", "", login(" ghs ", "PRINCIPAL", testutil.Password))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp LoginResponse
		unmarshal(t, rec, &resp)
		require.NotEmpty(t, resp.Token)

		rec = serve(http.MethodGet, "/api/auth/me", resp.Token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var me MeResponse
		unmarshal(t, rec, &me)
		assert.Equal(t, principal.ID, me.User.ID)
		assert.Equal(t, sch.ID, me.School.ID)
		assert.Equal(t, user.RolePrincipal, me.ActiveRole)
		assert.False(t, me.User.LastLogin.IsZero())
	})
}

func Test_authApi_me(t *testing.T) {
	env.Reset()
	_, principal := env.RegisterSchool(t, "GHS")

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.UserClaims(principal, ""))
	forged, err := other.SignedString([]byte("not-the-secret"))
	require.NoError(t, err)

	expiredClaims := auth.UserClaims(principal, "")
	expiredClaims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	expired, err := auth.GenerateToken(expiredClaims)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "forged token", token: forged, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errInvalidToken)},
		{name: "expired token", token: expired, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errInvalidToken)},
		{name: "ok", token: getToken(t, principal), wantCode: http.StatusOK},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		tests[i].path = "/api/auth/me"
	}
	runHTTPTests(t, tests)

	t.Run("deleted user", func(t *testing.T) {
		ghost := user.User{ID: "ghost", SchoolID: principal.SchoolID, Roles: []string{user.RoleTeacher}}
		rec := serve(http.MethodGet, "/api/auth/me", getToken(t, ghost))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func Test_authApi_refreshToken(t *testing.T) {
	env.Reset()
	sch, principal := env.RegisterSchool(t, "GHS")
	naughty := testutil.CreateUser(t, env.UserRepo, sch.ID, "N Dog", "ndog", "", testutil.Password, []string{user.RoleTeacher}, false)

	stale, err := auth.GenerateToken(auth.UserClaims(principal, "", time.Now().Add(-2*env.Conf.Server.JWTRefreshExpirationDelta).Unix()))
	require.NoError(t, err)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "inactive user not allowed", token: getToken(t, naughty), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "refresh period expired", token: stale, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/auth/token-refresh"
	}
	runHTTPTests(t, tests)

	t.Run("token refreshed & rotated", func(t *testing.T) {
		old := getToken(t, principal)
		rec := serve(http.MethodPost, "/api/auth/token-refresh", old)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// cannot guess new token.. just check that it's usable
		var resp LoginResponse
		unmarshal(t, rec, &resp)
		require.NotEmpty(t, resp.Token)
		assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/api/auth/me", resp.Token).Code)
		assert.Equal(t, http.StatusUnauthorized, serve(http.MethodGet, "/api/auth/me", old).Code)
	})
}

func Test_authApi_logout(t *testing.T) {
	env.Reset()
	_, principal := env.RegisterSchool(t, "GHS")
	token := getToken(t, principal)
	other := getToken(t, principal)

	rec := serve(http.MethodPost, "/api/auth/logout", token)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(http.MethodGet, "/api/auth/me", token)
	checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errInvalidToken)}, rec)

	// other sessions live on
	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/api/auth/me", other).Code)
}

func Test_authApi_registerSchool(t *testing.T) {
	env.Reset()
	env.RegisterSchool(t, "GHS")

	body := func(code string) []byte {
		return marchallObj(t, school.RegisterSchool{
			SchoolName:        "Mwangaza Academy",
			SchoolCode:        code,
			PrincipalName:     "Neema Principal",
			PrincipalUsername: "neema",
			PrincipalEmail:    "neema@mwangaza.test",
			Password:          testutil.Password,
			PasswordConfirm:   testutil.Password,
		})
	}

	tests := []httpTest{
		{name: "required fields", body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{name: "taken code", body: body("ghs"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"school_code": school.ErrCodeExists.Error()})},
		{name: "invalid code", body: body("a b"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"school_code": "school code must be 3 to 32 letters, digits or dashes"})},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/api/auth/register-school"
	}
	runHTTPTests(t, tests)

	t.Run("registered", func(t *testing.T) {
		env.Mail.Reset()
		rec := serve(http.MethodPost, "/api/auth/register-school", "", body("mwa-01"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp RegisterResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, "MWA-01", resp.School.Code)
		assert.Equal(t, []string{user.RolePrincipal}, resp.User.Roles)
		assert.Len(t, env.Mail.SentMessages(), 1)

		rec = serve(http.MethodGet, "/api/school", resp.Token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"code":"MWA-01"`)

		rec = serve(http.MethodGet, "/api/audit-logs?entity_type=school", resp.Token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), `"action":"CREATE"`))
	})
}

func Test_authApi_resetPassword(t *testing.T) {
	env.Reset()
	sch, principal := env.RegisterSchool(t, "GHS")
	successData := marchallObj(t, SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	tests := []httpTest{
		{name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, PasswordResetRequest{SchoolCode: "this field is required", Email: "this field is required"})},
		{name: "invalid email", body: marchallObj(t, PasswordResetRequest{SchoolCode: "GHS", Email: "lol"}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "email must be a valid email address"})},
		{name: "unknown school", body: marchallObj(t, PasswordResetRequest{SchoolCode: "NOPE", Email: principal.Email}),
			wantData: successData, extra: false},
		{name: "unknown email", body: marchallObj(t, PasswordResetRequest{SchoolCode: "GHS", Email: "lol@test.com"}),
			wantData: successData, extra: false},
		{name: "known email", body: marchallObj(t, PasswordResetRequest{SchoolCode: sch.Code, Email: principal.Email}),
			wantData: successData, extra: true},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/auth/password-reset"
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			env.Mail.Reset()
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if sent, ok := tt.extra.(bool); ok {
				if sent {
					msgs := env.Mail.SentMessages()
					require.Len(t, msgs, 1)
					assert.Equal(t, principal.Email, msgs[0].To[0].Address)
				} else {
					assert.Empty(t, env.Mail.SentMessages())
				}
			}
		})
	}

	t.Run("confirm with a bad token", func(t *testing.T) {
		rec := serve(http.MethodPost, "/api/auth/password-reset-confirm", "", marchallObj(t, map[string]string{
			"token": "bad", "uid": "bad", "password": testutil.Password, "password_confirm": testutil.Password,
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
