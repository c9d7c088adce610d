package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/audit"
	"github.com/trezcool/attendly/core/holiday"
	"github.com/trezcool/attendly/core/user"
	testutil "github.com/trezcool/attendly/tests"
)

func Test_auditApi_query(t *testing.T) {
	env.Reset()
	sch, principal := env.RegisterSchool(t, "GHS")
	_, otherPrincipal := env.RegisterSchool(t, "OTH")
	coord := testutil.CreateUser(t, env.UserRepo, sch.ID, "Carol", "carol", "", "", []string{user.RoleCoordinator, user.RoleTeacher}, true)

	today := core.Today()
	post := func(usr user.User, name string, day int) holiday.Holiday {
		rec := serve(http.MethodPost, "/api/holidays", getToken(t, usr), marchallObj(t, holiday.HolidayData{
			Name: name, StartDate: today.AddDays(day), EndDate: today.AddDays(day), Category: holiday.CategorySchool,
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var hol holiday.Holiday
		unmarshal(t, rec, &hol)
		return hol
	}
	h1 := post(principal, "Sports day", 5)
	post(coord, "Open day", 10)
	rec := serve(http.MethodPut, "/api/holidays/"+h1.ID, getToken(t, coord), marchallObj(t, holiday.HolidayData{
		Name: "Sports week", StartDate: h1.StartDate, EndDate: h1.StartDate.AddDays(2), Category: holiday.CategorySchool,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	query := func(t *testing.T, usr user.User, q string) audit.Page {
		rec := serve(http.MethodGet, "/api/audit-logs"+q, getToken(t, usr))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page audit.Page
		unmarshal(t, rec, &page)
		return page
	}

	t.Run("principal required", func(t *testing.T) {
		rec := serve(http.MethodGet, "/api/audit-logs", getToken(t, coord))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})
	t.Run("own school only", func(t *testing.T) {
		page := query(t, otherPrincipal, "")
		assert.Empty(t, page.Items)
		assert.Equal(t, 0, page.Meta.Total)
	})
	t.Run("filtered", func(t *testing.T) {
		page := query(t, principal, "?entity_type=holiday&action=UPDATE")
		require.Len(t, page.Items, 1)
		e := page.Items[0]
		assert.Equal(t, h1.ID, e.EntityID)
		assert.Equal(t, coord.ID, e.ActorID)
		assert.Equal(t, "Carol", e.ActorName)
		assert.Equal(t, user.RoleCoordinator, e.ActorRole)
		assert.Equal(t, audit.Change{From: "Sports day", To: "Sports week"}, e.Diff["name"])
		assert.NotContains(t, e.Diff, "updated_at")
		assert.NotContains(t, e.Diff, "category")

		page = query(t, principal, "?actor_id="+coord.ID)
		assert.Len(t, page.Items, 2)
	})
	t.Run("paginated", func(t *testing.T) {
		page := query(t, principal, "?entity_type=holiday&limit=2")
		assert.Len(t, page.Items, 2)
		assert.Equal(t, core.PageMeta{Page: 1, Limit: 2, Total: 3, HasNext: true}, page.Meta)

		page = query(t, principal, "?entity_type=holiday&limit=2&page=2")
		assert.Len(t, page.Items, 1)
		assert.False(t, page.Meta.HasNext)
	})
}
