package dbadmin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/dbadmin"
	"github.com/trezcool/attendly/core/user"
	logsvc "github.com/trezcool/attendly/services/logger"
	inmemdb "github.com/trezcool/attendly/storage/database/inmem"
	testutil "github.com/trezcool/attendly/tests"
)

func collectionNames(ov dbadmin.Overview) []string {
	names := make([]string, 0, len(ov.Collections))
	for _, c := range ov.Collections {
		names = append(names, c.Name)
	}
	return names
}

func countOf(ov dbadmin.Overview, name string) int64 {
	for _, c := range ov.Collections {
		if c.Name == name {
			return c.Count
		}
	}
	return -1
}

func TestService_Authorize(t *testing.T) {
	env := testutil.NewEnv()

	principal := user.User{Roles: []string{user.RolePrincipal}}
	coordinator := user.User{Roles: []string{user.RoleTeacher, user.RoleCoordinator}}

	assert.NoError(t, env.DBAdmin.Authorize(principal))
	assert.Equal(t, core.ErrForbidden, env.DBAdmin.Authorize(coordinator))

	conf := core.NewTestConfig()
	conf.AllowDestructiveAdmin = false
	disabled := dbadmin.NewService(inmemdb.NewDBAdminRepository(env.DB), logsvc.New(logsvc.PrefixAdmin, conf), conf)
	assert.Equal(t, dbadmin.ErrDisabled, disabled.Authorize(principal))
}

func TestService_Collections(t *testing.T) {
	env := testutil.NewEnv()
	env.NewFixture(t, "COLS")

	ov, err := env.DBAdmin.Collections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inmemdb.Name, ov.Database)
	assert.IsIncreasing(t, collectionNames(ov))
	assert.Equal(t, int64(4), countOf(ov, "user"))
	assert.Equal(t, int64(2), countOf(ov, "student"))
}

func TestService_ClearDocuments(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	env.NewFixture(t, "CLEAR")

	tests := []struct {
		name      string
		req       dbadmin.Request
		wantField string
	}{
		{name: "wrong phrase", req: dbadmin.Request{Collections: []string{"student"}, Confirm: "clear"}, wantField: "confirm"},
		{name: "nothing selected", req: dbadmin.Request{Confirm: dbadmin.ConfirmClear}, wantField: "collections"},
		{name: "unknown", req: dbadmin.Request{Collections: []string{"goose_db_version"}, Confirm: dbadmin.ConfirmClear}, wantField: "collections"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.DBAdmin.ClearDocuments(ctx, tt.req)
			require.Error(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantField, err.(*core.ValidationError).Fields[0].Field)
		})
	}

	res, err := env.DBAdmin.ClearDocuments(ctx, dbadmin.Request{
		Collections: []string{"student", " student", "holiday"},
		Confirm:     dbadmin.ConfirmClear,
	})
	require.NoError(t, err)
	assert.Equal(t, dbadmin.Result{
		Action:      dbadmin.ActionClear,
		Collections: []string{"student", "holiday"},
		Success:     true,
		Message:     "cleared 2 collection(s)",
	}, res)

	ov, err := env.DBAdmin.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), countOf(ov, "student"))
	assert.Equal(t, int64(4), countOf(ov, "user"), "accounts are left alone")
}

func TestService_DropCollections(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	env.NewFixture(t, "DROP")

	_, err := env.DBAdmin.DropCollections(ctx, dbadmin.Request{Collections: []string{"attendance"}, Confirm: dbadmin.ConfirmClear})
	require.Error(t, err)

	res, err := env.DBAdmin.DropCollections(ctx, dbadmin.Request{Collections: []string{"attendance"}, Confirm: dbadmin.ConfirmDrop})
	require.NoError(t, err)
	assert.True(t, res.Success)

	ov, err := env.DBAdmin.Collections(ctx)
	require.NoError(t, err)
	assert.NotContains(t, collectionNames(ov), "attendance")
}

func TestService_DropDatabase(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	env.NewFixture(t, "DROPDB")

	_, err := env.DBAdmin.DropDatabase(ctx, "DROP")
	require.Error(t, err)
	assert.Equal(t, `type "memory" to confirm`, err.(*core.ValidationError).Fields[0].Error)

	res, err := env.DBAdmin.DropDatabase(ctx, inmemdb.Name)
	require.NoError(t, err)
	assert.Equal(t, dbadmin.ActionDropDB, res.Action)
	assert.Len(t, res.Collections, 11)

	ov, err := env.DBAdmin.Collections(ctx)
	require.NoError(t, err)
	assert.Empty(t, ov.Collections)

	// dropping it again has nothing left to drop
	res, err = env.DBAdmin.DropDatabase(ctx, inmemdb.Name)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Collections)
	assert.Equal(t, "dropped database (0 collections)", res.Message)
}
