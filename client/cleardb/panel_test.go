package cleardb

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/attendly/core/dbadmin"
	testutil "github.com/trezcool/attendly/tests"
)

// countingBackend forwards to the real service and counts the destructive calls.
type countingBackend struct {
	dbadmin.Service
	loads, actions int32
}

func (b *countingBackend) Collections(ctx context.Context) (dbadmin.Overview, error) {
	atomic.AddInt32(&b.loads, 1)
	return b.Service.Collections(ctx)
}

func (b *countingBackend) ClearDocuments(ctx context.Context, req dbadmin.Request) (dbadmin.Result, error) {
	atomic.AddInt32(&b.actions, 1)
	return b.Service.ClearDocuments(ctx, req)
}

func (b *countingBackend) DropCollections(ctx context.Context, req dbadmin.Request) (dbadmin.Result, error) {
	atomic.AddInt32(&b.actions, 1)
	return b.Service.DropCollections(ctx, req)
}

func (b *countingBackend) DropDatabase(ctx context.Context, confirm string) (dbadmin.Result, error) {
	atomic.AddInt32(&b.actions, 1)
	return b.Service.DropDatabase(ctx, confirm)
}

func newPanel(t *testing.T) (*Panel, *countingBackend, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv()
	env.NewFixture(t, "CLR")
	backend := &countingBackend{Service: env.DBAdmin}
	p := New(backend)
	require.NoError(t, p.Load(context.Background()))
	return p, backend, env
}

func names(cols []dbadmin.Collection) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, c.Name)
	}
	return out
}

func TestPanel_filterAndSelect(t *testing.T) {
	p, _, _ := newPanel(t)

	assert.Equal(t, "memory", p.Database())
	assert.Len(t, p.Visible(), 11)

	p.SetFilter("  CLASS ")
	assert.Equal(t, []string{"class", "class_assignment"}, names(p.Visible()))

	require.NoError(t, p.Toggle("holiday")) // hidden by the filter, still selectable
	p.ToggleAllFiltered()
	assert.True(t, p.AllFilteredSelected())
	assert.Equal(t, []string{"class", "class_assignment", "holiday"}, p.Selected())

	p.ToggleAllFiltered()
	assert.False(t, p.AllFilteredSelected())
	assert.Equal(t, []string{"holiday"}, p.Selected())

	require.NoError(t, p.Toggle("holiday"))
	assert.Empty(t, p.Selected())

	err := p.Toggle("nope")
	assert.ErrorIs(t, err, ErrUnknownSelection)

	p.SetFilter("zzz")
	assert.Empty(t, p.Visible())
	assert.False(t, p.AllFilteredSelected())
}

func TestPanel_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmation mismatch sends nothing", func(t *testing.T) {
		p, backend, _ := newPanel(t)
		require.NoError(t, p.Toggle("student"))

		for action, typed := range map[dbadmin.Action]string{
			dbadmin.ActionClear:  "clear",
			dbadmin.ActionDrop:   "CLEAR",
			dbadmin.ActionDropDB: "DROP",
		} {
			_, err := p.Execute(ctx, action, typed)
			assert.ErrorIs(t, err, ErrConfirmMismatch, action)
		}
		assert.EqualValues(t, 0, atomic.LoadInt32(&backend.actions))
		assert.Equal(t, []string{"student"}, p.Selected())
	})

	t.Run("nothing selected", func(t *testing.T) {
		p, backend, _ := newPanel(t)
		_, err := p.Execute(ctx, dbadmin.ActionClear, dbadmin.ConfirmClear)
		assert.ErrorIs(t, err, ErrNothingSelected)
		assert.EqualValues(t, 0, atomic.LoadInt32(&backend.actions))
	})

	t.Run("unknown action", func(t *testing.T) {
		p, _, _ := newPanel(t)
		_, err := p.Execute(ctx, dbadmin.Action("purge"), "PURGE")
		assert.ErrorIs(t, err, ErrUnknownAction)
	})

	t.Run("clear reloads the counts", func(t *testing.T) {
		p, backend, _ := newPanel(t)
		p.SetFilter("student")
		p.SetAllFiltered(true)

		res, err := p.Execute(ctx, dbadmin.ActionClear, dbadmin.ConfirmClear)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "cleared 1 collection(s)", res.Message)
		assert.EqualValues(t, 1, atomic.LoadInt32(&backend.actions))
		assert.EqualValues(t, 2, atomic.LoadInt32(&backend.loads))
		assert.Empty(t, p.Selected())

		vis := p.Visible()
		require.Len(t, vis, 1)
		assert.Zero(t, vis[0].Count)
	})

	t.Run("drop forgets the dropped collections", func(t *testing.T) {
		p, _, _ := newPanel(t)
		require.NoError(t, p.Toggle("audit_log"))

		res, err := p.Execute(ctx, dbadmin.ActionDrop, dbadmin.ConfirmDrop)
		require.NoError(t, err)
		assert.Equal(t, "dropped 1 collection(s)", res.Message)
		assert.NotContains(t, names(p.Visible()), "audit_log")
	})

	t.Run("drop database", func(t *testing.T) {
		p, _, _ := newPanel(t)
		phrase, err := p.ConfirmPhrase(dbadmin.ActionDropDB)
		require.NoError(t, err)
		assert.Equal(t, "memory", phrase)

		res, err := p.Execute(ctx, dbadmin.ActionDropDB, phrase)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Empty(t, p.Visible())
	})

	t.Run("not loaded", func(t *testing.T) {
		p := New(&countingBackend{Service: testutil.NewEnv().DBAdmin})
		_, err := p.ConfirmPhrase(dbadmin.ActionDropDB)
		assert.ErrorIs(t, err, ErrNotLoaded)
	})
}
