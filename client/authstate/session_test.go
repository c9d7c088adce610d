package authstate_test

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/attendly/client"
	"github.com/trezcool/attendly/client/authstate"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
)

type fakeAPI struct {
	mu      sync.Mutex
	users   map[string]user.User // by token
	token   string
	demote  bool // Me drops every role but student
	logouts int
	calls   int
	block   chan struct{} // when set, Login waits on it
	entered chan struct{}
}

func (f *fakeAPI) Login(ctx context.Context, role string, creds client.Credentials) (string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		f.entered <- struct{}{}
		<-block
	}
	token := "tok-" + creds.Username
	if usr, ok := f.users[token]; !ok || !usr.HasRole(role) {
		return "", &client.RequestError{Status: http.StatusForbidden, Message: "role not assigned to this account"}
	}
	f.SetToken(token)
	return token, nil
}

func (f *fakeAPI) RegisterSchool(ctx context.Context, data school.RegisterSchool) (client.Registration, error) {
	usr := user.User{ID: "p1", Username: data.PrincipalUsername, Roles: []string{user.RolePrincipal}}
	token := "tok-" + usr.Username
	f.users[token] = usr
	f.SetToken(token)
	return client.Registration{Token: token, User: usr}, nil
}

func (f *fakeAPI) Me(ctx context.Context) (client.Me, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	usr, ok := f.users[f.token]
	if !ok {
		return client.Me{}, &client.RequestError{Status: http.StatusUnauthorized, Message: "invalid or expired jwt"}
	}
	if f.demote {
		usr.Roles = []string{user.RoleStudent}
	}
	return client.Me{User: usr}, nil
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.logouts++
	f.mu.Unlock()
	return nil
}

func (f *fakeAPI) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

// gatedStore can hold Save until released and make Clear fail.
type gatedStore struct {
	*authstate.MemoryStore
	saving   chan struct{}
	release  chan struct{}
	clearErr error
}

func (g *gatedStore) Save(p authstate.Preferences) error {
	if g.saving != nil {
		g.saving <- struct{}{}
		<-g.release
	}
	return g.MemoryStore.Save(p)
}

func (g *gatedStore) Clear() error {
	if g.clearErr != nil {
		return g.clearErr
	}
	return g.MemoryStore.Clear()
}

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) Navigate(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.paths) == 0 {
		return ""
	}
	return r.paths[len(r.paths)-1]
}

func newSession() (*authstate.Session, *fakeAPI, *authstate.MemoryStore, *recorder) {
	api := &fakeAPI{users: map[string]user.User{
		"tok-tom": {ID: "t1", Username: "tom", Roles: []string{user.RoleTeacher, user.RoleCoordinator}},
		"tok-amy": {ID: "s1", Username: "amy", Roles: []string{user.RoleStudent}},
	}}
	store := authstate.NewMemoryStore()
	nav := new(recorder)
	return authstate.NewSession(api, store, nav), api, store, nav
}

func creds(username string) client.Credentials {
	return client.Credentials{SchoolCode: "GHS", Username: username, Password: "pwd"}
}

func TestSession_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("lands on the dashboard of the requested role", func(t *testing.T) {
		sess, _, store, nav := newSession()
		assert.Equal(t, authstate.StatusLoading, sess.State().Status)

		require.NoError(t, sess.Login(ctx, user.RoleCoordinator, creds("tom")))
		st := sess.State()
		assert.Equal(t, authstate.StatusAuthenticated, st.Status)
		assert.Equal(t, user.RoleCoordinator, st.ActiveRole)
		assert.Equal(t, "/coordinator/dashboard", nav.last())

		prefs, _ := store.Load()
		assert.Equal(t, authstate.Preferences{Role: user.RoleCoordinator, Token: "tok-tom"}, prefs)
	})

	t.Run("failure stores the message", func(t *testing.T) {
		sess, _, store, nav := newSession()
		err := sess.Login(ctx, user.RolePrincipal, creds("tom"))
		assert.Error(t, err)
		st := sess.State()
		assert.Equal(t, authstate.StatusUnauthenticated, st.Status)
		assert.Equal(t, "role not assigned to this account", st.Error)
		assert.Empty(t, nav.paths)
		prefs, _ := store.Load()
		assert.Empty(t, prefs.Token)
	})

	t.Run("role not confirmed by the canonical user", func(t *testing.T) {
		sess, api, _, nav := newSession()
		api.demote = true
		assert.Equal(t, authstate.ErrRoleNotAssigned, sess.Login(ctx, user.RoleTeacher, creds("tom")))
		st := sess.State()
		assert.Equal(t, authstate.StatusUnauthenticated, st.Status)
		assert.Equal(t, authstate.ErrRoleNotAssigned.Error(), st.Error)
		assert.Empty(t, api.token)
		assert.Empty(t, nav.paths)
	})

	t.Run("concurrent operations are rejected", func(t *testing.T) {
		sess, api, _, _ := newSession()
		api.block, api.entered = make(chan struct{}), make(chan struct{})

		done := make(chan error)
		go func() { done <- sess.Login(ctx, user.RoleTeacher, creds("tom")) }()
		<-api.entered

		assert.Equal(t, authstate.ErrBusy, sess.Login(ctx, user.RoleTeacher, creds("tom")))
		assert.Equal(t, authstate.ErrBusy, sess.Logout(ctx))
		assert.Equal(t, authstate.ErrBusy, sess.SwitchRole(user.RoleCoordinator))
		assert.Equal(t, authstate.StatusLoading, sess.State().Status)

		close(api.block)
		assert.NoError(t, <-done)
		assert.Equal(t, 1, api.calls)
	})
}

func TestSession_SwitchRole(t *testing.T) {
	ctx := context.Background()
	sess, _, store, nav := newSession()

	assert.Equal(t, authstate.ErrNotAuthenticated, sess.SwitchRole(user.RoleTeacher))

	require.NoError(t, sess.Login(ctx, user.RoleTeacher, creds("tom")))
	before := sess.State()
	navs := len(nav.paths)

	assert.Equal(t, authstate.ErrRoleNotAssigned, sess.SwitchRole(user.RolePrincipal))
	assert.Equal(t, before, sess.State())
	assert.Len(t, nav.paths, navs)

	require.NoError(t, sess.SwitchRole(user.RoleCoordinator))
	assert.Equal(t, user.RoleCoordinator, sess.State().ActiveRole)
	assert.Equal(t, "/coordinator/dashboard", nav.last())
	prefs, _ := store.Load()
	assert.Equal(t, authstate.Preferences{Role: user.RoleCoordinator, Token: "tok-tom"}, prefs)
}

func TestSession_SwitchRole_busy(t *testing.T) {
	ctx := context.Background()
	_, api, _, nav := newSession()
	store := &gatedStore{MemoryStore: authstate.NewMemoryStore()}
	sess := authstate.NewSession(api, store, nav)
	require.NoError(t, sess.Login(ctx, user.RoleTeacher, creds("tom")))

	store.saving, store.release = make(chan struct{}), make(chan struct{})
	done := make(chan error)
	go func() { done <- sess.SwitchRole(user.RoleCoordinator) }()
	<-store.saving

	assert.Equal(t, authstate.ErrBusy, sess.Login(ctx, user.RoleStudent, creds("amy")))
	assert.Equal(t, authstate.ErrBusy, sess.SwitchRole(user.RoleTeacher))
	assert.Equal(t, authstate.ErrBusy, sess.Logout(ctx))

	close(store.release)
	require.NoError(t, <-done)
	assert.Equal(t, user.RoleCoordinator, sess.State().ActiveRole)
	assert.Equal(t, "t1", sess.State().User.ID)

	store.saving = nil
	require.NoError(t, sess.SwitchRole(user.RoleTeacher), "the switch releases the session")
}

func TestSession_Restore_clearFails(t *testing.T) {
	_, api, _, nav := newSession()
	store := &gatedStore{MemoryStore: authstate.NewMemoryStore(), clearErr: errors.New("read-only file system")}
	require.NoError(t, store.Save(authstate.Preferences{Role: user.RoleStudent, Token: "tok-gone"}))
	sess := authstate.NewSession(api, store, nav)

	err := sess.Restore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only file system")
	assert.Equal(t, http.StatusUnauthorized, client.StatusOf(err))
	assert.Equal(t, authstate.StatusUnauthenticated, sess.State().Status)
	assert.Equal(t, "invalid or expired jwt", sess.State().Error)
}

func TestSession_LogoutAndRestore(t *testing.T) {
	ctx := context.Background()
	sess, api, store, nav := newSession()
	require.NoError(t, sess.Login(ctx, user.RoleTeacher, creds("tom")))
	require.NoError(t, sess.SwitchRole(user.RoleCoordinator))

	t.Run("restore picks up the stored role", func(t *testing.T) {
		again := authstate.NewSession(api, store, nav)
		require.NoError(t, again.Restore(ctx))
		st := again.State()
		assert.Equal(t, authstate.StatusAuthenticated, st.Status)
		assert.Equal(t, user.RoleCoordinator, st.ActiveRole)
	})

	require.NoError(t, sess.Logout(ctx))
	assert.Equal(t, authstate.State{Status: authstate.StatusUnauthenticated}, sess.State())
	assert.Equal(t, authstate.EntryPath, nav.last())
	assert.Equal(t, 1, api.logouts)
	prefs, _ := store.Load()
	assert.Equal(t, authstate.Preferences{}, prefs)

	t.Run("restore without token", func(t *testing.T) {
		again := authstate.NewSession(api, store, nav)
		require.NoError(t, again.Restore(ctx))
		assert.Equal(t, authstate.State{Status: authstate.StatusUnauthenticated}, again.State())
	})

	t.Run("restore with a stale token", func(t *testing.T) {
		require.NoError(t, store.Save(authstate.Preferences{Role: user.RoleStudent, Token: "tok-gone"}))
		again := authstate.NewSession(api, store, nav)
		assert.Error(t, again.Restore(ctx))
		st := again.State()
		assert.Equal(t, authstate.StatusUnauthenticated, st.Status)
		assert.Equal(t, "invalid or expired jwt", st.Error)
		prefs, _ := store.Load()
		assert.Equal(t, authstate.Preferences{}, prefs)
	})
}

func TestSession_RegisterSchool(t *testing.T) {
	sess, _, store, nav := newSession()
	require.NoError(t, sess.RegisterSchool(context.Background(), school.RegisterSchool{PrincipalUsername: "pat"}))
	assert.Equal(t, user.RolePrincipal, sess.State().ActiveRole)
	assert.Equal(t, "/principal/dashboard", nav.last())
	prefs, _ := store.Load()
	assert.Equal(t, "tok-pat", prefs.Token)
}
