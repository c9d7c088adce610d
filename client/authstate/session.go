package authstate

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/attendly/client"
	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
)

var (
	ErrBusy             = errors.New("another authentication operation is in progress")
	ErrRoleNotAssigned  = errors.New("role not assigned to this account")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoRole           = errors.New("account has no role")
)

// API is the part of *client.Client a Session drives.
type API interface {
	Login(ctx context.Context, role string, creds client.Credentials) (string, error)
	RegisterSchool(ctx context.Context, data school.RegisterSchool) (client.Registration, error)
	Me(ctx context.Context) (client.Me, error)
	Logout(ctx context.Context) error
	SetToken(token string)
}

var _ API = (*client.Client)(nil)

// Navigator moves the user interface to path.
type Navigator interface {
	Navigate(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Session runs the authentication operations and keeps their resulting State.
// One operation runs at a time; the others fail with ErrBusy meanwhile.
type Session struct {
	api   API
	prefs PreferenceStore
	nav   Navigator

	mu    sync.Mutex
	state State
	busy  bool
}

func NewSession(api API, prefs PreferenceStore, nav Navigator) *Session {
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	return &Session{api: api, prefs: prefs, nav: nav, state: State{Status: StatusLoading}}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) dispatch(a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, a)
	return s.state
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	s.state = Reduce(s.state, Action{Type: AuthStart})
	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Session) fail(err error) error {
	s.dispatch(Action{Type: AuthFailure, Reason: Message(err)})
	return err
}

// Message extracts the text shown to the user for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var rerr *client.RequestError
	if errors.As(err, &rerr) {
		return rerr.Message
	}
	return err.Error()
}

// succeed persists the resolved role with token and lands on its dashboard.
func (s *Session) succeed(usr user.User, preferred, token string) error {
	state := s.dispatch(Action{Type: AuthSuccess, User: usr, Role: preferred})
	if !state.IsAuthenticated() {
		return ErrNoRole
	}
	if err := s.prefs.Save(Preferences{Role: state.ActiveRole, Token: token}); err != nil {
		return err
	}
	s.nav.Navigate(DashboardPath(state.ActiveRole))
	return nil
}

// Login authenticates with the endpoint of role, then fetches the canonical user and
// keeps role as the active one if the server confirms it.
func (s *Session) Login(ctx context.Context, role string, creds client.Credentials) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	token, err := s.api.Login(ctx, role, creds)
	if err != nil {
		return s.fail(err)
	}
	me, err := s.api.Me(ctx)
	if err != nil {
		s.api.SetToken("")
		return s.fail(err)
	}
	if !core.ContainsString(me.User.Roles, role) {
		s.api.SetToken("")
		return s.fail(ErrRoleNotAssigned)
	}
	return s.succeed(me.User, role, token)
}

func (s *Session) RegisterSchool(ctx context.Context, data school.RegisterSchool) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	reg, err := s.api.RegisterSchool(ctx, data)
	if err != nil {
		return s.fail(err)
	}
	return s.succeed(reg.User, user.RolePrincipal, reg.Token)
}

// Restore re-authenticates with the stored token, if any.
func (s *Session) Restore(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	prefs, err := s.prefs.Load()
	if err != nil {
		return s.fail(err)
	}
	if prefs.Token == "" {
		s.dispatch(Action{Type: Logout})
		return nil
	}
	s.api.SetToken(prefs.Token)
	me, err := s.api.Me(ctx)
	if err != nil {
		s.api.SetToken("")
		if cerr := s.prefs.Clear(); cerr != nil {
			_ = s.fail(err)
			return errors.Wrapf(err, "stale preferences not cleared (%v)", cerr)
		}
		return s.fail(err)
	}
	return s.succeed(me.User, prefs.Role, prefs.Token)
}

// SwitchRole changes the active role without calling the server.
// It has no effect when the user does not hold role.
func (s *Session) SwitchRole(role string) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.busy = true
	st := s.state
	s.mu.Unlock()
	defer s.end()

	if !st.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if !core.ContainsString(st.User.Roles, role) {
		return ErrRoleNotAssigned
	}
	prefs, err := s.prefs.Load()
	if err != nil {
		return err
	}
	prefs.Role = role
	if err := s.prefs.Save(prefs); err != nil {
		return err
	}
	s.dispatch(Action{Type: SwitchRole, Role: role})
	s.nav.Navigate(DashboardPath(role))
	return nil
}

// Logout revokes the token, forgets the preferences and goes back to the entry page.
// The local logout happens even when the server cannot be reached.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	apiErr := s.api.Logout(ctx)
	s.api.SetToken("")
	prefsErr := s.prefs.Clear()
	s.dispatch(Action{Type: Logout})
	s.nav.Navigate(EntryPath)
	if apiErr != nil {
		return apiErr
	}
	return prefsErr
}
