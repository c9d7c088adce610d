// Package authstate keeps the authentication state of a client: who is logged in
// and under which of their roles.
package authstate

import (
	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/user"
)

type Status string

const (
	StatusLoading         Status = "loading"
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticated   Status = "authenticated"
)

type ActionType string

const (
	AuthStart   ActionType = "AUTH_START"
	AuthSuccess ActionType = "AUTH_SUCCESS"
	AuthFailure ActionType = "AUTH_FAILURE"
	Logout      ActionType = "LOGOUT"
	SwitchRole  ActionType = "SWITCH_ROLE"
)

type Action struct {
	Type ActionType
	// User is set on AUTH_SUCCESS.
	User user.User
	// Role is the preferred role on AUTH_SUCCESS, the requested one on SWITCH_ROLE.
	Role string
	// Reason is set on AUTH_FAILURE.
	Reason string
}

// State is either loading, unauthenticated (with the last failure, if any) or
// authenticated; an authenticated ActiveRole is always one of User.Roles.
type State struct {
	Status     Status
	User       user.User
	ActiveRole string
	Error      string
}

func (s State) IsAuthenticated() bool { return s.Status == StatusAuthenticated }

// ResolveRole returns preferred when usr holds it, else their first role.
func ResolveRole(usr user.User, preferred string) string {
	if preferred != "" && core.ContainsString(usr.Roles, preferred) {
		return preferred
	}
	if len(usr.Roles) > 0 {
		return usr.Roles[0]
	}
	return ""
}

// Reduce is the state transition function.
func Reduce(s State, a Action) State {
	switch a.Type {
	case AuthStart:
		return State{Status: StatusLoading, User: s.User, ActiveRole: s.ActiveRole}
	case AuthSuccess:
		role := ResolveRole(a.User, a.Role)
		if role == "" {
			return State{Status: StatusUnauthenticated, Error: ErrNoRole.Error()}
		}
		return State{Status: StatusAuthenticated, User: a.User, ActiveRole: role}
	case AuthFailure:
		return State{Status: StatusUnauthenticated, Error: a.Reason}
	case Logout:
		return State{Status: StatusUnauthenticated}
	case SwitchRole:
		if s.IsAuthenticated() && core.ContainsString(s.User.Roles, a.Role) {
			s.ActiveRole = a.Role
		}
		return s
	}
	return s
}

// DashboardPath is where a user lands once logged in as role.
func DashboardPath(role string) string {
	return "/" + role + "/dashboard"
}

// EntryPath is the school-code entry page.
const EntryPath = "/"
