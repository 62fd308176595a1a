// Package guard decides whether a view may render for the current session.
package guard

import (
	"strings"

	"github.com/abrezinsky/votedesk/internal/models"
	"github.com/abrezinsky/votedesk/internal/session"
)

const (
	LoginPath        = "/login"
	RegisterPath     = "/register"
	ForgotPath       = "/forgot-password"
	UnauthorizedPath = "/unauthorized"
	AdminHomePath    = "/admin/dashboard"
	UserHomePath     = "/home"
	PollsPath        = "/polls"
)

// Access classifies who may see a route
type Access int

const (
	// Public routes render for everyone.
	Public Access = iota
	// PublicOnly routes render only without a session; signed-in users are
	// sent to their home view instead.
	PublicOnly
	// Protected routes require a session and, if Roles is set, one of Roles.
	Protected
)

// Route describes a view's access requirements
type Route struct {
	Path   string
	Access Access
	Roles  []models.Role
}

// Allows reports whether role is permitted. An empty role set permits any role.
func (r Route) Allows(role models.Role) bool {
	if len(r.Roles) == 0 {
		return true
	}
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// Action is the outcome of a guard decision
type Action int

const (
	Hold Action = iota
	Redirect
	Render
)

func (a Action) String() string {
	switch a {
	case Hold:
		return "hold"
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	default:
		return "unknown"
	}
}

// Decision is the guard's answer for one navigation
type Decision struct {
	Action Action
	Target string // set for Redirect
}

func hold() Decision                  { return Decision{Action: Hold} }
func render() Decision                { return Decision{Action: Render} }
func redirect(target string) Decision { return Decision{Action: Redirect, Target: target} }

// Decide applies the routing rules to snap. Nothing renders until the
// session has been initialized.
func Decide(route Route, snap session.Snapshot) Decision {
	if !snap.Initialized {
		return hold()
	}

	switch route.Access {
	case PublicOnly:
		if snap.Authenticated() {
			return redirect(HomeFor(snap.Claims.Role))
		}
		return render()
	case Protected:
		if !snap.Authenticated() {
			return redirect(LoginPath)
		}
		if !route.Allows(snap.Claims.Role) {
			return redirect(UnauthorizedPath)
		}
		return render()
	default:
		return render()
	}
}

// HomeFor returns the landing view for role.
func HomeFor(role models.Role) string {
	if role == models.RoleAdmin {
		return AdminHomePath
	}
	return UserHomePath
}

// RootTarget resolves "/" for snap.
func RootTarget(snap session.Snapshot) Decision {
	if !snap.Initialized {
		return hold()
	}
	if snap.Authenticated() {
		return redirect(HomeFor(snap.Claims.Role))
	}
	return redirect(LoginPath)
}

// Table is the client-side route surface
type Table struct {
	routes []Route
}

// DefaultTable returns the application's routes.
func DefaultTable() *Table {
	return NewTable(
		Route{Path: LoginPath, Access: PublicOnly},
		Route{Path: RegisterPath, Access: PublicOnly},
		Route{Path: ForgotPath, Access: PublicOnly},
		Route{Path: PollsPath, Access: Public},
		Route{Path: PollsPath + "/{id}", Access: Public},
		Route{Path: UnauthorizedPath, Access: Public},
		Route{Path: AdminHomePath, Access: Protected, Roles: []models.Role{models.RoleAdmin}},
		Route{Path: "/admin/polls/{id}", Access: Protected, Roles: []models.Role{models.RoleAdmin}},
		Route{Path: UserHomePath, Access: Protected, Roles: []models.Role{models.RoleVoter, models.RoleCandidate}},
	)
}

// NewTable builds a table from routes.
func NewTable(routes ...Route) *Table {
	return &Table{routes: routes}
}

// Routes returns the registered routes.
func (t *Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// Lookup finds the route for path. "{name}" segments match any single segment.
func (t *Table) Lookup(path string) (Route, bool) {
	path = normalize(path)
	for _, r := range t.routes {
		if matches(r.Path, path) {
			return r, true
		}
	}
	return Route{}, false
}

// Resolve decides a navigation to path. "/" follows the session and
// unmatched paths go to the login view.
func (t *Table) Resolve(path string, snap session.Snapshot) Decision {
	path = normalize(path)
	if path == "/" {
		return RootTarget(snap)
	}
	route, ok := t.Lookup(path)
	if !ok {
		return redirect(LoginPath)
	}
	return Decide(route, snap)
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}

func matches(pattern, path string) bool {
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	xs := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(xs) {
		return false
	}
	for i, p := range ps {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			if xs[i] == "" {
				return false
			}
			continue
		}
		if p != xs[i] {
			return false
		}
	}
	return true
}
