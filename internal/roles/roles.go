// Package roles sends users to the dashboard that matches their profile role.
package roles

import (
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/solodesign/apiserver/internal/authstate"
	"github.com/solodesign/apiserver/types"
)

const (
	LoginPath       = "/login"
	DashboardPrefix = "/dashboard"
	AdminDashboard  = DashboardPrefix + "/admin"
	ClientDashboard = DashboardPrefix + "/client"
)

// Target maps a resolved user to where they belong. Unknown roles and missing
// profiles land on the client dashboard.
func Target(user *types.AuthUser) string {
	if user == nil {
		return LoginPath
	}
	if user.Role() == types.RoleAdmin {
		return AdminDashboard
	}
	return ClientDashboard
}

// Navigator performs the actual redirect.
type Navigator interface {
	Navigate(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Router issues at most one redirect per resolution; Reset re-arms it.
type Router struct {
	nav        Navigator
	redirected atomic.Bool
}

func NewRouter(nav Navigator) *Router {
	return &Router{nav: nav}
}

// Route redirects to Target(user) if no redirect has been issued yet.
func (r *Router) Route(user *types.AuthUser) bool {
	return r.navigate(Target(user))
}

// Enforce corrects a visit to the wrong dashboard. Subpages of the right
// dashboard are left alone. It reports whether a redirect was issued.
func (r *Router) Enforce(currentPath string, user *types.AuthUser) bool {
	if !isDashboardPath(currentPath) {
		return false
	}
	target := Target(user)
	if dashboardSection(currentPath) == target {
		return false
	}
	return r.navigate(target)
}

func (r *Router) Reset() {
	r.redirected.Store(false)
}

func (r *Router) Redirected() bool {
	return r.redirected.Load()
}

// Follow routes on every resolved snapshot the tracker publishes. Each new
// resolution gets its own redirect.
func (r *Router) Follow(tracker *authstate.Tracker) (stop func()) {
	return tracker.Subscribe(func(s authstate.Snapshot) {
		if s.Loading() {
			r.Reset()
			return
		}
		r.Route(s.User)
	})
}

func (r *Router) navigate(path string) bool {
	if !r.redirected.CompareAndSwap(false, true) {
		return false
	}
	r.nav.Navigate(path)
	return true
}

func isDashboardPath(path string) bool {
	return path == DashboardPrefix || strings.HasPrefix(path, DashboardPrefix+"/")
}

// dashboardSection trims a dashboard path to its first two segments, so
// /dashboard/admin/settings yields /dashboard/admin.
func dashboardSection(path string) string {
	rest := strings.TrimPrefix(path, DashboardPrefix+"/")
	if rest == path {
		return strings.TrimSuffix(path, "/")
	}
	section, _, _ := strings.Cut(rest, "/")
	if section == "" {
		return DashboardPrefix
	}
	return DashboardPrefix + "/" + section
}

// HTTPNavigator redirects an HTTP response.
type HTTPNavigator struct {
	W      http.ResponseWriter
	R      *http.Request
	Status int
}

func (n HTTPNavigator) Navigate(path string) {
	status := n.Status
	if status == 0 {
		status = http.StatusFound
	}
	http.Redirect(n.W, n.R, path, status)
}
