// Package guard decides, per navigation, whether a page may be served to the
// requesting client or the client must be redirected first.
package guard

import "strings"

// Access classifies a page path.
type Access int

const (
	// Private pages require a session.
	Private Access = iota
	// Public pages are for signed-out clients; a session redirects to the landing page.
	Public
	// Transitional pages are public but stay reachable while a session exists,
	// so a flow that has just written the session can finish its own navigation.
	Transitional
)

func (a Access) String() string {
	switch a {
	case Public:
		return "public"
	case Transitional:
		return "transitional"
	default:
		return "private"
	}
}

// Decision is the outcome of a policy check. An empty Redirect means the page may be served.
type Decision struct {
	Redirect string
}

// Allowed reports whether the page may be served as requested.
func (d Decision) Allowed() bool { return d.Redirect == "" }

// Policy maps page paths to their Access. Paths missing from the table are Private.
type Policy struct {
	LoginPath   string
	LandingPath string
	routes      map[string]Access
}

// NewPolicy builds a policy from an explicit table.
func NewPolicy(loginPath, landingPath string, routes map[string]Access) Policy {
	table := make(map[string]Access, len(routes))
	for path, access := range routes {
		table[normalize(path)] = access
	}
	return Policy{LoginPath: loginPath, LandingPath: landingPath, routes: table}
}

// DefaultPolicy is the portal's route table.
func DefaultPolicy() Policy {
	return NewPolicy("/login", "/dashboard", map[string]Access{
		"/login":               Public,
		"/register":            Public,
		"/verify-otp":          Transitional,
		"/verify-otp/resend":   Transitional,
		"/login-verify":        Transitional,
		"/login-verify/resend": Transitional,
	})
}

// Access returns the classification of path.
func (p Policy) Access(path string) Access {
	if a, ok := p.routes[normalize(path)]; ok {
		return a
	}
	return Private
}

// Decide applies the policy to a navigation.
func (p Policy) Decide(path string, authenticated bool) Decision {
	switch p.Access(path) {
	case Public:
		if authenticated {
			return Decision{Redirect: p.LandingPath}
		}
	case Private:
		if !authenticated {
			return Decision{Redirect: p.LoginPath}
		}
	}
	return Decision{}
}

// normalize treats "/login/" and "/login" as the same page.
func normalize(path string) string {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}
