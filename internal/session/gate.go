package session

import "replied/internal/observability"

// Well-known navigation targets.
const (
	LandingPath    = "/"
	SetupPath      = "/setup"
	InboxPath      = "/inbox"
	AuthFailedPath = "/login?error=auth-failed"
)

// Page classifies a route for the redirect policy.
type Page int

const (
	// PagePublic never redirects.
	PagePublic Page = iota
	// PageProtected needs a signed-in user with a username.
	PageProtected
	// PageSetup needs a signed-in user without a username.
	PageSetup
)

// Decision is the outcome of Gate. Pending means the state is not settled
// and the caller must wait; otherwise a non-empty Redirect means navigate away.
type Decision struct {
	Pending  bool
	Redirect string
}

// Allowed reports whether the page may render.
func (d Decision) Allowed() bool {
	return !d.Pending && d.Redirect == ""
}

// Gate applies the redirect policy.
func Gate(s State, page Page) Decision {
	if page == PagePublic {
		return Decision{}
	}
	if !s.Loaded {
		return Decision{Pending: true}
	}
	if !s.Authenticated() {
		return redirect(LandingPath)
	}

	switch s.Username {
	case UsernameUnknown:
		return Decision{Pending: true}
	case UsernameAbsent:
		if page == PageSetup {
			return Decision{}
		}
		return redirect(SetupPath)
	}

	if page == PageSetup {
		return redirect(InboxPath)
	}
	return Decision{}
}

func redirect(target string) Decision {
	observability.SessionRedirects.WithLabelValues(target).Inc()
	return Decision{Redirect: target}
}
