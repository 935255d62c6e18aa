// Package guard decides whether a protected view may render for a session's App state.
// It holds no state of its own; every decision is a pure function of the store snapshot.
package guard

import "secops-console/internal/state"

// LoginPath is where unauthenticated requests are sent.
const LoginPath = "/login"

// Phase is the gate's view of a session.
type Phase int

const (
	// Loading: persisted state has not been read back yet. Nothing renders.
	Loading Phase = iota
	// Unauthenticated: hydrated, not logged in. Protected views redirect to LoginPath.
	Unauthenticated
	// Authenticated: hydrated and logged in. Protected views render.
	Authenticated
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// Decision is the outcome for one protected render attempt.
type Decision struct {
	Phase Phase
	// Redirect is set only for Unauthenticated. The navigation replaces the current history
	// entry rather than pushing one.
	Redirect string
}

// Allow reports whether the protected subtree renders.
func (d Decision) Allow() bool { return d.Phase == Authenticated }

// PhaseOf classifies st.
func PhaseOf(st state.AppState) Phase {
	switch {
	case !st.HasHydrated:
		return Loading
	case st.IsLoggedIn && st.User != nil:
		return Authenticated
	default:
		return Unauthenticated
	}
}

// Evaluate returns the decision for a protected render with App state st.
func Evaluate(st state.AppState) Decision {
	p := PhaseOf(st)
	if p == Unauthenticated {
		return Decision{Phase: p, Redirect: LoginPath}
	}
	return Decision{Phase: p}
}
