package web

import (
	"context"
	"net/http"

	"secops-console/internal/guard"
	"secops-console/internal/state"
)

// awaitHydration waits up to the handler's hydration budget for the session's stores to
// read their persisted state, then returns the gate's decision on the current snapshot.
// A logged-in session whose favorites are still loading counts as loading.
func (h *Handler) awaitHydration(r *http.Request) guard.Decision {
	s := sessionFromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), h.hydrationWait)
	defer cancel()
	err := s.WaitHydrated(ctx)
	d := guard.Evaluate(s.App.Get())
	if err != nil && d.Phase == guard.Authenticated {
		return guard.Decision{Phase: guard.Loading}
	}
	return d
}

func phaseOf(st state.AppState) string { return guard.PhaseOf(st).String() }

// RequireLogin gates session API routes. A session still loading its state answers
// 425 Too Early so the client retries; a logged-out one gets 401 JSON.
func (h *Handler) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := h.awaitHydration(r)
		switch d.Phase {
		case guard.Loading:
			writeLoading(w, r)
		case guard.Unauthenticated:
			writeError(w, r, "login required", "UNAUTHORIZED", http.StatusUnauthorized)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// RequireLoginBrowser gates console pages. Loading renders nothing (204, refreshed by
// the client); logged-out requests are redirected to the login page.
func (h *Handler) RequireLoginBrowser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := h.awaitHydration(r)
		switch d.Phase {
		case guard.Loading:
			w.Header().Set("Refresh", "1")
			w.WriteHeader(http.StatusNoContent)
		case guard.Unauthenticated:
			http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// writeLoading answers 425 Too Early so the client retries once the session has loaded.
func writeLoading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "1")
	writeError(w, r, "session state is still loading", "LOADING", http.StatusTooEarly)
}
