package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"secops-console/internal/session"
	"secops-console/internal/shell"
	"secops-console/internal/state"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Identity cookies. The client cookie outlives the browser session and scopes durable
// storage; the tab id scopes session storage and may be sent per tab in X-Tab-ID.
const (
	clientCookie    = "client_id"
	tabCookie       = "tab_id"
	tabHeader       = "X-Tab-ID"
	tabQuery        = "tab"
	clientCookieAge = 365 * 24 * 60 * 60
)

type sessionKey struct{}

// sessionFromContext returns the session withSession attached.
func sessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

// withSession resolves (or mints) the client and tab ids, opens the tab's session and
// attaches it to the request context.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := cookieValue(r, clientCookie)
		if clientID == "" {
			clientID = uuid.NewString()
			setIDCookie(w, r, clientCookie, clientID, clientCookieAge)
		}
		tabID := r.Header.Get(tabHeader)
		if tabID == "" {
			tabID = r.URL.Query().Get(tabQuery)
		}
		if tabID == "" {
			tabID = cookieValue(r, tabCookie)
		}
		if !validRequestID.MatchString(tabID) {
			tabID = uuid.NewString()
			setIDCookie(w, r, tabCookie, tabID, 0)
		}

		s, err := h.sessions.Open(r.Context(), clientID, tabID)
		if errors.Is(err, session.ErrClientMismatch) {
			writeError(w, r, "tab belongs to another client", "FORBIDDEN", http.StatusForbidden)
			return
		}
		if err != nil {
			h.internalError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil || !validRequestID.MatchString(c.Value) {
		return ""
	}
	return c.Value
}

func setIDCookie(w http.ResponseWriter, r *http.Request, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

type sessionStateResponse struct {
	ClientID  string         `json:"client_id"`
	TabID     string         `json:"tab_id"`
	Phase     string         `json:"phase"`
	Tier      state.Tier     `json:"tier"`
	State     state.AppState `json:"state"`
	Favorites []string       `json:"favorites"`
}

// sessionState handles GET /api/session. It never waits for hydration; phase tells the
// client whether persisted state has been read yet.
func (h *Handler) sessionState(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	st := s.App.Get()
	writeJSON(w, sessionStateResponse{
		ClientID:  s.ClientID,
		TabID:     s.TabID,
		Phase:     phaseOf(st),
		Tier:      s.App.Tier(),
		State:     st,
		Favorites: s.Favorites.Favorites(),
	})
}

// closeSession handles DELETE /api/session, sent when a tab closes.
func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	h.sessions.Close(s.TabID)
	w.WriteHeader(http.StatusNoContent)
}

// loginForm handles GET /api/session/login-form.
func (h *Handler) loginForm(w http.ResponseWriter, r *http.Request) {
	d, err := sessionFromContext(r.Context()).LoginFormDefaults(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, d)
}

type sessionLoginResponse struct {
	User     state.User `json:"user"`
	Redirect string     `json:"redirect"`
}

// sessionLogin handles POST /api/session/login. Failures are also raised as toasts on
// the tab's event stream.
func (h *Handler) sessionLogin(w http.ResponseWriter, r *http.Request) {
	var form session.LoginForm
	if !decodeJSON(w, r, &form) {
		return
	}
	s := sessionFromContext(r.Context())
	user, err := s.Login(r.Context(), form)
	switch {
	case errors.Is(err, session.ErrLoginForm):
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	case errors.Is(err, session.ErrLoginRejected):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, r, rejectionDetail(err), "UNAUTHORIZED", http.StatusUnauthorized)
		return
	case err != nil:
		h.internalError(w, r, err)
		return
	}
	h.log.Info("session login", zap.String("tab_id", s.TabID), zap.String("emp_number", user.EmpNumber))
	writeJSON(w, sessionLoginResponse{User: user, Redirect: "/"})
}

// rejectionDetail strips the sentinel prefix from a login rejection.
func rejectionDetail(err error) string {
	return strings.TrimPrefix(err.Error(), session.ErrLoginRejected.Error()+": ")
}

type redirectResponse struct {
	Redirect string `json:"redirect"`
}

// sessionLogout handles POST /api/session/logout.
func (h *Handler) sessionLogout(w http.ResponseWriter, r *http.Request) {
	target, err := sessionFromContext(r.Context()).Logout(r.Context())
	if err != nil {
		writeLoading(w, r)
		return
	}
	writeJSON(w, redirectResponse{Redirect: target})
}

// sidebar handles GET /api/session/sidebar.
func (h *Handler) sidebar(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	writeJSON(w, shell.BuildSidebar(s.App.Get(), s.Favorites.Favorites()))
}

// topNav handles GET /api/session/topnav?path=/traffic.
func (h *Handler) topNav(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	writeJSON(w, shell.BuildTopNav(path, s.App.Get(), s.Favorites.Favorites(), h.clock.Read()))
}

// toggleSidebar handles POST /api/session/sidebar/toggle.
func (h *Handler) toggleSidebar(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	s.App.ToggleSidebarCollapsed()
	writeJSON(w, s.App.Get())
}

// toggleSection handles POST /api/session/sections/{key}/toggle.
func (h *Handler) toggleSection(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	key := state.Section(chi.URLParam(r, "key"))
	if err := s.App.ToggleSectionOpen(key); err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	writeJSON(w, s.App.Get())
}

type notificationToggleResponse struct {
	Open  bool           `json:"open"`
	State state.AppState `json:"state"`
}

// toggleNotifications handles POST /api/session/notifications/toggle.
func (h *Handler) toggleNotifications(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	open := s.ToggleNotificationPanel()
	writeJSON(w, notificationToggleResponse{Open: open, State: s.App.Get()})
}

type uiEventRequest struct {
	Event session.UIEvent `json:"event"`
}

// uiEvent handles POST /api/session/ui-events.
func (h *Handler) uiEvent(w http.ResponseWriter, r *http.Request) {
	var req uiEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Event != session.PanelOpened {
		writeError(w, r, "unknown ui event", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	s := sessionFromContext(r.Context())
	s.Handle(req.Event)
	writeJSON(w, s.App.Get())
}

type favoritesResponse struct {
	Favorites []string `json:"favorites"`
}

// listFavorites handles GET /api/session/favorites.
func (h *Handler) listFavorites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, favoritesResponse{Favorites: sessionFromContext(r.Context()).Favorites.Favorites()})
}

type favoriteToggleRequest struct {
	Key string `json:"key"`
}

type favoriteToggleResponse struct {
	Added     bool     `json:"added"`
	Favorites []string `json:"favorites"`
}

// toggleFavorite handles POST /api/session/favorites/toggle. A full list is 409; the
// error is also raised as a toast by the store.
func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteToggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s := sessionFromContext(r.Context())
	added, err := s.ToggleFavorite(r.Context(), req.Key)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeLoading(w, r)
		return
	case errors.Is(err, state.ErrFavoritesFull):
		writeError(w, r, err.Error(), "FAVORITES_FULL", http.StatusConflict)
		return
	case err != nil:
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	writeJSON(w, favoriteToggleResponse{Added: added, Favorites: s.Favorites.Favorites()})
}

// menuAction handles POST /api/session/menu/{action}. Logout also ends the login.
func (h *Handler) menuAction(w http.ResponseWriter, r *http.Request) {
	action := shell.MenuAction(chi.URLParam(r, "action"))
	target, ok := shell.MenuTarget(action)
	if !ok {
		writeError(w, r, "unknown menu action", "NOT_FOUND", http.StatusNotFound)
		return
	}
	if action == shell.MenuLogout {
		var err error
		if target, err = sessionFromContext(r.Context()).Logout(r.Context()); err != nil {
			writeLoading(w, r)
			return
		}
	}
	writeJSON(w, redirectResponse{Redirect: target})
}
