package web

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"secops-console/internal/app"
	"secops-console/internal/auth"
	"secops-console/internal/metrics"
	"secops-console/internal/monitor"
	"secops-console/internal/session"
	"secops-console/internal/shell"
	webui "secops-console/web"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Default body limit for JSON endpoints.
const maxBodyBytes = 1 << 20

// Options configures NewHandler. Zero stream intervals select the package defaults.
type Options struct {
	Accounts       app.ApplicationService
	Tokens         *auth.Tokens
	Sessions       *session.Manager
	Dashboard      *monitor.Dashboard
	Metrics        *metrics.Metrics
	Registry       prometheus.Gatherer
	Log            *zap.Logger
	AllowedOrigins string
	DownloadDir    string

	// HydrationWait bounds how long a guarded request waits for a fresh session to
	// read its persisted state before it is answered as still loading.
	HydrationWait time.Duration
	CardInterval  time.Duration
	Clock         *shell.Clock
}

// Handler holds the services behind the console's HTTP surface.
type Handler struct {
	svc           app.ApplicationService
	tokens        *auth.Tokens
	sessions      *session.Manager
	dashboard     *monitor.Dashboard
	metrics       *metrics.Metrics
	log           *zap.Logger
	fileServer    http.Handler
	downloadDir   string
	hydrationWait time.Duration
	cardInterval  time.Duration
	clock         *shell.Clock
	limiter       *loginLimiter
	upgrader      websocket.Upgrader
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(opts Options) http.Handler {
	staticFS, err := fs.Sub(webui.Static, "static")
	if err != nil {
		panic("web/static embed sub-FS failed: " + err.Error())
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.HydrationWait <= 0 {
		opts.HydrationWait = 2 * time.Second
	}
	if opts.CardInterval <= 0 {
		opts.CardInterval = monitor.SyntheticInterval
	}
	if opts.Clock == nil {
		opts.Clock = shell.NewClock(nil)
	}

	h := &Handler{
		svc:           opts.Accounts,
		tokens:        opts.Tokens,
		sessions:      opts.Sessions,
		dashboard:     opts.Dashboard,
		metrics:       opts.Metrics,
		log:           opts.Log,
		fileServer:    http.FileServer(http.FS(staticFS)),
		downloadDir:   opts.DownloadDir,
		hydrationWait: opts.HydrationWait,
		cardInterval:  opts.CardInterval,
		clock:         opts.Clock,
		limiter:       newLoginLimiter(loginEvery, loginBurst),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     sameOriginOr(splitAndTrim(opts.AllowedOrigins)),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(h.log, h.metrics))
	r.Use(Recoverer(h.log))
	r.Use(CORS(opts.AllowedOrigins))

	// ── Health and metrics (public) ──────────────────────────────────────────
	r.Get("/api/health", h.health)
	if opts.Registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.HandlerFor(opts.Registry))
	}

	// ── Static files and installer downloads (public) ────────────────────────
	r.Get("/static/*", func(w http.ResponseWriter, req *http.Request) {
		http.StripPrefix("/static", h.fileServer).ServeHTTP(w, req)
	})
	r.Get("/downloads/{file}", h.download)

	// ── Account API (bearer token) ───────────────────────────────────────────
	r.Route("/auth", func(r chi.Router) {
		r.Use(RequestBodyLimit(maxBodyBytes))
		r.Post("/signup", h.signup)
		r.With(h.limiter.Throttle).Post("/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Get("/mypage", h.mypage)
			r.Put("/change-password", h.changePassword)
			r.Post("/verify-password", h.verifyPassword)
			r.Post("/logout", h.logout)
			r.Delete("/withdrawal", h.withdraw)
		})
	})

	// ── Tab session (cookie-scoped) ──────────────────────────────────────────
	r.Group(func(r chi.Router) {
		r.Use(h.withSession)

		// Browser pages: the login page is public, everything else is guarded.
		r.Get("/login", h.loginPage)
		r.Group(func(r chi.Router) {
			r.Use(h.RequireLoginBrowser)
			r.Get("/", h.consolePage)
			r.Get("/*", h.consolePage)
		})

		r.Route("/api/session", func(r chi.Router) {
			r.Use(RequestBodyLimit(maxBodyBytes))
			r.Get("/", h.sessionState)
			r.Delete("/", h.closeSession)
			r.Get("/events", h.sessionEvents)
			r.Get("/login-form", h.loginForm)
			r.With(h.limiter.Throttle).Post("/login", h.sessionLogin)
			r.Post("/logout", h.sessionLogout)

			r.Group(func(r chi.Router) {
				r.Use(h.RequireLogin)
				r.Get("/sidebar", h.sidebar)
				r.Get("/topnav", h.topNav)
				r.Post("/sidebar/toggle", h.toggleSidebar)
				r.Post("/sections/{key}/toggle", h.toggleSection)
				r.Post("/notifications/toggle", h.toggleNotifications)
				r.Post("/ui-events", h.uiEvent)
				r.Get("/favorites", h.listFavorites)
				r.Post("/favorites/toggle", h.toggleFavorite)
				r.Post("/menu/{action}", h.menuAction)
			})
		})

		r.Route("/api/chat", func(r chi.Router) {
			r.Use(h.RequireLogin)
			r.Use(RequestBodyLimit(maxBodyBytes))
			r.Get("/", h.chatHistory)
			r.Post("/", h.chatMessage)
			r.Get("/stream", h.chatStream)
			r.Post("/clear", h.chatClear)
			r.Post("/confirm", h.chatConfirm)
			r.Get("/feed", h.chatFeed)
		})

		r.Route("/api/monitor", func(r chi.Router) {
			r.Use(h.RequireLogin)
			r.Get("/snapshot", h.monitorSnapshot)
			r.Post("/refresh", h.monitorRefresh)
			r.Get("/stream", h.monitorStream)
			r.Get("/cards", h.cardsStream)
			r.Get("/clock", h.clockStream)
		})
	})

	return r
}

// health reports service status and the number of live tab sessions.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	writeJSON(w, response{Status: "ok", Sessions: h.sessions.Len()})
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
