package web

import (
	"net/http"

	"secops-console/internal/shell"
	webui "secops-console/web"
)

// loginPage handles GET /login. A session that is already logged in goes to the
// console instead.
func (h *Handler) loginPage(w http.ResponseWriter, r *http.Request) {
	if h.awaitHydration(r).Allow() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	servePage(w, r, "static/login.html")
}

// consolePage serves the console shell for every routed page; the client renders the
// page for the current path.
func (h *Handler) consolePage(w http.ResponseWriter, r *http.Request) {
	if !shell.KnownRoute(shell.RouteKey(r.URL.Path)) {
		http.NotFound(w, r)
		return
	}
	servePage(w, r, "static/index.html")
}

func servePage(w http.ResponseWriter, r *http.Request, name string) {
	b, err := webui.Static.ReadFile(name)
	if err != nil {
		writeError(w, r, "page not found", "NOT_FOUND", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
}

