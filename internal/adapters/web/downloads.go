package web

import (
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// download handles GET /downloads/{file}, serving installer files from the download
// directory as attachments. Only plain file names in that directory are served.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	if !safeFileName(name) {
		writeError(w, r, "file not found", "NOT_FOUND", http.StatusNotFound)
		return
	}
	f, err := os.Open(filepath.Join(h.downloadDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, r, "file not found", "NOT_FOUND", http.StatusNotFound)
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if !info.Mode().IsRegular() {
		writeError(w, r, "file not found", "NOT_FOUND", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func safeFileName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}
