package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// spaHandler serves a built single-page bundle. Paths that match no file
// fall back to index.html so client-side routes load the app.
type spaHandler struct {
	root  string
	files http.Handler
}

func newSPAHandler(root string) *spaHandler {
	return &spaHandler{root: root, files: http.FileServer(http.Dir(root))}
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clean := path.Clean("/" + r.URL.Path)
	info, err := os.Stat(filepath.Join(h.root, filepath.FromSlash(clean)))
	switch {
	case err == nil && !info.IsDir():
		h.files.ServeHTTP(w, r)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		http.Error(w, "internal server error", http.StatusInternalServerError)
	default:
		http.ServeFile(w, r, filepath.Join(h.root, "index.html"))
	}
}
