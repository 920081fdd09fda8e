package middleware

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// SPAFileServer serves the built web client. Requests for files that exist
// are served with long-lived caching; anything else falls back to index.html
// so client-side routes survive a hard refresh. API paths never reach this
// handler.
func SPAFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(r.URL.Path))

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			if strings.HasPrefix(filepath.Base(path), "index.") {
				w.Header().Set("Cache-Control", "no-cache")
			} else {
				w.Header().Set("Cache-Control", "public, max-age=2592000")
			}
			http.ServeFile(w, r, path)
			return
		}

		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	})
}
