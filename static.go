package traverse

import (
	"fmt"
	"net/http"
	"strings"
)

// staticHandler serves files below the configured static directory.
// Rendered documents are always no-store; files get a real max-age.
func (a *App) staticHandler() http.Handler {
	fs := http.FileServer(http.Dir(a.config.Static.Dir))
	prefix := strings.TrimSuffix(a.config.Static.Prefix, "/")
	cacheControl := fmt.Sprintf("public, max-age=%d", int(a.config.Static.MaxAge.Seconds()))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reject traversal before the path reaches the filesystem.
		if strings.Contains(r.URL.Path, "..") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", cacheControl)
		http.StripPrefix(prefix, fs).ServeHTTP(w, r)
	})
}
