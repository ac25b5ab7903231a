// Package web serves the two application views.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed static
var static embed.FS

// AdminPath is the exact path of the admin view.
const AdminPath = "/admin"

// apiPrefix marks RPC routes, which never fall back to a view.
const apiPrefix = "/rollcall.v1."

// Handler selects the view by exact path: AdminPath serves the admin
// dashboard and every other path serves the check-in form.
func Handler() http.Handler {
	checkin := mustRead("static/checkin.html")
	admin := mustRead("static/admin.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, apiPrefix) {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		page := checkin
		if r.URL.Path == AdminPath {
			page = admin
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(page)
	})
}

func mustRead(name string) []byte {
	b, err := fs.ReadFile(static, name)
	if err != nil {
		panic(err)
	}
	return b
}
