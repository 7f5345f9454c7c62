// Package swagger serves the API description and a Swagger UI page for it.
package swagger

import (
	"embed"
	"net/http"
)

//go:embed index.html openapi.yaml
var assets embed.FS

// Handler serves the Swagger UI at / and the API description at
// /openapi.yaml. Mount it under /openapi.
func Handler() http.Handler {
	files := http.FileServerFS(assets)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/openapi.yaml":
			w.Header().Set("Content-Type", "application/yaml")
		case "/", "":
		default:
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
