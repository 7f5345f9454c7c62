// Package ui embeds the tariff dashboard: a page that polls the status
// endpoint of every schedule and draws its day as a coloured bar.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var content embed.FS

// Handler serves the dashboard assets under /. Assets are revalidated on
// every load so a redeploy shows up without a hard refresh.
func Handler() http.Handler {
	static, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	files := http.FileServerFS(static)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, r)
	})
}
