// Package web serves the invoice listing page.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var embedded embed.FS

// Handler serves the embedded page and its script. A non-empty dir serves
// files from disk instead, for editing the page without rebuilding.
func Handler(dir string) (http.Handler, error) {
	var fsys http.FileSystem
	if dir != "" {
		fsys = http.Dir(dir)
	} else {
		sub, err := fs.Sub(embedded, "static")
		if err != nil {
			return nil, err
		}
		fsys = http.FS(sub)
	}

	files := http.FileServer(fsys)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		files.ServeHTTP(w, r)
	}), nil
}
