// web/embed.go
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed static/* templates/*.html
var files embed.FS

func StaticFS() http.FileSystem {
	fsys, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(fsys)
}

// Page names accepted by Pages.
const (
	PageIndex = "index.html"
	PageGate  = "gate.html"
)

// Pages parses each page together with the shared layout. Every page defines
// "content" and is rendered through the "base" template.
func Pages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{PageIndex, PageGate} {
		t, err := template.ParseFS(files, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}
