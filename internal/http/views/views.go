// Package views embeds the kiosk page template.
package views

import (
	"embed"
	"html/template"
)

//go:embed *.html.tmpl
var files embed.FS

// Index renders the kiosk page from an httpapi.View.
var Index = template.Must(template.New("index.html.tmpl").ParseFS(files, "index.html.tmpl"))
