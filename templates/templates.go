// Package templates embeds the HTML screens.
package templates

import (
	"embed"
	"html/template"
)

//go:embed *.tmpl
var FS embed.FS

var funcs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
}

// Load parses every screen, each template is named after its file
func Load() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(FS, "*.tmpl")
}
