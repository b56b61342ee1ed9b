package gui

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templatesFS embed.FS

var tmpl = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// MenuItem is a navigation entry already filtered by the caller's
// permissions; the templates never see entries the principal cannot
// open.
type MenuItem struct {
	Label string
	Path  string
}

type LoginData struct {
	Redirect string
}

type AppData struct {
	Title   string
	Section string
	Menu    []MenuItem
	UserID  string
	Name    string
	Email   string
	Roles   []string
}

func RenderLogin(w io.Writer, data LoginData) error {
	return tmpl.ExecuteTemplate(w, "login.html", data)
}

func RenderApp(w io.Writer, data AppData) error {
	return tmpl.ExecuteTemplate(w, "app.html", data)
}

func RenderUnauthorized(w io.Writer) error {
	return tmpl.ExecuteTemplate(w, "unauthorized.html", nil)
}
