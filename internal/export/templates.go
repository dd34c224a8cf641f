package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"join": strings.Join,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/page.html")
	if err != nil {
		pageTemplate = template.Must(template.New("page").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	pageTemplate = template.Must(template.New("page").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for page template rendering.
type TemplateData struct {
	Title       string
	Emoji       string
	WorldName   string
	Breadcrumb  []string
	Children    []string
	ContentHTML template.HTML
	Author      string
	UpdatedAt   time.Time
}

// RenderPageHTML renders a page into a complete HTML document.
func RenderPageHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const fallbackTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
  <h1>{{if .Emoji}}{{.Emoji}} {{end}}{{.Title}}</h1>
  <p>{{.WorldName}}</p>
  <div>{{.ContentHTML}}</div>
  {{range .Children}}<p>{{.}}</p>{{end}}
</body>
</html>`
