package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"logiflow/api/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			if t.IsZero() {
				return ""
			}
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for report rendering
type TemplateData struct {
	Project      store.Project
	GeneratedAt  time.Time
	Approvals    int
	Rejections   int
	Stakeholders []TemplateStakeholder
	Decisions    []Decision
	Versions     []Version
}

type TemplateStakeholder struct {
	Name     string
	Role     string
	Comments string
}

func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Project.Name}} approvals</title></head>
<body>
  <h1>{{.Project.Name}}</h1>
  <p>{{.Approvals}} approvals, {{.Rejections}} rejections.</p>
  {{range .Decisions}}<p>{{.Role}}: {{.Status}} {{.Comments}}</p>{{end}}
</body>
</html>`
