package cli

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

const projectTemplate = `
=== Project ===

Name:    {{.Name}}
ID:      {{.ID}}
Owner:   {{.OwnerID}}
{{- if .Description }}
About:   {{deref .Description}}
{{- end}}
Created: {{date .CreatedAt}}
`

const taskTemplate = `
=== Task ===

Title:    {{.Title}}
ID:       {{.ID}}
Project:  {{.ProjectID}}
Status:   {{.Status}}
Priority: {{.Priority}}
{{- if .AssigneeID }}
Assignee: {{deref .AssigneeID}}
{{- end}}
{{- if .DueDate }}
Due:      {{date .DueDate}}
{{- end}}
Updated:  {{date .UpdatedAt}}
`

var (
	projectTmpl = template.Must(template.New("project").Funcs(templateFuncs).Parse(projectTemplate))
	taskTmpl    = template.Must(template.New("task").Funcs(templateFuncs).Parse(taskTemplate))
)

func (c *Cli) render(tmpl *template.Template, data any) error {
	if err := tmpl.Execute(c.io, data); err != nil {
		return fmt.Errorf("failed to render output: %w", err)
	}
	return nil
}

// truncate обрезает строку до n символов для табличного вывода
func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
