// Package render turns a content template and a variable map into a
// message subject and body.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Renderer renders registered message templates.
type Renderer struct {
	templates *template.Template
}

// New loads the embedded message templates.
func New() (*Renderer, error) {
	funcs := template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	tmpl, err := template.New("messages").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse message templates: %w", err)
	}

	return &Renderer{templates: tmpl}, nil
}

// Render executes the subject and body templates registered under
// templateID with the given variables.
func (r *Renderer) Render(templateID string, variables map[string]any) (subject, body string, err error) {
	subject, err = r.execute(templateID+"_subject.tmpl", variables)
	if err != nil {
		return "", "", err
	}
	body, err = r.execute(templateID+"_body.tmpl", variables)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subject), strings.TrimSpace(body), nil
}

// AlertVariables builds the template variable map for an alert.
func AlertVariables(alert *models.Alert) map[string]any {
	vars := map[string]any{
		"AlertID":     alert.ID,
		"AlertType":   alert.Type,
		"Severity":    string(alert.Severity),
		"Title":       alert.Title,
		"Description": alert.Description,
		"EntityType":  alert.SourceEntityType,
		"EntityID":    alert.SourceEntityID,
		"Occurrences": alert.OccurrenceCount,
		"DetectedAt":  alert.DetectedAt.Format("2006-01-02 15:04:05 MST"),
	}
	return vars
}

// EscalationVariables builds the template variable map for an
// escalation notice at the given level.
func EscalationVariables(alert *models.Alert, level int) map[string]any {
	vars := AlertVariables(alert)
	vars["Level"] = level
	vars["AgeMinutes"] = 0
	if !alert.DetectedAt.IsZero() && alert.UpdatedAt.After(alert.DetectedAt) {
		vars["AgeMinutes"] = int(alert.UpdatedAt.Sub(alert.DetectedAt).Minutes())
	}
	return vars
}

func (r *Renderer) execute(name string, variables map[string]any) (string, error) {
	tmpl := r.templates.Lookup(name)
	if tmpl == nil {
		return "", fmt.Errorf("unknown template %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, variables); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
