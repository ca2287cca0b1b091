package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/bissquit/deploy-sentry/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const maxSubjectTitleLen = 50

// EmailData is everything the incident email template needs.
type EmailData struct {
	Incident   *domain.Incident
	Analysis   *domain.Analysis
	ApproveURL string
	DismissURL string
}

// Renderer renders incident notification emails from templates.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":         titleCase,
		"upper":         strings.ToUpper,
		"formatTime":    formatTime,
		"severityEmoji": severityEmoji,
		"percent":       percent,
	}

	tmpl, err := template.New("incident_email.tmpl").Funcs(funcMap).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the subject and HTML body for an incident email.
func (r *Renderer) Render(data EmailData) (subject, body string, err error) {
	subject = renderSubject(data.Incident)

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "incident_email.tmpl", data); err != nil {
		return "", "", fmt.Errorf("execute template: %w", err)
	}

	return subject, strings.TrimSpace(buf.String()), nil
}

func renderSubject(incident *domain.Incident) string {
	title := incident.Title
	if runes := []rune(title); len(runes) > maxSubjectTitleLen {
		title = string(runes[:maxSubjectTitleLen])
	}
	return fmt.Sprintf("[Incident] %s", title)
}

// Template functions

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func severityEmoji(severity domain.IncidentSeverity) string {
	switch severity {
	case domain.IncidentSeverityMinor:
		return "🟡"
	case domain.IncidentSeverityMajor:
		return "🟠"
	case domain.IncidentSeverityCritical:
		return "🔴"
	default:
		return "⚪"
	}
}

func percent(f float64) string {
	return fmt.Sprintf("%d%%", int(f*100))
}
