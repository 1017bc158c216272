package notifier

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/good-yellow-bee/staleguard/internal/aggregate"
	"github.com/good-yellow-bee/staleguard/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds the parsed message templates, one HTML/plain pair per
// notification class.
type Templates struct {
	html  map[models.NotificationClass]*template.Template
	plain map[models.NotificationClass]*template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	TotalItems     int
	Items          []ItemData
	SeverityCounts map[string]int
	TotalFindings  int
	Findings       []FindingData
}

// ItemData is one overdue asset line in a reminder message.
type ItemData struct {
	Label         string
	Severity      string
	SeverityColor string
	OverdueDays   int
	FindingCount  int
}

// FindingData is one new-finding line in a digest message.
type FindingData struct {
	AssetLabel    string
	Title         string
	Severity      string
	SeverityColor string
	DetectedAt    string
}

// templateNames maps each class to its embedded template basename.
var templateNames = map[models.NotificationClass]string{
	models.ClassReminder:  "reminder",
	models.ClassEscalated: "escalated",
	models.ClassDigest:    "digest",
}

// LoadTemplates loads the embedded message templates.
func LoadTemplates() (*Templates, error) {
	funcs := template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}

	t := &Templates{
		html:  make(map[models.NotificationClass]*template.Template),
		plain: make(map[models.NotificationClass]*template.Template),
	}

	for class, name := range templateNames {
		htmlTmpl, err := template.New(name+".html").Funcs(funcs).ParseFS(templateFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s.html: %w", name, err)
		}
		plainTmpl, err := template.New(name+".txt").Funcs(funcs).ParseFS(templateFS, "templates/"+name+".txt")
		if err != nil {
			return nil, fmt.Errorf("parse %s.txt: %w", name, err)
		}
		t.html[class] = htmlTmpl
		t.plain[class] = plainTmpl
	}

	return t, nil
}

// Render converts a bundle into a final message with both rich and plain
// bodies. A rendering failure is terminal for this one message only.
func (t *Templates) Render(b *aggregate.Bundle) (*Message, error) {
	if !models.ValidNotificationClass(b.Class) {
		return nil, fmt.Errorf("unknown notification class: %s", b.Class)
	}

	data := bundleToTemplateData(b)

	var htmlBuf, plainBuf bytes.Buffer
	if err := t.html[b.Class].Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("render %s html: %w", b.Class, err)
	}
	if err := t.plain[b.Class].Execute(&plainBuf, data); err != nil {
		return nil, fmt.Errorf("render %s plain: %w", b.Class, err)
	}

	return &Message{
		To:        b.Recipient,
		Subject:   subjectFor(b),
		HTMLBody:  htmlBuf.String(),
		PlainBody: plainBuf.String(),
		Class:     b.Class,
	}, nil
}

// subjectFor builds the subject line for a bundle.
func subjectFor(b *aggregate.Bundle) string {
	switch b.Class {
	case models.ClassEscalated:
		return fmt.Sprintf("[StaleGuard] URGENT: %d overdue assets require remediation", len(b.Items))
	case models.ClassDigest:
		return fmt.Sprintf("[StaleGuard] New findings digest: %d new findings", len(b.Findings))
	default:
		return fmt.Sprintf("[StaleGuard] Reminder: %d assets overdue for remediation", len(b.Items))
	}
}

// severityColor returns the display color for a severity level.
func severityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#d32f2f" // red
	case models.SeverityHigh:
		return "#f57c00" // orange
	case models.SeverityMedium:
		return "#fbc02d" // yellow
	case models.SeverityLow:
		return "#388e3c" // green
	default:
		return "#757575" // gray
	}
}

// bundleToTemplateData converts a bundle to template data.
func bundleToTemplateData(b *aggregate.Bundle) TemplateData {
	data := TemplateData{
		TotalItems:     len(b.Items),
		TotalFindings:  len(b.Findings),
		SeverityCounts: make(map[string]int, len(b.SeverityCounts)),
	}
	for sev, count := range b.SeverityCounts {
		data.SeverityCounts[string(sev)] = count
	}

	for _, item := range b.Items {
		data.Items = append(data.Items, ItemData{
			Label:         item.Label,
			Severity:      string(item.Severity),
			SeverityColor: severityColor(item.Severity),
			OverdueDays:   item.OverdueDays,
			FindingCount:  item.FindingCount,
		})
	}

	for _, f := range b.Findings {
		data.Findings = append(data.Findings, FindingData{
			AssetLabel:    f.AssetLabel,
			Title:         f.Title,
			Severity:      string(f.Severity),
			SeverityColor: severityColor(f.Severity),
			DetectedAt:    f.DetectedAt.Format("2006-01-02"),
		})
	}

	return data
}
