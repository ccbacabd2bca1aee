// Package email renders billing notification messages into plain-text mail.
package email

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"billingsync/internal/types"
)

//go:embed templates/*.txt
var templateFS embed.FS

// RenderedEmail holds the content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyText string
}

type templateData struct {
	AccountID  string
	PlanName   string
	OccurredAt string
	BillingURL string
	FromName   string
}

var subjects = map[types.NotificationKind]string{
	types.NotifyPaymentFailed:        "Action required: Payment failed",
	types.NotifySubscriptionCanceled: "Your subscription has been canceled",
}

// Renderer executes the embedded per-kind templates.
type Renderer struct {
	templates    map[types.NotificationKind]*template.Template
	dashboardURL string
	fromName     string
}

type RendererConfig struct {
	DashboardURL string
	FromName     string
}

// NewRenderer parses every embedded template. Returns an error if a kind has
// no template or a template fails to parse.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	r := &Renderer{
		templates:    make(map[types.NotificationKind]*template.Template, len(subjects)),
		dashboardURL: strings.TrimRight(cfg.DashboardURL, "/"),
		fromName:     cfg.FromName,
	}

	for kind := range subjects {
		name := string(kind)
		content, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.txt", name))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to read %s.txt: %w", name, err)
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to parse %s.txt: %w", name, err)
		}
		r.templates[kind] = tmpl
	}
	return r, nil
}

// Render produces the subject and body for msg.
func (r *Renderer) Render(msg types.BillingNotificationMessage) (*RenderedEmail, error) {
	tmpl, ok := r.templates[msg.Kind]
	if !ok {
		return nil, fmt.Errorf("renderer: no template for notification kind %q", msg.Kind)
	}

	data := templateData{
		AccountID:  msg.AccountID,
		PlanName:   planName(msg.Plan),
		OccurredAt: msg.OccurredAt.UTC().Format("January 2, 2006"),
		BillingURL: r.dashboardURL + "/settings/billing",
		FromName:   r.fromName,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render %q: %w", msg.Kind, err)
	}

	return &RenderedEmail{
		Subject:  subjects[msg.Kind],
		BodyText: buf.String(),
	}, nil
}

func planName(p types.PlanTier) string {
	if p == "" {
		return "paid"
	}
	s := string(p)
	return strings.ToUpper(s[:1]) + s[1:]
}
