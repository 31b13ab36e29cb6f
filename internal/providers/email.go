package providers

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html"
	"html/template"
	"strings"
	"sync"

	"github.com/Masterminds/sprig/v3"
	"github.com/sirupsen/logrus"

	"escalation-service/internal/logging"
	"escalation-service/internal/models"
	"escalation-service/pkg/email"
)

//go:embed templates/*.html
var templateFS embed.FS

// mailer is satisfied by *email.Client.
type mailer interface {
	Send(to, subject, body string) error
}

// EmailProvider renders a named template and mails it to one recipient.
type EmailProvider struct {
	mailer mailer
	logger *logging.Logger

	mu        sync.Mutex
	templates map[string]*template.Template
}

func NewEmailProvider(m mailer, logger *logging.Logger) *EmailProvider {
	return &EmailProvider{mailer: m, logger: logger, templates: make(map[string]*template.Template)}
}

// SendEmail reports a recipient rejection as an unsuccessful DeliveryResult and
// returns an error only for template, transport or configuration failures.
func (p *EmailProvider) SendEmail(ctx context.Context, to, templateName string, data map[string]any) (models.DeliveryResult, error) {
	if err := ctx.Err(); err != nil {
		return models.DeliveryResult{}, err
	}
	subject, body, err := p.Render(templateName, data)
	if err != nil {
		return models.DeliveryResult{}, err
	}

	if err := p.mailer.Send(to, subject, body); err != nil {
		if email.IsRecipientRejected(err) || !strings.Contains(to, "@") {
			p.logger.WithFields(logrus.Fields{"to": to, "template": templateName}).Warnf("Recipient rejected: %v", err)
			return models.DeliveryResult{Success: false, Error: err.Error()}, nil
		}
		return models.DeliveryResult{}, fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	p.logger.WithFields(logrus.Fields{"to": to, "template": templateName}).Info("Email sent")
	return models.DeliveryResult{Success: true}, nil
}

// Render executes the "subject" and "body" blocks of templates/<name>.html.
func (p *EmailProvider) Render(name string, data map[string]any) (string, string, error) {
	t, err := p.template(name)
	if err != nil {
		return "", "", err
	}
	var subject, body bytes.Buffer
	if err := t.ExecuteTemplate(&subject, "subject", data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := t.ExecuteTemplate(&body, "body", data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", name, err)
	}
	// Subjects are plain text headers, not HTML.
	return strings.TrimSpace(html.UnescapeString(subject.String())), body.String(), nil
}

func (p *EmailProvider) template(name string) (*template.Template, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.templates[name]; ok {
		return t, nil
	}
	t, err := template.New(name).Funcs(sprig.FuncMap()).ParseFS(templateFS, "templates/"+name+".html")
	if err != nil {
		return nil, fmt.Errorf("email template %q: %w", name, err)
	}
	p.templates[name] = t
	return t, nil
}
