package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/domain"
	"github.com/viralforge/mesh/services/integrations/affiliation-service/internal/ports"
)

const siteName = "Système d'Affiliation"

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "affiliation_link"}}<p>Bonjour {{.Name}},</p>
<p>Votre compte d'influenceur a été créé avec succès !</p>
<p>Votre lien d'affiliation : <a href="{{.Link}}">{{.Link}}</a></p>
<p>Vous pouvez utiliser ce lien pour promouvoir nos formations et gagner des commissions.</p>
<p>Cordialement,<br>L'équipe {{.Site}}</p>{{end}}
{{define "welcome"}}<p>Bienvenue {{.Name}} !</p>
<p>Nous sommes ravis de vous accueillir dans notre programme d'affiliation.</p>
<p>Votre lien d'affiliation : <a href="{{.Link}}">{{.Link}}</a></p>
<p>Cordialement,<br>L'équipe {{.Site}}</p>{{end}}
{{define "commission"}}<p>Félicitations {{.Name}} !</p>
<p>Une nouvelle commission de <strong>{{.Amount}} {{.Currency}}</strong> a été enregistrée pour vous.</p>
<p>{{.Description}}</p>
<p>Cordialement,<br>L'équipe {{.Site}}</p>{{end}}
{{define "paid"}}<p>Bonjour {{.Name}},</p>
<p>Votre commission de <strong>{{.Amount}} {{.Currency}}</strong> a été payée.</p>
<p>Cordialement,<br>L'équipe {{.Site}}</p>{{end}}
`))

type mailView struct {
	Name        string
	Link        string
	Amount      string
	Currency    string
	Description string
	Site        string
}

// MailDispatcher turns domain events into notification emails. Delivery
// failures are logged and never returned, so mail can't hold back the outbox.
type MailDispatcher struct {
	logger *slog.Logger
	mailer ports.Mailer
}

func NewMailDispatcher(logger *slog.Logger, mailer ports.Mailer) *MailDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailDispatcher{logger: logger, mailer: mailer}
}

func (d *MailDispatcher) Publish(ctx context.Context, eventType, _ string, payload []byte) error {
	if d.mailer == nil {
		return nil
	}
	messages, err := d.render(eventType, payload)
	if err != nil {
		d.logger.WarnContext(ctx, "notification render failed",
			"module", "events.mail_dispatcher",
			"layer", "adapter",
			"operation", "render_notification",
			"outcome", "failure",
			"event_type", eventType,
			"error", err,
		)
		return nil
	}
	for _, msg := range messages {
		d.send(ctx, msg)
	}
	return nil
}

type namedMessage struct {
	template string
	msg      ports.MailMessage
}

func (d *MailDispatcher) render(eventType string, payload []byte) ([]namedMessage, error) {
	switch eventType {
	case domain.EventInfluencerCreated:
		var p domain.InfluencerCreatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		view := mailView{Name: p.Name, Link: p.AffiliationLink, Site: siteName}
		link, err := renderMessage("affiliation_link", p.Email, "Votre lien d'affiliation - "+p.Name, view,
			fmt.Sprintf("Bonjour %s,\n\nVotre compte d'influenceur a été créé avec succès !\n\nVotre lien d'affiliation : %s\n\nCordialement,\nL'équipe %s", p.Name, p.AffiliationLink, siteName))
		if err != nil {
			return nil, err
		}
		welcome, err := renderMessage("welcome", p.Email, "Bienvenue dans notre programme d'affiliation - "+p.Name, view,
			fmt.Sprintf("Bienvenue %s !\n\nVotre lien d'affiliation : %s\n\nCordialement,\nL'équipe %s", p.Name, p.AffiliationLink, siteName))
		if err != nil {
			return nil, err
		}
		return []namedMessage{link, welcome}, nil

	case domain.EventRemiseCreated, domain.EventRemisePaid:
		var p domain.RemiseEventPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.InfluencerEmail == "" {
			return nil, nil
		}
		view := mailView{Name: p.InfluencerName, Amount: p.Amount, Currency: p.Currency, Description: p.Description, Site: siteName}
		if eventType == domain.EventRemisePaid {
			msg, err := renderMessage("paid", p.InfluencerEmail, "Commission payée - "+p.InfluencerName, view,
				fmt.Sprintf("Bonjour %s,\n\nVotre commission de %s %s a été payée.\n\nCordialement,\nL'équipe %s", p.InfluencerName, p.Amount, p.Currency, siteName))
			if err != nil {
				return nil, err
			}
			return []namedMessage{msg}, nil
		}
		msg, err := renderMessage("commission", p.InfluencerEmail, "Nouvelle commission gagnée - "+p.InfluencerName, view,
			fmt.Sprintf("Félicitations %s !\n\nUne nouvelle commission de %s %s a été enregistrée.\n\n%s\n\nCordialement,\nL'équipe %s", p.InfluencerName, p.Amount, p.Currency, p.Description, siteName))
		if err != nil {
			return nil, err
		}
		return []namedMessage{msg}, nil
	}
	return nil, nil
}

func renderMessage(name, to, subject string, view mailView, text string) (namedMessage, error) {
	var buf bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&buf, name, view); err != nil {
		return namedMessage{}, fmt.Errorf("render %s: %w", name, err)
	}
	return namedMessage{
		template: name,
		msg: ports.MailMessage{
			To:       []string{to},
			Subject:  subject,
			HTMLBody: buf.String(),
			TextBody: text,
		},
	}, nil
}

func (d *MailDispatcher) send(ctx context.Context, m namedMessage) {
	if err := d.mailer.Send(ctx, m.msg); err != nil {
		notificationsSent.WithLabelValues(m.template, "failure").Inc()
		d.logger.WarnContext(ctx, "notification email failed",
			"module", "events.mail_dispatcher",
			"layer", "adapter",
			"operation", "send_notification",
			"outcome", "failure",
			"template", m.template,
			"error", err,
		)
		return
	}
	notificationsSent.WithLabelValues(m.template, "success").Inc()
	d.logger.InfoContext(ctx, "notification email sent",
		"module", "events.mail_dispatcher",
		"layer", "adapter",
		"operation", "send_notification",
		"outcome", "success",
		"template", m.template,
	)
}
