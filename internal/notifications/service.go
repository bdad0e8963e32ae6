package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/redditmod/modbot/internal/config"
	"github.com/redditmod/modbot/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service mirrors run summaries and report alerts to Teams and email
type Service struct {
	config *config.Config
	client *resty.Client
	send   func(m *gomail.Message) error
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	s := &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
	s.send = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
		return d.DialAndSend(m)
	}
	return s
}

// Enabled reports whether any channel is configured
func (s *Service) Enabled() bool {
	return s.config.TeamsWebhookURL != "" || s.config.NotificationEmail != ""
}

// SendRunReport summarizes a moderation run on every configured channel
func (s *Service) SendRunReport(ctx context.Context, report *models.RunReport) error {
	html, err := buildReportHTML(report)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}
	subject := fmt.Sprintf("Moderation run %s (%d actions)", report.StartedAt.Format("2006-01-02 15:04 UTC"), report.TotalActions)
	return s.broadcast(ctx, buildReportTeamsMessage(report), subject, buildReportText(report), html)
}

// SendAlert mirrors a report-threshold alert on every configured channel
func (s *Service) SendAlert(ctx context.Context, alert *models.Alert) error {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("%s - /r/%s", alert.Title, alert.Community),
		Text:    alert.Message,
		Sections: []TeamsSection{{
			Facts: []TeamsFact{
				{Name: "Community", Value: "/r/" + alert.Community},
				{Name: "Item", Value: alert.Permalink},
				{Name: "Raised", Value: alert.CreatedAt.Format("2006-01-02 15:04:05 UTC")},
			},
			Markdown: true,
		}},
	}
	subject := fmt.Sprintf("%s in /r/%s", alert.Title, alert.Community)
	text := alert.Message + "\n"
	html := fmt.Sprintf(`<p>%s</p><p><a href="%s">%s</a></p>`,
		template.HTMLEscapeString(strings.TrimSpace(strings.TrimSuffix(alert.Message, alert.Permalink))),
		template.HTMLEscapeString(alert.Permalink), template.HTMLEscapeString(alert.Permalink))
	return s.broadcast(ctx, message, subject, text, html)
}

func (s *Service) broadcast(ctx context.Context, message *TeamsMessage, subject, text, html string) error {
	var errs error

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(ctx, message); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errs = errors.Join(errs, fmt.Errorf("teams: %w", err))
		} else {
			logrus.Debug("Sent Teams notification")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(subject, text, html); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errs = errors.Join(errs, fmt.Errorf("email: %w", err))
		} else {
			logrus.Debug("Sent email notification")
		}
	}

	return errs
}

func (s *Service) sendToTeams(ctx context.Context, message *TeamsMessage) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) sendEmail(subject, text, html string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// sortedCounts flattens a count map into name order
func sortedCounts(counts map[string]int) []TeamsFact {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	facts := make([]TeamsFact, 0, len(keys))
	for _, k := range keys {
		facts = append(facts, TeamsFact{Name: k, Value: fmt.Sprintf("%d", counts[k])})
	}
	return facts
}

func buildReportTeamsMessage(report *models.RunReport) *TeamsMessage {
	title := "Moderation Run Summary"
	if report.DryRun {
		title += " (dry run)"
	}

	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   title,
		Text:    fmt.Sprintf("%d actions across %d communities in %s", report.TotalActions, len(report.Communities), report.Duration),
	}

	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts: []TeamsFact{
			{Name: "Started", Value: report.StartedAt.Format("2006-01-02 15:04:05 UTC")},
			{Name: "Total Actions", Value: fmt.Sprintf("%d", report.TotalActions)},
			{Name: "Modmail Replies", Value: fmt.Sprintf("%d", report.ModmailReplies)},
		},
		Markdown: true,
	})

	for _, c := range report.Communities {
		facts := sortedCounts(c.Actions)
		if c.Reapprovals > 0 {
			facts = append(facts, TeamsFact{Name: "reapprovals", Value: fmt.Sprintf("%d", c.Reapprovals)})
		}
		section := TeamsSection{
			ActivityTitle: "/r/" + c.Community,
			Facts:         facts,
			Markdown:      true,
		}
		if c.Error != "" {
			section.ActivitySubtitle = "Failed: " + c.Error
		}
		message.Sections = append(message.Sections, section)
	}

	return message
}

var reportTemplate = template.Must(template.New("email").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Moderation Run Summary</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #ff4500; color: white; padding: 20px; border-radius: 5px; }
        .community { border-left: 4px solid #ff4500; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .failed { border-left-color: #d13438; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Moderation Run Summary{{if .DryRun}} (dry run){{end}}</h1>
        <p>Started {{.StartedAt.Format "January 2, 2006 at 3:04 PM UTC"}}, took {{.Duration}}</p>
    </div>

    <p><strong>Total Actions:</strong> {{.TotalActions}}</p>
    <p><strong>Modmail Replies:</strong> {{.ModmailReplies}}</p>

    {{range .Communities}}
    <div class="community{{if .Error}} failed{{end}}">
        <h3>/r/{{.Community}}</h3>
        {{if .Error}}<p>Failed: {{.Error}}</p>{{end}}
        {{range $action, $count := .Actions}}<p>{{$action}}: {{$count}}</p>{{end}}
        {{if .Reapprovals}}<p>reapprovals: {{.Reapprovals}}</p>{{end}}
    </div>
    {{end}}

    <hr>
    <p><small>This summary was generated automatically by the moderation bot.</small></p>
</body>
</html>
`))

func buildReportHTML(report *models.RunReport) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildReportText(report *models.RunReport) string {
	var text strings.Builder

	text.WriteString("Moderation Run Summary\n")
	text.WriteString(fmt.Sprintf("Started: %s (%s)\n\n", report.StartedAt.Format("2006-01-02 15:04:05 UTC"), report.Duration))
	text.WriteString(fmt.Sprintf("Total Actions: %d\n", report.TotalActions))
	text.WriteString(fmt.Sprintf("Modmail Replies: %d\n", report.ModmailReplies))

	for _, c := range report.Communities {
		text.WriteString(fmt.Sprintf("\n/r/%s\n", c.Community))
		if c.Error != "" {
			text.WriteString(fmt.Sprintf("   Failed: %s\n", c.Error))
		}
		for _, f := range sortedCounts(c.Actions) {
			text.WriteString(fmt.Sprintf("   %s: %s\n", f.Name, f.Value))
		}
		if c.Reapprovals > 0 {
			text.WriteString(fmt.Sprintf("   reapprovals: %d\n", c.Reapprovals))
		}
	}

	text.WriteString("\n---\nThis summary was generated automatically by the moderation bot.\n")
	return text.String()
}
