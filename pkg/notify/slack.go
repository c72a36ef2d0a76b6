package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/slack-go/slack"

	"github.com/moverwatch/moverwatch/pkg/types"
)

func init() {
	Register("slack", NewSlackProvider)
}

// slackColors maps priority onto attachment colors.
var slackColors = map[types.Priority]string{
	types.PriorityLow:    "#95a5a6",
	types.PriorityNormal: "#3498db",
	types.PriorityHigh:   "warning",
	types.PriorityUrgent: "danger",
}

// SlackProvider posts messages to a Slack incoming webhook.
type SlackProvider struct {
	webhookURL string
	channel    string
}

// NewSlackProvider builds a Slack provider from its config section.
func NewSlackProvider(settings map[string]any) (Provider, error) {
	webhookURL, err := stringSetting(settings, "webhook_url")
	if err != nil {
		return nil, err
	}
	channel, _ := settings["channel"].(string)

	return &SlackProvider{webhookURL: webhookURL, channel: channel}, nil
}

// Name implements Provider.
func (s *SlackProvider) Name() string { return "slack" }

// ValidateConfig checks the webhook URL shape.
func (s *SlackProvider) ValidateConfig() error {
	u, err := url.Parse(s.webhookURL)
	if err != nil {
		return fmt.Errorf("webhook_url is not a URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("webhook_url must be https")
	}
	if !strings.Contains(u.Host, "slack.com") && !strings.Contains(u.Path, "/services/") {
		return fmt.Errorf("webhook_url does not look like a Slack webhook")
	}
	return nil
}

// Send posts one attachment per message.
func (s *SlackProvider) Send(ctx context.Context, msg types.Message) error {
	fields := make([]slack.AttachmentField, 0, len(msg.Metadata))
	for k, v := range msg.Metadata {
		fields = append(fields, slack.AttachmentField{Title: k, Value: v, Short: true})
	}

	payload := &slack.WebhookMessage{
		Channel: s.channel,
		Attachments: []slack.Attachment{{
			Title:  msg.Title,
			Text:   msg.Content,
			Color:  slackColors[msg.Priority],
			Fields: fields,
		}},
	}

	if err := slack.PostWebhookContext(ctx, s.webhookURL, payload); err != nil {
		return fmt.Errorf("slack webhook failed: %w", err)
	}
	return nil
}
