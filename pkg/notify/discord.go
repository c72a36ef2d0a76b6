package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/moverwatch/moverwatch/pkg/types"
)

func init() {
	Register("discord", NewDiscordProvider)
}

// discordTimeout bounds one webhook POST.
const discordTimeout = 10 * time.Second

// discordColors maps priority onto embed accent colors.
var discordColors = map[types.Priority]int{
	types.PriorityLow:    0x95a5a6,
	types.PriorityNormal: 0x3498db,
	types.PriorityHigh:   0xe67e22,
	types.PriorityUrgent: 0xe74c3c,
}

// DiscordProvider posts messages to a Discord webhook.
type DiscordProvider struct {
	webhookURL string
	username   string
	client     *http.Client
}

// NewDiscordProvider builds a Discord provider from its config section.
func NewDiscordProvider(settings map[string]any) (Provider, error) {
	webhookURL, err := stringSetting(settings, "webhook_url")
	if err != nil {
		return nil, err
	}
	username, _ := settings["username"].(string)

	return &DiscordProvider{
		webhookURL: webhookURL,
		username:   username,
		client:     &http.Client{Timeout: discordTimeout},
	}, nil
}

// Name implements Provider.
func (d *DiscordProvider) Name() string { return "discord" }

// ValidateConfig checks the webhook URL shape without making a request.
func (d *DiscordProvider) ValidateConfig() error {
	u, err := url.Parse(d.webhookURL)
	if err != nil {
		return fmt.Errorf("webhook_url is not a URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("webhook_url must be http(s)")
	}
	if !strings.Contains(u.Path, "/api/webhooks/") {
		return fmt.Errorf("webhook_url does not look like a Discord webhook")
	}
	return nil
}

// Send posts one embed per message.
func (d *DiscordProvider) Send(ctx context.Context, msg types.Message) error {
	fields := make([]map[string]any, 0, len(msg.Metadata))
	for k, v := range msg.Metadata {
		fields = append(fields, map[string]any{"name": k, "value": v, "inline": true})
	}

	payload := map[string]any{
		"embeds": []map[string]any{{
			"title":       msg.Title,
			"description": msg.Content,
			"color":       discordColors[msg.Priority],
			"fields":      fields,
		}},
	}
	if d.username != "" {
		payload["username"] = d.username
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return rateLimitError(resp)
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("discord webhook returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
