package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/moverwatch/moverwatch/pkg/types"
)

func init() {
	Register("telegram", NewTelegramProvider)
}

const (
	telegramTimeout = 10 * time.Second
	telegramAPIBase = "https://api.telegram.org"
)

var telegramTokenShape = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{30,}$`)

// TelegramProvider sends messages through the Telegram bot API.
type TelegramProvider struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
}

// NewTelegramProvider builds a Telegram provider from its config section.
func NewTelegramProvider(settings map[string]any) (Provider, error) {
	token, err := stringSetting(settings, "bot_token")
	if err != nil {
		return nil, err
	}
	chatID, err := stringSetting(settings, "chat_id")
	if err != nil {
		return nil, err
	}

	apiBase := telegramAPIBase
	if base, ok := settings["api_base"].(string); ok && base != "" {
		apiBase = base
	}

	return &TelegramProvider{
		token:   token,
		chatID:  chatID,
		apiBase: apiBase,
		client:  &http.Client{Timeout: telegramTimeout},
	}, nil
}

// Name implements Provider.
func (t *TelegramProvider) Name() string { return "telegram" }

// ValidateConfig checks the token shape and chat id without calling the API.
func (t *TelegramProvider) ValidateConfig() error {
	if !telegramTokenShape.MatchString(t.token) {
		return fmt.Errorf("bot_token does not look like a Telegram bot token")
	}
	id := strings.TrimPrefix(t.chatID, "-")
	if _, err := strconv.ParseInt(id, 10, 64); err != nil && !strings.HasPrefix(t.chatID, "@") {
		return fmt.Errorf("chat_id must be numeric or an @channel name")
	}
	return nil
}

// ChatID exposes the target chat for rate-limit scoping.
func (t *TelegramProvider) ChatID() string { return t.chatID }

// Send delivers one message via sendMessage. Low-priority messages are sent
// silently.
func (t *TelegramProvider) Send(ctx context.Context, msg types.Message) error {
	text := fmt.Sprintf("*%s*\n%s", escapeMarkdown(msg.Title), escapeMarkdown(msg.Content))

	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "MarkdownV2")
	if msg.Priority == types.PriorityLow {
		form.Set("disable_notification", "true")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return rateLimitError(resp)
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

var markdownSpecials = strings.NewReplacer(
	"_", "\\_", "*", "\\*", "[", "\\[", "]", "\\]", "(", "\\(", ")", "\\)",
	"~", "\\~", "`", "\\`", ">", "\\>", "#", "\\#", "+", "\\+", "-", "\\-",
	"=", "\\=", "|", "\\|", "{", "\\{", "}", "\\}", ".", "\\.", "!", "\\!",
)

func escapeMarkdown(s string) string {
	return markdownSpecials.Replace(s)
}

// RateLimitedError carries a server-requested wait from a 429 response.
// The retry helper floors its next backoff interval at RetryAfter.
type RateLimitedError struct {
	After time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.After)
}

// RetryAfter implements retry.RetryAfter.
func (e *RateLimitedError) RetryAfter() time.Duration { return e.After }

// rateLimitError extracts the retry-after hint from a 429 response.
func rateLimitError(resp *http.Response) error {
	after := time.Second
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.ParseFloat(h, 64); err == nil {
			after = time.Duration(secs * float64(time.Second))
		}
	} else {
		// Telegram also reports the wait in the JSON body.
		var body struct {
			Parameters struct {
				RetryAfter float64 `json:"retry_after"`
			} `json:"parameters"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1024)).Decode(&body); err == nil && body.Parameters.RetryAfter > 0 {
			after = time.Duration(body.Parameters.RetryAfter * float64(time.Second))
		}
	}
	return &RateLimitedError{After: after}
}
