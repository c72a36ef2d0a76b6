package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moverwatch/moverwatch/pkg/types"
)

func TestRegistryCreate(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", func(settings map[string]any) (Provider, error) {
		return &LogProvider{}, nil
	})

	t.Run("known provider", func(t *testing.T) {
		p, err := r.Create("stub", nil)
		require.NoError(t, err)
		assert.Equal(t, "log", p.Name())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := r.Create("nope", nil)
		assert.ErrorContains(t, err, "unknown provider")
	})

	t.Run("names are sorted", func(t *testing.T) {
		r.Register("alpha", NewLogProvider)
		assert.Equal(t, []string{"alpha", "stub"}, r.Names())
	})
}

func TestRegistryValidatesOnCreate(t *testing.T) {
	r := NewRegistry()
	r.Register("telegram", NewTelegramProvider)

	_, err := r.Create("telegram", map[string]any{
		"bot_token": "not-a-token",
		"chat_id":   "42",
	})
	assert.ErrorContains(t, err, "invalid config")
}

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name string
		text string
		data map[string]any
		want string
	}{
		{
			name: "plain fields",
			text: "{{.name}} is {{percent .pct}} done",
			data: map[string]any{"name": "mover", "pct": 42.5},
			want: "mover is 42.5% done",
		},
		{
			name: "byte and rate helpers",
			text: "{{bytes .n}} at {{rate .r}}",
			data: map[string]any{"n": int64(1536), "r": 2097152.0},
			want: "1.5 KiB at 2.0 MiB/s",
		},
		{
			name: "duration helper",
			text: "{{duration .s}}",
			data: map[string]any{"s": 3725.0},
			want: "1h2m",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderTemplate(tt.text, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("parse error", func(t *testing.T) {
		_, err := RenderTemplate("{{.broken", nil)
		assert.Error(t, err)
	})
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", HumanBytes(512))
	assert.Equal(t, "1.0 KiB", HumanBytes(1024))
	assert.Equal(t, "1.0 GiB", HumanBytes(1<<30))
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "0s", HumanDuration(0))
	assert.Equal(t, "45s", HumanDuration(45))
	assert.Equal(t, "2m5s", HumanDuration(125))
	assert.Equal(t, "3h0m", HumanDuration(10800))
}

func TestDiscordSend(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p, err := NewDiscordProvider(map[string]any{
		"webhook_url": srv.URL + "/api/webhooks/123/secret",
		"username":    "moverwatch",
	})
	require.NoError(t, err)
	require.NoError(t, p.ValidateConfig())

	msg := types.NewMessage("Transfer complete", "all done", types.PriorityNormal, nil,
		map[string]string{"path": "/srv/data"})
	require.NoError(t, p.Send(context.Background(), msg))

	assert.Equal(t, "moverwatch", got["username"])
	embeds := got["embeds"].([]any)
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]any)
	assert.Equal(t, "Transfer complete", embed["title"])
	assert.Equal(t, float64(discordColors[types.PriorityNormal]), embed["color"])
}

func TestDiscordRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := NewDiscordProvider(map[string]any{"webhook_url": srv.URL + "/api/webhooks/1/x"})
	require.NoError(t, err)

	err = p.Send(context.Background(), types.NewMessage("t", "c", types.PriorityNormal, nil, nil))
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 2*time.Second, rl.RetryAfter())
}

func TestDiscordValidateConfig(t *testing.T) {
	p, err := NewDiscordProvider(map[string]any{"webhook_url": "https://example.com/not-a-webhook"})
	require.NoError(t, err)
	assert.Error(t, p.ValidateConfig())
}

func TestTelegramSend(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p, err := NewTelegramProvider(map[string]any{
		"bot_token": "12345:abcdefghijklmnopqrstuvwxyz0123456789",
		"chat_id":   "-100200300",
		"api_base":  srv.URL,
	})
	require.NoError(t, err)
	require.NoError(t, p.ValidateConfig())

	msg := types.NewMessage("Done", "moved 1.5 GiB", types.PriorityLow, nil, nil)
	require.NoError(t, p.Send(context.Background(), msg))

	assert.Equal(t, "-100200300", form["chat_id"][0])
	assert.Equal(t, "true", form["disable_notification"][0])
	assert.Contains(t, form["text"][0], "moved 1\\.5 GiB")
}

func TestTelegramRateLimitedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"ok":false,"parameters":{"retry_after":7}}`))
	}))
	defer srv.Close()

	p, err := NewTelegramProvider(map[string]any{
		"bot_token": "12345:abcdefghijklmnopqrstuvwxyz0123456789",
		"chat_id":   "42",
		"api_base":  srv.URL,
	})
	require.NoError(t, err)

	err = p.Send(context.Background(), types.NewMessage("t", "c", types.PriorityNormal, nil, nil))
	var rl *RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 7*time.Second, rl.RetryAfter())
}

func TestTelegramValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		chatID  string
		wantErr bool
	}{
		{"valid numeric chat", "12345:abcdefghijklmnopqrstuvwxyz0123456789", "42", false},
		{"valid group chat", "12345:abcdefghijklmnopqrstuvwxyz0123456789", "-100", false},
		{"valid channel name", "12345:abcdefghijklmnopqrstuvwxyz0123456789", "@updates", false},
		{"bad token", "token", "42", true},
		{"bad chat id", "12345:abcdefghijklmnopqrstuvwxyz0123456789", "not-a-chat", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &TelegramProvider{token: tt.token, chatID: tt.chatID}
			err := p.ValidateConfig()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSlackValidateConfig(t *testing.T) {
	p, err := NewSlackProvider(map[string]any{
		"webhook_url": "https://hooks.slack.com/services/T000/B000/XXXX",
	})
	require.NoError(t, err)
	assert.NoError(t, p.ValidateConfig())

	bad, err := NewSlackProvider(map[string]any{"webhook_url": "http://example.com/x"})
	require.NoError(t, err)
	assert.Error(t, bad.ValidateConfig())
}

func TestLogProviderSend(t *testing.T) {
	p, err := Create("log", nil)
	require.NoError(t, err)
	msg := types.NewMessage("quiet", "no external call", types.PriorityUrgent, nil, nil)
	assert.NoError(t, p.Send(context.Background(), msg))
}

func TestStringSetting(t *testing.T) {
	_, err := stringSetting(map[string]any{}, "webhook_url")
	assert.ErrorContains(t, err, "missing required setting")

	_, err = stringSetting(map[string]any{"webhook_url": 7}, "webhook_url")
	assert.ErrorContains(t, err, "non-empty string")

	v, err := stringSetting(map[string]any{"webhook_url": "x"}, "webhook_url")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}
