package notify

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// templateFuncs are the helpers available to message templates.
var templateFuncs = template.FuncMap{
	"bytes":    HumanBytes,
	"duration": HumanDuration,
	"percent":  func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"rate":     func(bps float64) string { return HumanBytes(int64(bps)) + "/s" },
	"upper":    strings.ToUpper,
}

// RenderTemplate executes a message template against an event payload.
// Missing keys render as "<no value>" rather than failing the notification.
func RenderTemplate(text string, data map[string]any) (string, error) {
	tmpl, err := template.New("message").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return sb.String(), nil
}

// HumanBytes renders a byte count with a binary-prefix unit.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// HumanDuration renders seconds as a compact h/m/s string.
func HumanDuration(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
