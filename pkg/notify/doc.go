// Package notify defines the notification provider contract and the built-in
// providers (Discord, Telegram, Slack, and a log-only provider for dry runs).
//
// Providers are registered in a process-global registry by name and built from
// opaque config sections, so enabling a channel is a config change rather than
// a code change. Construction validates settings up front; Send delivers a
// single message and reports transient rate limiting through errors that
// implement a RetryAfter hint.
//
// The package also carries the message template helpers (byte, duration, and
// percentage formatting) used to render event payloads into human-readable
// notification text.
package notify
