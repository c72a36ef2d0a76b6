package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the validated configuration the orchestrator is constructed from.
type Config struct {
	Monitoring    MonitoringConfig          `yaml:"monitoring"`
	Process       ProcessConfig             `yaml:"process"`
	Progress      ProgressConfig            `yaml:"progress"`
	Notifications NotificationsConfig       `yaml:"notifications"`
	Providers     map[string]map[string]any `yaml:"providers"`
	Dispatch      DispatchConfig            `yaml:"dispatch"`
	RateLimit     RateLimitConfig           `yaml:"rate_limit"`
	Logging       LoggingConfig             `yaml:"logging"`
	State         StateConfig               `yaml:"state"`
	Metrics       MetricsConfig             `yaml:"metrics"`
}

// MonitoringConfig controls the orchestrator loop.
type MonitoringConfig struct {
	IntervalSeconds         int  `yaml:"interval" validate:"gte=1"`
	DetectionTimeoutSeconds int  `yaml:"detection_timeout" validate:"gte=0"`
	DryRun                  bool `yaml:"dry_run"`
	RebaselineOnPIDChange   bool `yaml:"rebaseline_on_pid_change"`
}

// Interval returns the monitoring interval as a duration.
func (m MonitoringConfig) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

// DetectionTimeout returns the detection timeout as a duration.
func (m MonitoringConfig) DetectionTimeout() time.Duration {
	return time.Duration(m.DetectionTimeoutSeconds) * time.Second
}

// ProcessConfig identifies the mover process and the filesystems it drains.
type ProcessConfig struct {
	Name          string   `yaml:"name" validate:"required"`
	Paths         []string `yaml:"paths" validate:"required,min=1,dive,required"`
	PIDFile       string   `yaml:"pid_file"`
	WatchStrategy string   `yaml:"watch_strategy" validate:"omitempty,oneof=poll notify"`
}

// ProgressConfig tunes the estimator.
type ProgressConfig struct {
	MinChangeThreshold float64  `yaml:"min_change_threshold" validate:"gte=0,lte=100"`
	EstimationWindow   int      `yaml:"estimation_window" validate:"gte=2"`
	Exclusions         []string `yaml:"exclusions"`
}

// NotificationsConfig selects providers and subscribed events.
type NotificationsConfig struct {
	EnabledProviders []string `yaml:"enabled_providers"`
	Events           []string `yaml:"events"`
}

// DispatchConfig tunes the notification dispatcher.
type DispatchConfig struct {
	QueueSize            int     `yaml:"queue_size" validate:"gte=1"`
	Workers              int     `yaml:"workers" validate:"gte=1"`
	MaxAttempts          int     `yaml:"max_attempts" validate:"gte=1"`
	ThrottleSeconds      float64 `yaml:"throttle_seconds" validate:"gte=0"`
	DedupTTLSeconds      float64 `yaml:"dedup_ttl_seconds" validate:"gte=0"`
	ShutdownGraceSeconds float64 `yaml:"shutdown_grace_seconds" validate:"gte=0"`
}

// RateLimitConfig tunes the per-target token buckets and the hourly quota.
type RateLimitConfig struct {
	Capacity    float64 `yaml:"capacity" validate:"gt=0"`
	RefillRate  float64 `yaml:"refill_rate" validate:"gt=0"`
	HourlyQuota int     `yaml:"hourly_quota" validate:"gte=0"`
}

// LoggingConfig selects sinks and level.
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSONOutput bool   `yaml:"json"`
	Syslog     bool   `yaml:"syslog"`
	SyslogTag  string `yaml:"syslog_tag"`
}

// StateConfig locates the persisted state-machine snapshot.
type StateConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Default returns a configuration with every tunable at its documented
// default. Process name and paths have no sensible default and must come
// from the file.
func Default() *Config {
	return &Config{
		Monitoring: MonitoringConfig{
			IntervalSeconds:         5,
			DetectionTimeoutSeconds: 300,
		},
		Process: ProcessConfig{
			Name:          "mover",
			PIDFile:       "/var/run/mover.pid",
			WatchStrategy: "poll",
		},
		Progress: ProgressConfig{
			MinChangeThreshold: 1.0,
			EstimationWindow:   20,
		},
		Dispatch: DispatchConfig{
			QueueSize:            256,
			Workers:              2,
			MaxAttempts:          3,
			ThrottleSeconds:      30,
			DedupTTLSeconds:      300,
			ShutdownGraceSeconds: 10,
		},
		RateLimit: RateLimitConfig{
			Capacity:    10,
			RefillRate:  1,
			HourlyQuota: 100,
		},
		Logging: LoggingConfig{
			Level:      "info",
			JSONOutput: true,
		},
		State: StateConfig{
			Path: "/var/lib/moverwatch/state.db",
		},
		Metrics: MetricsConfig{
			Listen: ":9712",
		},
	}
}

// Load reads, decodes, and validates the configuration at path. Unknown
// fields are rejected so typos surface at startup rather than as silently
// ignored settings.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if root.Kind != 0 {
		if err := decodeStrict(&root, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeStrict(root *yaml.Node, cfg *Config) error {
	// yaml.Node.Decode has no KnownFields toggle, so unknown top-level keys
	// are checked by hand against the Config field tags.
	known := map[string]bool{
		"monitoring": true, "process": true, "progress": true,
		"notifications": true, "providers": true, "dispatch": true,
		"rate_limit": true, "logging": true, "state": true, "metrics": true,
	}
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind == yaml.MappingNode {
		for i := 0; i < len(doc.Content)-1; i += 2 {
			key := doc.Content[i].Value
			if !known[key] {
				return fmt.Errorf("unknown field %q", key)
			}
		}
	}
	return doc.Decode(cfg)
}

// Validate enforces field constraints plus the cross-field rules: every
// enabled provider must have a populated providers.<name> section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	for _, name := range c.Notifications.EnabledProviders {
		section, ok := c.Providers[name]
		if !ok || len(section) == 0 {
			return fmt.Errorf("invalid config: provider %q is enabled but has no providers.%s section", name, name)
		}
	}

	if c.Process.WatchStrategy == "" {
		c.Process.WatchStrategy = "poll"
	}
	return nil
}

// ProviderSection returns the opaque settings for one provider, or nil.
func (c *Config) ProviderSection(name string) map[string]any {
	return c.Providers[name]
}
