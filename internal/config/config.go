// Package config loads the auraxis configuration: a JSON5 file over built-in
// defaults, then AURAXIS_* environment overrides.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/auraxis/internal/realtime"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AURAXIS_"

// Config is the root configuration.
type Config struct {
	Push         PushConfig         `json:"push" envPrefix:"PUSH_"`
	Subscription SubscriptionConfig `json:"subscription" envPrefix:"SUBSCRIPTION_"`
	Dedupe       DedupeConfig       `json:"dedupe" envPrefix:"DEDUPE_"`
	Log          LogConfig          `json:"log" envPrefix:"LOG_"`
	Metrics      MetricsConfig      `json:"metrics" envPrefix:"METRICS_"`
	Telemetry    TelemetryConfig    `json:"telemetry" envPrefix:"TELEMETRY_"`
	Sinks        SinksConfig        `json:"sinks" envPrefix:"SINKS_"`
}

// PushConfig describes the push service connection. Durations are Go
// duration strings ("1s", "30m").
type PushConfig struct {
	Endpoint            string          `json:"endpoint" env:"ENDPOINT"`
	Environment         string          `json:"environment" env:"ENVIRONMENT"`
	ServiceID           string          `json:"service_id,omitempty" env:"SERVICE_ID"`
	PingInterval        string          `json:"ping_interval" env:"PING_INTERVAL"`
	KeepaliveFailures   int             `json:"keepalive_failures" env:"KEEPALIVE_FAILURES"`
	ResubscribeInterval string          `json:"resubscribe_interval" env:"RESUBSCRIBE_INTERVAL"`
	ResubscribeRetry    string          `json:"resubscribe_retry" env:"RESUBSCRIBE_RETRY"`
	WriteTimeout        string          `json:"write_timeout" env:"WRITE_TIMEOUT"`
	QueueSize           int             `json:"queue_size" env:"QUEUE_SIZE"`
	EventBuffer         int             `json:"event_buffer" env:"EVENT_BUFFER"`
	OrderedDelivery     bool            `json:"ordered_delivery" env:"ORDERED_DELIVERY"`
	SendRate            float64         `json:"send_rate,omitempty" env:"SEND_RATE"`
	SendBurst           int             `json:"send_burst,omitempty" env:"SEND_BURST"`
	Reconnect           ReconnectConfig `json:"reconnect" envPrefix:"RECONNECT_"`
}

type ReconnectConfig struct {
	Enabled     bool   `json:"enabled" env:"ENABLED"`
	BaseDelay   string `json:"base_delay" env:"BASE_DELAY"`
	MaxDelay    string `json:"max_delay" env:"MAX_DELAY"`
	MaxAttempts int    `json:"max_attempts" env:"MAX_ATTEMPTS"`
}

// DedupeConfig drops repeated events seen within Window. An empty Window
// disables it.
type DedupeConfig struct {
	Window     string `json:"window,omitempty" env:"WINDOW"`
	MaxEntries int    `json:"max_entries" env:"MAX_ENTRIES"`
}

type LogConfig struct {
	Level  string `json:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `json:"format" env:"FORMAT"` // text or json
}

// MetricsConfig serves Prometheus metrics when Listen is set.
type MetricsConfig struct {
	Listen string `json:"listen,omitempty" env:"LISTEN"`
	Path   string `json:"path" env:"PATH"`
}

// TelemetryConfig configures OTLP trace export (binaries built with -tags otel).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled" env:"ENABLED"`
	Endpoint    string            `json:"endpoint,omitempty" env:"ENDPOINT"`
	Protocol    string            `json:"protocol,omitempty" env:"PROTOCOL"`
	Insecure    bool              `json:"insecure,omitempty" env:"INSECURE"`
	ServiceName string            `json:"service_name,omitempty" env:"SERVICE_NAME"`
	Headers     map[string]string `json:"headers,omitempty" env:"HEADERS"`
}

type SinksConfig struct {
	Stdout StdoutSinkConfig `json:"stdout" envPrefix:"STDOUT_"`
	SQLite SQLiteSinkConfig `json:"sqlite" envPrefix:"SQLITE_"`
	Redis  RedisSinkConfig  `json:"redis" envPrefix:"REDIS_"`
	Relay  RelaySinkConfig  `json:"relay" envPrefix:"RELAY_"`
}

type StdoutSinkConfig struct {
	Enabled bool `json:"enabled" env:"ENABLED"`
}

type SQLiteSinkConfig struct {
	Enabled bool   `json:"enabled" env:"ENABLED"`
	Path    string `json:"path,omitempty" env:"PATH"`
}

type RedisSinkConfig struct {
	Enabled  bool   `json:"enabled" env:"ENABLED"`
	Addr     string `json:"addr,omitempty" env:"ADDR"`
	Password string `json:"password,omitempty" env:"PASSWORD"`
	DB       int    `json:"db,omitempty" env:"DB"`
	Prefix   string `json:"prefix,omitempty" env:"PREFIX"`
}

// RelaySinkConfig re-broadcasts events to downstream WebSocket clients.
type RelaySinkConfig struct {
	Enabled              bool     `json:"enabled" env:"ENABLED"`
	Listen               string   `json:"listen,omitempty" env:"LISTEN"`
	Path                 string   `json:"path,omitempty" env:"PATH"`
	ConnectionsPerMinute int      `json:"connections_per_minute" env:"CONNECTIONS_PER_MINUTE"`
	Burst                int      `json:"burst" env:"BURST"`
	ClientBuffer         int      `json:"client_buffer" env:"CLIENT_BUFFER"`
	AllowedOrigins       []string `json:"allowed_origins,omitempty" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Default returns the built-in configuration.
func Default() *Config {
	rt := realtime.DefaultConfig()
	return &Config{
		Push: PushConfig{
			Endpoint:            rt.Endpoint,
			Environment:         rt.Environment,
			PingInterval:        rt.PingInterval.String(),
			KeepaliveFailures:   rt.KeepaliveFailures,
			ResubscribeInterval: rt.ResubscribeInterval.String(),
			ResubscribeRetry:    rt.ResubscribeRetry.String(),
			WriteTimeout:        rt.WriteTimeout.String(),
			QueueSize:           rt.QueueSize,
			EventBuffer:         rt.EventBuffer,
			Reconnect: ReconnectConfig{
				Enabled:   !rt.Reconnect.Disabled,
				BaseDelay: rt.Reconnect.BaseDelay.String(),
				MaxDelay:  rt.Reconnect.MaxDelay.String(),
			},
		},
		Subscription: SubscriptionConfig{
			Events:     []string{filterAll},
			Characters: []string{filterAll},
			Worlds:     []string{filterAll},
		},
		Dedupe:  DedupeConfig{MaxEntries: 10000},
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Path: "/metrics"},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "auraxis",
		},
		Sinks: SinksConfig{
			Stdout: StdoutSinkConfig{Enabled: true},
			SQLite: SQLiteSinkConfig{Path: "auraxis.db"},
			Redis:  RedisSinkConfig{Addr: "localhost:6379", Prefix: "auraxis"},
			Relay: RelaySinkConfig{
				Listen:               ":8765",
				Path:                 "/ws",
				ConnectionsPerMinute: 30,
				Burst:                5,
				ClientBuffer:         256,
			},
		},
	}
}

// Load reads the JSON5 file at path over Default and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides sets every field whose AURAXIS_* variable is present.
func (c *Config) ApplyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes cfg as indented JSON, which JSON5 readers accept.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// Hash is a content hash used to skip reloads that change nothing.
func (c *Config) Hash() string {
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MaskedCopy returns a copy safe to print.
func (c *Config) MaskedCopy() *Config {
	cp := *c
	cp.Push.ServiceID = mask(cp.Push.ServiceID)
	cp.Sinks.Redis.Password = mask(cp.Sinks.Redis.Password)
	if len(c.Telemetry.Headers) > 0 {
		cp.Telemetry.Headers = make(map[string]string, len(c.Telemetry.Headers))
		for k, v := range c.Telemetry.Headers {
			cp.Telemetry.Headers[k] = mask(v)
		}
	}
	cp.Subscription = c.Subscription.clone()
	cp.Sinks.Relay.AllowedOrigins = slices.Clone(c.Sinks.Relay.AllowedOrigins)
	return &cp
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "***"
	}
	return s[:2] + "***" + s[len(s)-2:]
}

// Validate checks everything Realtime and Subscription would reject.
func (c *Config) Validate() error {
	var errs []error
	if c.Push.ServiceID == "" {
		errs = append(errs, fmt.Errorf("push.service_id is required (or %sPUSH_SERVICE_ID)", EnvPrefix))
	}
	if _, err := c.Realtime(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Subscription.Settings(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Dedupe.WindowDuration(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		errs = append(errs, fmt.Errorf("telemetry.protocol: unknown protocol %q", c.Telemetry.Protocol))
	}
	if c.Sinks.Relay.Enabled && c.Sinks.Relay.Listen == "" {
		errs = append(errs, errors.New("sinks.relay.listen is required when the relay is enabled"))
	}
	return errors.Join(errs...)
}

// Realtime converts the push section to a realtime.Config.
func (c *Config) Realtime() (realtime.Config, error) {
	p := c.Push
	rc := realtime.Config{
		Endpoint:          p.Endpoint,
		Environment:       p.Environment,
		ServiceID:         p.ServiceID,
		KeepaliveFailures: p.KeepaliveFailures,
		QueueSize:         p.QueueSize,
		EventBuffer:       p.EventBuffer,
		OrderedDelivery:   p.OrderedDelivery,
		SendRate:          p.SendRate,
		SendBurst:         p.SendBurst,
		Reconnect: realtime.ReconnectPolicy{
			Disabled:    !p.Reconnect.Enabled,
			MaxAttempts: p.Reconnect.MaxAttempts,
		},
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"push.ping_interval", p.PingInterval, &rc.PingInterval},
		{"push.resubscribe_interval", p.ResubscribeInterval, &rc.ResubscribeInterval},
		{"push.resubscribe_retry", p.ResubscribeRetry, &rc.ResubscribeRetry},
		{"push.write_timeout", p.WriteTimeout, &rc.WriteTimeout},
		{"push.reconnect.base_delay", p.Reconnect.BaseDelay, &rc.Reconnect.BaseDelay},
		{"push.reconnect.max_delay", p.Reconnect.MaxDelay, &rc.Reconnect.MaxDelay},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return realtime.Config{}, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}
	return rc, nil
}

// WindowDuration parses Window; zero means dedupe is off.
func (d DedupeConfig) WindowDuration() (time.Duration, error) {
	if d.Window == "" {
		return 0, nil
	}
	v, err := time.ParseDuration(d.Window)
	if err != nil {
		return 0, fmt.Errorf("dedupe.window: %w", err)
	}
	return v, nil
}
