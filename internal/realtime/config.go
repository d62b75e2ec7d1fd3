package realtime

import (
	"errors"
	"net/url"
	"time"
)

// DefaultEndpoint is the public Census push service.
const DefaultEndpoint = "wss://push.planetside2.com/streaming"

// Config holds the connection parameters of a Client.
type Config struct {
	Endpoint    string
	Environment string // "ps2", "ps2ps4us" or "ps2ps4eu"
	ServiceID   string // registered Census service id, without the "s:" prefix

	PingInterval        time.Duration // keepalive cadence (default 1s)
	KeepaliveFailures   int           // consecutive failed pings before the session is torn down (default 5)
	ResubscribeInterval time.Duration // periodic subscription refresh (default 30m)
	ResubscribeRetry    time.Duration // delay after a failed refresh (default 5s)
	WriteTimeout        time.Duration // per-frame write deadline (default 10s)

	QueueSize   int // outbound frame queue capacity (default 1000)
	EventBuffer int // consumer channel capacity (default 1000)

	// OrderedDelivery decodes service messages on a single worker so events
	// reach the consumer in arrival order. Off by default.
	OrderedDelivery bool

	// SendRate caps outbound text frames per second, 0 = unlimited.
	SendRate  float64
	SendBurst int

	Reconnect ReconnectPolicy
}

// DefaultConfig returns a Config for the PC environment. ServiceID must
// still be set.
func DefaultConfig() Config {
	return Config{
		Endpoint:            DefaultEndpoint,
		Environment:         "ps2",
		PingInterval:        time.Second,
		KeepaliveFailures:   5,
		ResubscribeInterval: 30 * time.Minute,
		ResubscribeRetry:    5 * time.Second,
		WriteTimeout:        10 * time.Second,
		QueueSize:           1000,
		EventBuffer:         1000,
		Reconnect:           DefaultReconnectPolicy(),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Endpoint == "" {
		c.Endpoint = d.Endpoint
	}
	if c.Environment == "" {
		c.Environment = d.Environment
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.KeepaliveFailures <= 0 {
		c.KeepaliveFailures = d.KeepaliveFailures
	}
	if c.ResubscribeInterval <= 0 {
		c.ResubscribeInterval = d.ResubscribeInterval
	}
	if c.ResubscribeRetry <= 0 {
		c.ResubscribeRetry = d.ResubscribeRetry
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.EventBuffer < 0 {
		c.EventBuffer = 0
	}
	if c.SendRate > 0 && c.SendBurst <= 0 {
		c.SendBurst = 1
	}
	if c.Reconnect.BaseDelay <= 0 {
		c.Reconnect.BaseDelay = d.Reconnect.BaseDelay
	}
	if c.Reconnect.MaxDelay <= 0 {
		c.Reconnect.MaxDelay = d.Reconnect.MaxDelay
	}
	return c
}

// URL builds the streaming endpoint with environment and service id.
func (c Config) URL() (string, error) {
	if c.ServiceID == "" {
		return "", errors.New("realtime: service id is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", err
	}
	// Built by hand: the service rejects a percent-encoded "s:" prefix.
	u.RawQuery = "environment=" + url.QueryEscape(c.Environment) +
		"&service-id=s:" + url.QueryEscape(c.ServiceID)
	return u.String(), nil
}
