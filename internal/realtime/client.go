// Package realtime is a client for the Census push service. A Client keeps a
// subscription applied across sessions, answers keepalives and delivers
// decoded events on a single channel.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
	"github.com/nextlevelbuilder/auraxis/pkg/protocol"
)

const tracerName = "github.com/nextlevelbuilder/auraxis/internal/realtime"

// State is the lifecycle state of a Client.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics reports to m instead of an unregistered set of collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithTracerProvider takes session spans from tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// WithSubscription sets the initial subscription. The default is every
// event for every character on every world.
func WithSubscription(settings protocol.SubscriptionSettings) Option {
	return func(c *Client) { c.subs.Store(settings) }
}

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	subs    *subscriptionState
	metrics *Metrics
	dialer  *websocket.Dialer
	tracer  trace.Tracer

	mu     sync.Mutex
	run    *supervisor
	closed bool

	state atomic.Int32
	live  atomic.Pointer[session]
}

// New creates an idle Client. Zero fields in cfg take their DefaultConfig
// values.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg.withDefaults(),
		subs:   newSubscriptionState(protocol.DefaultSubscription()),
		dialer: websocket.DefaultDialer,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Subscription returns a copy of the current subscription settings.
func (c *Client) Subscription() protocol.SubscriptionSettings {
	return c.subs.Load().Clone()
}

// Subscribe replaces the subscription. The new settings are sent on every
// handshake and periodic refresh; if a session is live they are also sent
// right away, and the error reports whether that send was queued.
func (c *Client) Subscribe(settings protocol.SubscriptionSettings) error {
	c.subs.Store(settings)
	sess := c.live.Load()
	if sess == nil {
		return nil
	}
	if err := sess.pushSubscription(); err != nil {
		sess.reportSendError("subscribe", err)
		return err
	}
	return nil
}

// Send queues an action on the live session. A Subscribe action goes
// through Subscribe so the state stays authoritative.
func (c *Client) Send(a protocol.Action) error {
	if sub, ok := a.(protocol.Subscribe); ok {
		return c.Subscribe(sub.Settings)
	}
	sess := c.live.Load()
	if sess == nil {
		return ErrNotConnected
	}
	return sess.send(a)
}

// Connect dials the push service and returns the event channel. ctx bounds
// the whole stream: cancelling it stops the client and closes the channel.
// A failed initial dial is returned without retry. Calling Connect again
// tears down the previous stream, closing its channel, and starts a new one.
func (c *Client) Connect(ctx context.Context) (<-chan events.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if c.run != nil {
		c.run.shutdown()
		c.run = nil
	}

	c.setState(StateConnecting)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateIdle)
		return nil, err
	}

	sup := newSupervisor(ctx, c)
	c.run = sup
	go sup.loop(conn)
	return sup.events, nil
}

// Close stops the stream, if any, and waits for the event channel to close.
// A closed Client cannot reconnect.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.run != nil {
		c.run.shutdown()
		c.run = nil
	}
	c.setState(StateClosed)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := c.cfg.URL()
	if err != nil {
		return nil, err
	}
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, &TransportError{Op: "dial", Err: err}
	}
	return conn, nil
}
