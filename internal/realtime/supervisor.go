package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

// supervisor owns the consumer channel returned by Connect and runs one
// session after another on it until its context ends or reconnecting is
// abandoned. It closes the channel on exit.
type supervisor struct {
	client *Client
	events chan events.Event

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	done     chan struct{}
}

func newSupervisor(ctx context.Context, c *Client) *supervisor {
	ctx, cancel := context.WithCancel(ctx)
	return &supervisor{
		client: c,
		events: make(chan events.Event, c.cfg.EventBuffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// shutdown cancels the supervisor and waits for it to close the channel.
func (s *supervisor) shutdown() {
	s.cancel()
	<-s.done
}

func (s *supervisor) loop(conn *websocket.Conn) {
	c := s.client
	defer func() {
		s.cancel()
		s.inflight.Wait()
		close(s.events)
		c.setState(StateIdle)
		close(s.done)
	}()

	for {
		cause := s.runSession(conn)
		if s.ctx.Err() != nil {
			slog.Info("realtime: stream stopped")
			return
		}
		if c.cfg.Reconnect.Disabled {
			slog.Warn("realtime: session ended, reconnect disabled", "error", cause)
			return
		}
		slog.Warn("realtime: session ended, reconnecting", "error", cause)

		c.setState(StateReconnecting)
		conn = s.redial()
		if conn == nil {
			return
		}
		c.metrics.reconnects.Inc()
	}
}

func (s *supervisor) runSession(conn *websocket.Conn) error {
	c := s.client
	sess := newSession(s.ctx, conn, c.cfg, c.subs, c.metrics, s.events, &s.inflight)

	_, span := c.tracer.Start(s.ctx, "realtime.session", trace.WithAttributes(
		attribute.String("realtime.session_id", sess.id),
		attribute.String("realtime.endpoint", c.cfg.Endpoint),
		attribute.String("realtime.environment", c.cfg.Environment),
	))
	defer span.End()

	c.live.Store(sess)
	c.setState(StateConnected)
	c.metrics.sessionsActive.Inc()
	slog.Info("realtime: session started", "session", sess.id)

	cause := sess.run()

	c.live.CompareAndSwap(sess, nil)
	c.metrics.sessionsActive.Dec()
	slog.Info("realtime: session ended", "session", sess.id, "cause", cause)

	if cause != nil && !errors.Is(cause, context.Canceled) {
		span.RecordError(cause)
		span.SetStatus(codes.Error, cause.Error())
	}
	return cause
}

// redial re-dials with exponential backoff. Returns nil when the context
// ends or the reconnect policy is exhausted.
func (s *supervisor) redial() *websocket.Conn {
	policy := s.client.cfg.Reconnect
	for attempt := 0; ; attempt++ {
		delay := backoffWithJitter(policy.BaseDelay, policy.MaxDelay, attempt)
		slog.Info("realtime: reconnecting", "attempt", attempt+1, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := s.client.dial(s.ctx)
		if err == nil {
			return conn
		}
		slog.Warn("realtime: reconnect failed", "attempt", attempt+1, "error", err)
		if policy.exhausted(attempt + 1) {
			slog.Error("realtime: giving up reconnecting", "attempts", attempt+1)
			return nil
		}
	}
}
