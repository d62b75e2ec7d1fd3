package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
	"github.com/nextlevelbuilder/auraxis/pkg/protocol"
)

// keepalivePayload is the application data carried by outbound pings.
var keepalivePayload = []byte("auraxis")

// frame is one outbound websocket message.
type frame struct {
	opcode int
	data   []byte
}

func opcodeName(op int) string {
	switch op {
	case websocket.TextMessage:
		return "text"
	case websocket.PingMessage:
		return "ping"
	case websocket.PongMessage:
		return "pong"
	case websocket.CloseMessage:
		return "close"
	default:
		return "binary"
	}
}

// session is one live connection. It owns the writer, reader, keepalive and
// resubscribe tasks; all of them stop when its context is cancelled, and the
// first cancellation cause is the reason the session ended.
//
// Only the writer touches the connection for data frames. Everyone else
// hands frames to it through out, which is never closed.
type session struct {
	id      string
	conn    *websocket.Conn
	cfg     Config
	subs    *subscriptionState
	metrics *Metrics
	logger  *slog.Logger

	out     chan frame
	decodeQ chan []byte
	limiter *rate.Limiter

	// Delivery to the consumer is bounded by the supervisor's context, not
	// the session's, so events decoded just before a drop still arrive.
	events   chan<- events.Event
	parent   context.Context
	inflight *sync.WaitGroup

	ctx    context.Context
	cancel context.CancelCauseFunc
	tasks  sync.WaitGroup
}

func newSession(parent context.Context, conn *websocket.Conn, cfg Config, subs *subscriptionState,
	m *Metrics, sink chan<- events.Event, inflight *sync.WaitGroup) *session {

	id := uuid.NewString()
	ctx, cancel := context.WithCancelCause(parent)
	s := &session{
		id:       id,
		conn:     conn,
		cfg:      cfg,
		subs:     subs,
		metrics:  m,
		logger:   slog.With("session", id),
		out:      make(chan frame, cfg.QueueSize),
		events:   sink,
		parent:   parent,
		inflight: inflight,
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.OrderedDelivery {
		s.decodeQ = make(chan []byte, cfg.QueueSize)
	}
	if cfg.SendRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst)
	}
	return s
}

// run starts the session tasks and blocks until the session ends, returning
// the cause.
func (s *session) run() error {
	s.conn.SetPingHandler(s.handlePing)

	s.tasks.Add(3)
	go s.writeLoop()
	go s.keepaliveLoop()
	go s.resubscribeLoop()

	if s.decodeQ != nil {
		s.inflight.Add(1)
		go s.decodeLoop()
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readLoop()
	}()

	<-s.ctx.Done()
	s.tasks.Wait()
	s.conn.Close()
	<-readDone

	return context.Cause(s.ctx)
}

// stop ends the session. Only the first cause is kept.
func (s *session) stop(cause error) {
	s.cancel(cause)
}

// enqueue hands a frame to the writer, waiting for queue space.
func (s *session) enqueue(f frame) error {
	select {
	case <-s.ctx.Done():
		return s.closedErr()
	default:
	}
	select {
	case s.out <- f:
		return nil
	case <-s.ctx.Done():
		return s.closedErr()
	}
}

// enqueueWithin is enqueue with an upper bound on the wait.
func (s *session) enqueueWithin(f frame, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case s.out <- f:
		return nil
	case <-s.ctx.Done():
		return s.closedErr()
	case <-timer.C:
		return ErrQueueFull
	}
}

func (s *session) closedErr() error {
	return fmt.Errorf("%w: %w", ErrChannelClosed, context.Cause(s.ctx))
}

// send encodes an action and queues it.
func (s *session) send(a protocol.Action) error {
	data, err := protocol.Encode(a)
	if err != nil {
		return fmt.Errorf("encode %s: %w", a.ActionName(), err)
	}
	return s.enqueue(frame{opcode: websocket.TextMessage, data: data})
}

// pushSubscription queues the current subscription snapshot.
func (s *session) pushSubscription() error {
	return s.send(protocol.Subscribe{Settings: *s.subs.Load()})
}

// pushSubscriptionWithin is pushSubscription bounded by d.
func (s *session) pushSubscriptionWithin(d time.Duration) error {
	a := protocol.Subscribe{Settings: *s.subs.Load()}
	data, err := protocol.Encode(a)
	if err != nil {
		return fmt.Errorf("encode %s: %w", a.ActionName(), err)
	}
	return s.enqueueWithin(frame{opcode: websocket.TextMessage, data: data}, d)
}

func (s *session) reportSendError(op string, err error) {
	if errors.Is(err, ErrChannelClosed) {
		s.logger.Error("realtime: outbound queue closed", "op", op, "error", err)
		return
	}
	s.logger.Warn("realtime: send failed", "op", op, "error", err)
}

func (s *session) writeLoop() {
	defer s.tasks.Done()
	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return

		case f := <-s.out:
			if f.opcode == websocket.TextMessage && s.limiter != nil {
				if err := s.limiter.Wait(s.ctx); err != nil {
					continue
				}
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(f.opcode, f.data); err != nil {
				s.stop(&TransportError{Op: "write", Err: err})
				continue
			}
			s.metrics.framesSent.WithLabelValues(opcodeName(f.opcode)).Inc()
		}
	}
}

func (s *session) readLoop() {
	for {
		opcode, data, err := s.conn.ReadMessage()
		if err != nil {
			s.stop(&TransportError{Op: "read", Err: err})
			return
		}
		if opcode != websocket.TextMessage {
			continue
		}
		s.handleText(data)
	}
}

// handlePing answers a server ping with a pong carrying the same payload.
// It runs on the reader goroutine.
func (s *session) handlePing(appData string) error {
	if err := s.enqueue(frame{opcode: websocket.PongMessage, data: []byte(appData)}); err != nil {
		s.reportSendError("pong", err)
	}
	return nil
}

// frameLabel maps a frame type to a bounded metric label.
func frameLabel(kind string, err error) string {
	if err != nil {
		return "unknown"
	}
	switch kind {
	case protocol.TypeConnectionStateChanged, protocol.TypeHeartbeat,
		protocol.TypeServiceStateChanged, protocol.TypeSubscription,
		protocol.TypeServiceMessage:
		return kind
	}
	return "unknown"
}

// handleText routes one inbound text frame. Control frames are handled in
// order on the reader; service messages are decoded off it.
func (s *session) handleText(data []byte) {
	kind, err := protocol.ParseFrameType(data)
	s.metrics.framesReceived.WithLabelValues(frameLabel(kind, err)).Inc()

	if err == nil && kind == protocol.TypeServiceMessage {
		s.dispatch(data)
		return
	}

	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		s.dropFrame(data, err)
		return
	}
	s.handleControl(env)
}

func (s *session) handleControl(env protocol.Envelope) {
	switch env := env.(type) {
	case protocol.ConnectionStateChanged:
		if !env.Connected {
			s.logger.Warn("realtime: server reports connection down")
			return
		}
		s.logger.Info("realtime: handshake complete, subscribing")
		if err := s.pushSubscription(); err != nil {
			s.reportSendError("subscribe", err)
		}

	case protocol.Heartbeat:
		online := 0
		for _, up := range env.Online {
			if up {
				online++
			}
		}
		s.logger.Debug("realtime: heartbeat", "online", online, "endpoints", len(env.Online))

	case protocol.ServiceStateChanged:
		s.logger.Info("realtime: service state changed", "detail", env.Detail, "online", env.Online)

	case protocol.Subscription:
		s.logger.Debug("realtime: subscription acknowledged",
			"events", len(env.EventNames), "worlds", len(env.Worlds), "characters", env.CharacterCount)
	}
}

func (s *session) dispatch(data []byte) {
	if s.decodeQ != nil {
		select {
		case s.decodeQ <- data:
		case <-s.ctx.Done():
		}
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.deliver(data)
	}()
}

// decodeLoop is the single decode worker used with OrderedDelivery.
func (s *session) decodeLoop() {
	defer s.inflight.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.decodeQ:
			s.deliver(data)
		}
	}
}

func (s *session) deliver(data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		s.dropFrame(data, err)
		return
	}
	msg, ok := env.(protocol.ServiceMessage)
	if !ok {
		return
	}
	select {
	case s.events <- msg.Event:
		s.metrics.eventsDelivered.WithLabelValues(string(msg.Event.EventName())).Inc()
	case <-s.parent.Done():
	}
}

// dropFrame records a frame that could not be decoded. The stream continues.
func (s *session) dropFrame(data []byte, err error) {
	const maxLogged = 256
	if len(data) > maxLogged {
		data = data[:maxLogged]
	}
	if errors.Is(err, protocol.ErrUnknownDiscriminator) {
		s.metrics.decodeErrors.WithLabelValues("unknown").Inc()
		s.logger.Debug("realtime: ignoring unknown frame", "error", err, "frame", string(data))
		return
	}
	s.metrics.decodeErrors.WithLabelValues("malformed").Inc()
	s.logger.Warn("realtime: dropping malformed frame", "error", err, "frame", string(data))
}

func (s *session) keepaliveLoop() {
	defer s.tasks.Done()
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		err := s.enqueueWithin(frame{opcode: websocket.PingMessage, data: keepalivePayload}, s.cfg.PingInterval)
		if err == nil {
			failures = 0
			continue
		}
		if s.ctx.Err() != nil {
			return
		}
		failures++
		s.metrics.keepaliveFailures.Inc()
		s.logger.Warn("realtime: keepalive ping not sent", "failures", failures, "error", err)
		if failures >= s.cfg.KeepaliveFailures {
			s.stop(fmt.Errorf("%w after %d attempts: %w", ErrKeepaliveFailed, failures, err))
			return
		}
	}
}

func (s *session) resubscribeLoop() {
	defer s.tasks.Done()
	timer := time.NewTimer(s.cfg.ResubscribeInterval)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}

		if err := s.pushSubscriptionWithin(s.cfg.ResubscribeRetry); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.reportSendError("resubscribe", err)
			timer.Reset(s.cfg.ResubscribeRetry)
			continue
		}
		s.logger.Debug("realtime: subscription refreshed")
		timer.Reset(s.cfg.ResubscribeInterval)
	}
}
