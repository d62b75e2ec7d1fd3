package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
	"github.com/nextlevelbuilder/auraxis/pkg/protocol"
)

// mockPush is a stand-in for the push service. Every accepted connection is
// handed to the test through conns.
type mockPush struct {
	srv   *httptest.Server
	conns chan *serverConn
	query chan string
}

// serverConn reads on its own goroutine so control frames are processed.
type serverConn struct {
	conn  *websocket.Conn
	texts chan []byte
	pongs chan string
}

func newMockPush(t *testing.T) *mockPush {
	t.Helper()
	m := &mockPush{
		conns: make(chan *serverConn, 8),
		query: make(chan string, 8),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	m.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		sc := &serverConn{
			conn:  conn,
			texts: make(chan []byte, 64),
			pongs: make(chan string, 8),
		}
		conn.SetPongHandler(func(data string) error {
			select {
			case sc.pongs <- data:
			default:
			}
			return nil
		})
		go func() {
			for {
				kind, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if kind == websocket.TextMessage {
					sc.texts <- data
				}
			}
		}()
		m.query <- r.URL.RawQuery
		m.conns <- sc
	}))
	t.Cleanup(m.srv.Close)
	return m
}

func (m *mockPush) config() Config {
	return Config{
		Endpoint:  "ws" + strings.TrimPrefix(m.srv.URL, "http") + "/streaming",
		ServiceID: "example",
		Reconnect: ReconnectPolicy{
			BaseDelay: 10 * time.Millisecond,
			MaxDelay:  50 * time.Millisecond,
		},
	}
}

func (m *mockPush) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case sc := <-m.conns:
		t.Cleanup(func() { sc.conn.Close() })
		return sc
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

func (sc *serverConn) send(t *testing.T, data string) {
	t.Helper()
	if err := sc.conn.WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (sc *serverConn) readAction(t *testing.T) map[string]any {
	t.Helper()
	select {
	case data := <-sc.texts:
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("client sent invalid json %s: %v", data, err)
		}
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for client action")
		return nil
	}
}

// handshake completes the connection handshake and returns the subscribe
// action the client answers with.
func (sc *serverConn) handshake(t *testing.T) map[string]any {
	t.Helper()
	sc.send(t, connectedFrame)
	action := sc.readAction(t)
	if action["action"] != "subscribe" || action["service"] != "event" {
		t.Fatalf("expected subscribe after handshake, got %v", action)
	}
	return action
}

func recvEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func waitClosed(t *testing.T, ch <-chan events.Event) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("event channel not closed")
		}
	}
}

func TestClient_StreamsEvents(t *testing.T) {
	push := newMockPush(t)
	settings := protocol.SubscriptionSettings{
		Events:     protocol.EventNames(protocol.SelectEvent(events.NamePlayerLogin)),
		Characters: protocol.AllCharacters(),
		Worlds:     protocol.Worlds(events.WorldEmerald),
		LogicalAnd: protocol.Bool(true),
	}
	c := New(push.config(), WithSubscription(settings))
	t.Cleanup(func() { c.Close() })

	ch, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if q := <-push.query; q != "environment=ps2&service-id=s:example" {
		t.Errorf("query = %q", q)
	}

	sc := push.accept(t)
	action := sc.handshake(t)
	if !reflect.DeepEqual(action["eventNames"], []any{"PlayerLogin"}) ||
		!reflect.DeepEqual(action["worlds"], []any{"17"}) ||
		!reflect.DeepEqual(action["characters"], []any{"all"}) ||
		action["logicalAndCharactersWithWorlds"] != true {
		t.Errorf("unexpected subscribe action %v", action)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %s, want connected", c.State())
	}

	sc.send(t, `{"online":{"EventServerEndpoint_Connery_1":"true"},"service":"event","type":"heartbeat"}`)
	sc.send(t, loginFrame)

	ev := recvEvent(t, ch)
	login, ok := ev.(events.PlayerLogin)
	if !ok {
		t.Fatalf("expected PlayerLogin, got %T", ev)
	}
	if login.CharacterID != 5428521211318128657 || login.WorldID != events.WorldEmerald ||
		!login.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected event %+v", login)
	}
}

func TestClient_AnswersServerPing(t *testing.T) {
	push := newMockPush(t)
	c := New(push.config())
	t.Cleanup(func() { c.Close() })

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sc := push.accept(t)

	if err := sc.conn.WriteControl(websocket.PingMessage, []byte("are-you-there"), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("server ping: %v", err)
	}
	select {
	case got := <-sc.pongs:
		if got != "are-you-there" {
			t.Errorf("pong payload = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no pong received")
	}
}

func TestClient_SubscribeWhileConnectedPushesImmediately(t *testing.T) {
	push := newMockPush(t)
	c := New(push.config())
	t.Cleanup(func() { c.Close() })

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sc := push.accept(t)
	sc.handshake(t)

	err := c.Subscribe(protocol.SubscriptionSettings{
		Events: protocol.EventNames(protocol.SelectEvent(events.NameDeath)),
		Worlds: protocol.Worlds(events.WorldMiller),
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	action := sc.readAction(t)
	if action["action"] != "subscribe" || !reflect.DeepEqual(action["eventNames"], []any{"Death"}) {
		t.Errorf("unexpected action %v", action)
	}
	if !reflect.DeepEqual(action["worlds"], []any{"10"}) {
		t.Errorf("worlds = %v", action["worlds"])
	}
}

func TestClient_SendAction(t *testing.T) {
	push := newMockPush(t)
	c := New(push.config())
	t.Cleanup(func() { c.Close() })

	if err := c.Send(protocol.Echo{Payload: json.RawMessage(`{"test":"x"}`)}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected before connect, got %v", err)
	}

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	sc := push.accept(t)
	sc.handshake(t)

	if err := c.Send(protocol.ClearSubscribe{All: protocol.Bool(true)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	action := sc.readAction(t)
	if action["action"] != "clearSubscribe" || action["all"] != "true" {
		t.Errorf("unexpected action %v", action)
	}
}

func TestClient_ReconnectKeepsChannel(t *testing.T) {
	push := newMockPush(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := New(push.config(), WithMetrics(metrics))
	t.Cleanup(func() { c.Close() })

	ch, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	first := push.accept(t)
	first.handshake(t)
	first.conn.Close()

	second := push.accept(t)
	second.handshake(t)
	second.send(t, loginFrame)

	if _, ok := recvEvent(t, ch).(events.PlayerLogin); !ok {
		t.Fatal("expected PlayerLogin after reconnect")
	}
	if got := counterValue(t, metrics.reconnects); got != 1 {
		t.Errorf("reconnects = %v, want 1", got)
	}
}

func TestClient_ReconnectsByDefault(t *testing.T) {
	push := newMockPush(t)
	base := push.config()
	c := New(Config{Endpoint: base.Endpoint, ServiceID: base.ServiceID})
	t.Cleanup(func() { c.Close() })

	if c.cfg.Reconnect.Disabled {
		t.Fatal("zero-value config should reconnect")
	}

	ch, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	first := push.accept(t)
	first.handshake(t)
	first.conn.Close()

	// default backoff is about one second
	second := push.accept(t)
	second.handshake(t)
	second.send(t, loginFrame)

	if _, ok := recvEvent(t, ch).(events.PlayerLogin); !ok {
		t.Fatal("expected PlayerLogin after reconnect")
	}
}

func TestClient_RecordsSessionSpans(t *testing.T) {
	push := newMockPush(t)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	c := New(push.config(), WithTracerProvider(tp))

	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	push.accept(t).handshake(t)
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ended := recorder.Ended()
	if len(ended) != 1 || ended[0].Name() != "realtime.session" {
		t.Fatalf("ended spans = %v", ended)
	}
	found := false
	for _, kv := range ended[0].Attributes() {
		if kv.Key == "realtime.session_id" && kv.Value.AsString() != "" {
			found = true
		}
	}
	if !found {
		t.Error("session span has no session id")
	}
}

func TestClient_GivesUpAfterMaxAttempts(t *testing.T) {
	push := newMockPush(t)
	cfg := push.config()
	cfg.Reconnect.MaxAttempts = 2
	c := New(cfg)
	t.Cleanup(func() { c.Close() })

	ch, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	sc := push.accept(t)
	push.srv.Close()
	sc.conn.Close()

	waitClosed(t, ch)
}

func TestClient_ReconnectDisabled(t *testing.T) {
	push := newMockPush(t)
	cfg := push.config()
	cfg.Reconnect.Disabled = true
	c := New(cfg)
	t.Cleanup(func() { c.Close() })

	ch, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	push.accept(t).conn.Close()

	waitClosed(t, ch)
}

func TestClient_CancelClosesChannel(t *testing.T) {
	push := newMockPush(t)
	c := New(push.config())

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	push.accept(t)

	cancel()
	waitClosed(t, ch)

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if c.State() != StateClosed {
		t.Errorf("state = %s, want closed", c.State())
	}
	if _, err := c.Connect(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Errorf("connect after close: %v", err)
	}
}

func TestClient_ConnectReplacesStream(t *testing.T) {
	push := newMockPush(t)
	c := New(push.config())
	t.Cleanup(func() { c.Close() })

	first, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	push.accept(t)

	second, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("second connect: %v", err)
	}
	waitClosed(t, first)

	sc := push.accept(t)
	sc.handshake(t)
	sc.send(t, loginFrame)
	recvEvent(t, second)
}

func TestClient_InitialDialFailure(t *testing.T) {
	push := newMockPush(t)
	cfg := push.config()
	push.srv.Close()

	c := New(cfg)
	ch, err := c.Connect(context.Background())
	if err == nil {
		t.Fatal("expected dial error")
	}
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "dial" {
		t.Errorf("expected dial TransportError, got %v", err)
	}
	if ch != nil {
		t.Error("channel should be nil on failure")
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
}

func TestClient_SubscribeWhileIdle(t *testing.T) {
	c := New(Config{ServiceID: "example"})
	settings := protocol.SubscriptionSettings{Worlds: protocol.Worlds(events.WorldJaeger)}
	if err := c.Subscribe(settings); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	got := c.Subscription()
	if got.Worlds == nil || got.Worlds.Worlds()[0] != events.WorldJaeger || got.Events != nil {
		t.Errorf("unexpected subscription %+v", got)
	}
}

func TestConfig_URL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceID = "example"
	got, err := cfg.URL()
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if want := "wss://push.planetside2.com/streaming?environment=ps2&service-id=s:example"; got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}

	if _, err := DefaultConfig().URL(); err == nil {
		t.Error("expected error without service id")
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle:         "idle",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateReconnecting: "reconnecting",
		StateClosed:       "closed",
		State(42):         "state(42)",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int32(s), s.String(), want)
		}
	}
}
