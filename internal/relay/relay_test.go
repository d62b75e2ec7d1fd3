package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/auraxis/internal/sink"
	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

func login(world events.World) events.PlayerLogin {
	return events.PlayerLogin{CharacterID: 42, Timestamp: events.Unix(1700000000), WorldID: world}
}

func startRelay(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	s := New(cfg, nil)
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, s *Server, endpoint string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() < want {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered, have %d", s.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readRecord(t *testing.T, conn *websocket.Conn) sink.Record {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var rec sink.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return rec
}

func TestRelay_BroadcastsMatchingEvents(t *testing.T) {
	s, endpoint := startRelay(t, Config{})
	filtered := dial(t, s, endpoint+"?event=PlayerLogin&world=Emerald", 1)
	all := dial(t, s, endpoint, 2)

	ctx := context.Background()
	if err := s.Write(ctx, login(events.WorldMiller)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(ctx, events.PlayerLogout{CharacterID: 42, WorldID: events.WorldEmerald}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(ctx, login(events.WorldEmerald)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// The filtered client only sees the third event.
	rec := readRecord(t, filtered)
	if rec.Event != events.NamePlayerLogin || !strings.Contains(string(rec.Data), `"world_id":17`) {
		t.Errorf("filtered client got %s %s", rec.Event, rec.Data)
	}

	var names []events.Name
	for range 3 {
		names = append(names, readRecord(t, all).Event)
	}
	want := []events.Name{events.NamePlayerLogin, events.NamePlayerLogout, events.NamePlayerLogin}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unfiltered client got %v, want %v", names, want)
		}
	}
}

func TestRelay_RejectsBadFilter(t *testing.T) {
	_, endpoint := startRelay(t, Config{})
	_, resp, err := websocket.DefaultDialer.Dial(endpoint+"?world=Nowhere", nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", resp)
	}
}

func TestRelay_RateLimitsConnections(t *testing.T) {
	s, endpoint := startRelay(t, Config{ConnectionsPerMinute: 1, Burst: 1})
	dial(t, s, endpoint, 1)

	_, resp, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err == nil {
		t.Fatal("expected second dial to be limited")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", resp)
	}
}

func TestRelay_CloseDisconnectsClients(t *testing.T) {
	s, endpoint := startRelay(t, Config{})
	conn := dial(t, s, endpoint, 1)

	s.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("clients not unregistered: %d", s.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelay_OriginCheck(t *testing.T) {
	check := originChecker([]string{"https://ok.example"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if !check(req) {
		t.Error("request without Origin should pass")
	}
	req.Header.Set("Origin", "https://ok.example")
	if !check(req) {
		t.Error("allowed origin rejected")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Error("foreign origin accepted")
	}
}

func TestFilter_Match(t *testing.T) {
	f, err := parseFilter(url.Values{"event": {"Death,PlayerLogin"}, "world": {"17", "Miller"}})
	if err != nil {
		t.Fatalf("parseFilter: %v", err)
	}
	emerald, cobalt := int64(17), int64(13)
	if !f.match(events.NameDeath, &emerald) {
		t.Error("Death on Emerald should match")
	}
	if f.match(events.NameDeath, &cobalt) {
		t.Error("Death on Cobalt should not match")
	}
	if f.match(events.NameBattleRankUp, &emerald) {
		t.Error("BattleRankUp should not match")
	}
	if f.match(events.NameDeath, nil) {
		t.Error("event without world should fail a world filter")
	}

	var empty filter
	if !empty.match(events.NameSkillAdded, nil) {
		t.Error("empty filter should match everything")
	}
	if _, err := parseFilter(url.Values{"event": {"Nope"}}); err == nil {
		t.Error("expected unknown event error")
	}
}

func TestRateLimiter_CleanupDropsStaleKeys(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Stop()
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") {
		t.Fatal("first attempt should pass")
	}
	if rl.Allow("a") {
		t.Fatal("burst of 1 should block the second attempt")
	}
	rl.cleanup(now.Add(time.Minute))
	if _, ok := rl.limiters.Load("a"); ok {
		t.Error("stale entry not removed")
	}

	disabled := NewRateLimiter(0, 0)
	for range 10 {
		if !disabled.Allow("x") {
			t.Fatal("disabled limiter blocked")
		}
	}
}
