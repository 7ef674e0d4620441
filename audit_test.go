package learnauth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func collectEvents(t *testing.T, sink *ChannelSink, want int) []AuditEvent {
	t.Helper()

	events := make([]AuditEvent, 0, want)
	timeout := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("got %d events, want %d", len(events), want)
		}
	}
	return events
}

func TestAuditLoginEvents(t *testing.T) {
	sink := NewChannelSink(64)
	engine, _, _ := newTestEngineWithSink(t, sink)
	ctx := WithClientIP(WithUserAgent(context.Background(), "go-test"), "203.0.113.9")

	registerTestUser(t, engine, "alice@example.com", RoleStudent)
	if _, err := engine.Login(ctx, "alice@example.com", "wrong-password"); err == nil {
		t.Fatal("expected login failure")
	}
	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	events := collectEvents(t, sink, 3)

	if events[0].EventType != auditEventRegisterSuccess {
		t.Errorf("event[0] = %q", events[0].EventType)
	}
	failure := events[1]
	if failure.EventType != auditEventLoginFailure || failure.Success {
		t.Errorf("event[1] = %+v", failure)
	}
	if failure.IP != "203.0.113.9" || failure.UserAgent != "go-test" {
		t.Errorf("context fields missing: %+v", failure)
	}
	if failure.Error != string(auditErrInvalidCredentials) {
		t.Errorf("error code = %q", failure.Error)
	}
	if failure.Metadata["reason"] != "password_mismatch" {
		t.Errorf("metadata = %v", failure.Metadata)
	}
	success := events[2]
	if success.EventType != auditEventLoginSuccess || !success.Success {
		t.Errorf("event[2] = %+v", success)
	}
	if success.UserID == "" {
		t.Error("success event missing user id")
	}
}

func TestAuditReuseEvents(t *testing.T) {
	sink := NewChannelSink(64)
	engine, _, _ := newTestEngineWithSink(t, sink)
	ctx := context.Background()

	res := registerTestUser(t, engine, "alice@example.com", RoleStudent)
	if _, err := engine.Refresh(ctx, res.Pair.RefreshToken); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := engine.Refresh(ctx, res.Pair.RefreshToken); err == nil {
		t.Fatal("expected replay to fail")
	}

	// register_success, refresh_success, reuse_detected, chain_revoked.
	events := collectEvents(t, sink, 4)

	types := make(map[string]AuditEvent, len(events))
	for _, ev := range events {
		types[ev.EventType] = ev
	}
	if _, ok := types[auditEventRefreshSuccess]; !ok {
		t.Error("missing refresh_success event")
	}
	reuse, ok := types[auditEventRefreshReuseDetected]
	if !ok {
		t.Fatal("missing reuse event")
	}
	if reuse.Error != string(auditErrRefreshReuse) {
		t.Errorf("reuse error code = %q", reuse.Error)
	}
	chain, ok := types[auditEventChainRevoked]
	if !ok {
		t.Fatal("missing chain_revoked event")
	}
	if chain.Metadata["revoked"] == "" || chain.Metadata["revoked"] == "0" {
		t.Errorf("chain revoked count = %q", chain.Metadata["revoked"])
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventLoginSuccess,
		UserID:    "u-1",
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventLoginFailure,
		Error:     string(auditErrInvalidCredentials),
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.EventType != auditEventLoginSuccess || ev.UserID != "u-1" || !ev.Success {
		t.Errorf("decoded = %+v", ev)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	ctx := context.Background()

	// First event occupies the sink, second fills the buffer, the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(ctx, AuditEvent{EventType: "event"})
	}

	if d.Dropped() == 0 {
		t.Error("expected dropped events with a full buffer")
	}

	close(block)
	d.Close()
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16, DropIfFull: false}, sink)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d.Emit(ctx, AuditEvent{EventType: "event"})
	}
	d.Close()

	if got := len(sink.Events()); got != 5 {
		t.Fatalf("delivered = %d, want 5", got)
	}

	// Emit after Close is a no-op.
	d.Emit(ctx, AuditEvent{EventType: "late"})
	if got := len(sink.Events()); got != 5 {
		t.Fatalf("late emit delivered, len = %d", got)
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	if d := newAuditDispatcher(AuditConfig{Enabled: false}, NoOpSink{}); d != nil {
		t.Fatal("disabled audit must not start a dispatcher")
	}

	// nil receivers are safe on the hot path.
	var d *auditDispatcher
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Error("nil dispatcher dropped counter should be zero")
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(_ context.Context, _ AuditEvent) {
	<-s.release
}
