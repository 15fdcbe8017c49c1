package goRefresh

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goRefresh/principal"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func newAuditTestEngine(t *testing.T, cfg Config, sink AuditSink) *Engine {
	t.Helper()

	store := principal.NewMemoryStore()
	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return engine
}

func auditTestConfig() Config {
	cfg := engineTestConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = true
	return cfg
}

func waitForEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()

	select {
	case event := <-sink.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditEmitsLoginEvents(t *testing.T) {
	sink := NewChannelSink(16)
	engine := newAuditTestEngine(t, auditTestConfig(), sink)
	defer engine.Close()

	pid := mustRegister(t, engine, "alice", "correct-password-123")
	register := waitForEvent(t, sink)
	if register.EventType != "register_success" || register.PrincipalID != pid {
		t.Fatalf("unexpected register event: %+v", register)
	}

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	ctx = WithUserAgent(ctx, "audit-test/1.0")
	if _, err := engine.Login(ctx, "alice", "correct-password-123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	event := waitForEvent(t, sink)
	if event.EventType != "login_success" {
		t.Fatalf("expected login_success, got %s", event.EventType)
	}
	if !event.Success || event.PrincipalID != pid {
		t.Fatalf("unexpected event payload: %+v", event)
	}
	if event.IP != "203.0.113.7" || event.UserAgent != "audit-test/1.0" {
		t.Fatalf("expected request context on event, got ip=%q ua=%q", event.IP, event.UserAgent)
	}
	if event.Timestamp.IsZero() {
		t.Fatal("expected event timestamp")
	}
}

func TestAuditFailureEventsCarryReason(t *testing.T) {
	sink := NewChannelSink(16)
	engine := newAuditTestEngine(t, auditTestConfig(), sink)
	defer engine.Close()

	mustRegister(t, engine, "alice", "correct-password-123")
	_ = waitForEvent(t, sink) // register_success

	_, _ = engine.Login(context.Background(), "alice", "wrong-password-123")

	event := waitForEvent(t, sink)
	if event.EventType != "login_failure" {
		t.Fatalf("expected login_failure, got %s", event.EventType)
	}
	if event.Success {
		t.Fatal("expected failure event")
	}
	if event.Metadata["reason"] != "bad_password" {
		t.Fatalf("expected bad_password reason, got %+v", event.Metadata)
	}
}

func TestAuditDropsWhenSinkBlocks(t *testing.T) {
	cfg := auditTestConfig()
	cfg.Audit.BufferSize = 1
	sink := newGateSink()
	engine := newAuditTestEngine(t, cfg, sink)

	const events = 32
	for i := 0; i < events; i++ {
		engine.emitAudit(context.Background(), auditEventRevoke, true, "p1", nil, nil)
	}

	if dropped := engine.AuditDropped(); dropped == 0 {
		t.Fatal("expected dropped events with a blocked sink")
	}

	close(sink.gate) // release the worker so Close can drain
	engine.Close()
}

func TestAuditCountsEveryDelivery(t *testing.T) {
	sink := &countingSink{}
	engine := newAuditTestEngine(t, auditTestConfig(), sink)

	mustRegister(t, engine, "alice", "correct-password-123")
	if _, err := engine.Login(context.Background(), "alice", "correct-password-123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	engine.Close() // drains the dispatcher

	if got := sink.Count(); got != 2 {
		t.Fatalf("expected 2 delivered events, got %d", got)
	}
	if dropped := engine.AuditDropped(); dropped != 0 {
		t.Fatalf("expected no drops, got %d", dropped)
	}
}
