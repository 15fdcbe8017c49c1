package goRefresh

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// auditDispatcher decouples the engine's hot paths from the configured
// [AuditSink]: Login and Refresh hand events to a buffered channel and a
// single worker goroutine delivers them. With DropIfFull the hand-off
// never blocks; dropped events are counted and exported through
// [Engine.AuditDropped] so the loss is visible to operators.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool
	logger     zerolog.Logger

	events    chan AuditEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger zerolog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		logger:     logger,
		events:     make(chan AuditEvent, bufferSize),
		done:       make(chan struct{}),
	}

	d.wg.Add(1)
	go d.deliver()

	return d
}

// deliver is the worker loop. After done closes it flushes whatever the
// buffer still holds, so Close never discards an accepted event.
func (d *auditDispatcher) deliver() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit hands an event to the worker. DropIfFull trades completeness for
// latency: the event is counted as dropped instead of blocking the auth
// path. Without it the hand-off blocks until the worker catches up, the
// caller's context expires, or the dispatcher shuts down.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.events <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close stops accepting events, waits for the worker to drain the
// buffer, and reports the final drop count. Safe to call more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
		if n := d.dropped.Load(); n > 0 {
			d.logger.Warn().Uint64("dropped", n).Msg("audit events dropped")
		}
	})
}

// Dropped returns the number of events discarded because the buffer was
// full at emit time.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
