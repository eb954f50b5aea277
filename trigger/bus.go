package trigger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrBusFull   = errors.New("trigger bus is full")
	ErrBusClosed = errors.New("trigger bus is closed")
)

const (
	DefaultWorkers    = 4
	DefaultBufferSize = 256
)

// Bus is an in-process, buffered event queue drained by a fixed pool of
// workers. Emit never blocks; a full buffer is reported as ErrBusFull.
// Events for the same config may land on different workers; the
// generator's per-config lock keeps them serialized.
type Bus struct {
	handler Handler
	workers int
	logger  logrus.FieldLogger

	// HandlerTimeout bounds a single handler call. Zero means no bound.
	HandlerTimeout time.Duration

	mu      sync.RWMutex
	queue   chan Event
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewBus(handler Handler, workers, buffer int, logger logrus.FieldLogger) *Bus {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bus{
		handler: handler,
		workers: workers,
		logger:  logger,
		queue:   make(chan Event, buffer),
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.work(i)
	}
	b.logger.WithField("workers", b.workers).Info("trigger bus started")
}

// Emit enqueues ev for asynchronous handling.
func (b *Bus) Emit(_ context.Context, ev Event) error {
	if ev.ConfigID == "" {
		return ErrEmptyConfigID
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	select {
	case b.queue <- ev:
		return nil
	default:
		b.logger.WithField("config_id", ev.ConfigID).Warn("trigger bus full; event dropped")
		return ErrBusFull
	}
}

// Stop refuses new events, lets the workers drain what is queued and waits.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	started := b.started
	b.mu.Unlock()

	if started {
		b.wg.Wait()
	}
	b.logger.Info("trigger bus stopped")
}

// Pending returns the number of queued, not yet handled events.
func (b *Bus) Pending() int {
	return len(b.queue)
}

func (b *Bus) work(id int) {
	defer b.wg.Done()
	for ev := range b.queue {
		b.handle(id, ev)
	}
}

func (b *Bus) handle(worker int, ev Event) {
	ctx := context.Background()
	if b.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.HandlerTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"worker":    worker,
				"config_id": ev.ConfigID,
				"panic":     r,
			}).Error("trigger handler panicked")
		}
	}()

	if err := b.handler(ctx, ev); err != nil {
		b.logger.WithFields(logrus.Fields{
			"worker":    worker,
			"config_id": ev.ConfigID,
		}).WithError(err).Error("trigger handler failed")
	}
}

var _ Emitter = (*Bus)(nil)
