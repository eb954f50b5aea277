/*
scheduler.go - Cron-driven catch-up sweep

PURPOSE:
  Periodically finds configs whose current period has already ended and
  emits a generation trigger for each. This is what continues a config
  that stopped at the generator's iteration cap, and what recovers
  triggers lost while the queue was full.

DESIGN:
  - robfig/cron/v3 with a standard 5-field spec (default: 00:15 daily)
  - SkipIfStillRunning, so a slow sweep is never overlapped
  - The sweep only emits events; the generator does the work

USAGE:
  scheduler, err := NewCatchUpScheduler(store, emitter, spec, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerCatchUp endpoint (manual sweep)
  - payroll/generator.go: Run
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/trigger"
)

const DefaultCatchUpSpec = "15 0 * * *"

// CatchUpScheduler runs the catch-up sweep on a cron schedule.
type CatchUpScheduler struct {
	Store   payroll.Store
	Emitter trigger.Emitter
	Clock   payroll.Clock
	Logger  logrus.FieldLogger

	// SweepTimeout bounds one sweep.
	SweepTimeout time.Duration

	spec    string
	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewCatchUpScheduler validates spec and builds a stopped scheduler.
func NewCatchUpScheduler(store payroll.Store, emitter trigger.Emitter, spec string, logger logrus.FieldLogger) (*CatchUpScheduler, error) {
	if spec == "" {
		spec = DefaultCatchUpSpec
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid catch-up cron spec %q: %w", spec, err)
	}

	s := &CatchUpScheduler{
		Store:        store,
		Emitter:      emitter,
		Clock:        payroll.SystemClock{},
		Logger:       logger,
		SweepTimeout: 5 * time.Minute,
		spec:         spec,
	}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{logger}),
		cron.SkipIfStillRunning(cronLogger{logger}),
	))
	if _, err := s.cron.AddFunc(spec, func() { s.RunNow() }); err != nil {
		return nil, fmt.Errorf("schedule catch-up: %w", err)
	}
	return s, nil
}

// Start begins the schedule. Calling Start twice is a no-op.
func (s *CatchUpScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.Logger.WithField("spec", s.spec).Info("catch-up scheduler started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *CatchUpScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	<-s.cron.Stop().Done()
	s.Logger.Info("catch-up scheduler stopped")
}

// RunNow performs one sweep immediately and returns how many triggers it emitted.
func (s *CatchUpScheduler) RunNow() int {
	ctx := context.Background()
	if s.SweepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.SweepTimeout)
		defer cancel()
	}

	clock := s.Clock
	if clock == nil {
		clock = payroll.SystemClock{}
	}

	emitted, err := EmitDue(ctx, s.Store, s.Emitter, clock.Today(), s.Logger)
	if err != nil {
		s.Logger.WithError(err).Error("catch-up sweep failed")
	}
	return emitted
}

// NextRun returns when the next scheduled sweep will occur.
func (s *CatchUpScheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// EmitDue emits one trigger per config whose current period ended before
// today. Emit failures are logged and skipped; the next sweep retries them.
func EmitDue(ctx context.Context, store payroll.Store, emitter trigger.Emitter, today payroll.Date, logger logrus.FieldLogger) (int, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	due, err := store.ListDueConfigs(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("list due configs: %w", err)
	}

	emitted, failed := 0, 0
	for _, cfg := range due {
		if err := emitter.Emit(ctx, trigger.Event{ConfigID: cfg.ID}); err != nil {
			failed++
			logger.WithField("config_id", cfg.ID).WithError(err).Warn("failed to emit catch-up trigger")
			continue
		}
		emitted++
	}

	logger.WithFields(logrus.Fields{
		"today":   today.String(),
		"due":     len(due),
		"emitted": emitted,
		"failed":  failed,
	}).Info("catch-up sweep completed")
	return emitted, nil
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).WithError(err).Error(msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
