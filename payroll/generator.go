/*
generator.go - Bounded catch-up loop for one cycle config

PURPOSE:
  Rolls a config forward period by period until its current period has
  not yet ended, appending one generated Period per advancement.

DESIGN:
  - One run per trigger, serialized per config id by a Locker
  - Every iteration reads, advances and writes inside one store transaction
  - The config update is a compare-and-swap on Version; a conflict re-reads
    and retries the iteration without counting it as an advancement
  - At most MaxIterations advancements per run; a config that is still
    behind is picked up again by the next trigger
  - The whole run is bounded by Timeout

STOP REASONS:
  caught_up      current period ends today or later
  not_found      config id does not exist (not an error)
  iteration_cap  MaxIterations advancements were made

SEE ALSO:
  - cycle.go: Advance
  - store.go: TxStore contract
  - trigger/bus.go: Delivers trigger events to Run
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxIterations      = 16
	DefaultRunTimeout         = 30 * time.Second
	DefaultMaxConflictRetries = 3
)

type StopReason string

const (
	StopCaughtUp     StopReason = "caught_up"
	StopNotFound     StopReason = "not_found"
	StopIterationCap StopReason = "iteration_cap"
)

// RunResult summarizes one Run.
type RunResult struct {
	ConfigID ConfigID
	Advanced int
	Stop     StopReason
	Periods  []Period
}

// Generator is the schedule generation loop.
type Generator struct {
	Store  TxStore
	Locker Locker
	Clock  Clock
	Logger logrus.FieldLogger

	MaxIterations      int
	Timeout            time.Duration
	MaxConflictRetries int

	// NewPeriodID defaults to a random UUID.
	NewPeriodID func() PeriodID
	// Now stamps CreatedAt/UpdatedAt; defaults to time.Now.
	Now func() time.Time
}

// NewGenerator creates a generator with default limits, an in-process
// lock and the system clock.
func NewGenerator(store TxStore, logger logrus.FieldLogger) *Generator {
	return &Generator{
		Store:              store,
		Locker:             NewKeyedMutex(),
		Clock:              SystemClock{},
		Logger:             logger,
		MaxIterations:      DefaultMaxIterations,
		Timeout:            DefaultRunTimeout,
		MaxConflictRetries: DefaultMaxConflictRetries,
	}
}

// Run advances config id until it is caught up, the iteration cap is hit,
// or an error occurs. Errors are logged here because triggers are
// fire-and-forget, and returned as well.
func (g *Generator) Run(ctx context.Context, id ConfigID) (RunResult, error) {
	result := RunResult{ConfigID: id}
	log := g.logger().WithField("config_id", id)

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	unlock, err := g.locker().Lock(ctx, id)
	if err != nil {
		log.WithError(err).Error("could not lock payroll cycle config")
		return result, fmt.Errorf("lock config %q: %w", id, err)
	}
	defer unlock()

	maxIter := g.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	result.Stop = StopIterationCap
	var current PeriodState
	for i := 0; i < maxIter; i++ {
		if err := ctx.Err(); err != nil {
			log.WithError(err).WithField("advanced", result.Advanced).Error("payroll generation interrupted")
			return result, fmt.Errorf("generate config %q: %w", id, err)
		}

		out, err := g.stepWithRetry(ctx, id)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"iteration": i,
				"advanced":  result.Advanced,
			}).Error("payroll period advancement failed")
			return result, err
		}
		if out.stop != "" {
			result.Stop = out.stop
			break
		}

		result.Advanced++
		result.Periods = append(result.Periods, out.period)
		current = out.current
		log.WithFields(logrus.Fields{
			"iteration": i,
			"from":      out.period.From.String(),
			"to":        out.period.To.String(),
			"check":     out.period.Check.String(),
		}).Debug("payroll period generated")
	}

	// The last permitted advancement may itself have caught the config up.
	if result.Stop == StopIterationCap && current.To.AfterOrEqual(g.clock().Today()) {
		result.Stop = StopCaughtUp
	}

	entry := log.WithFields(logrus.Fields{"advanced": result.Advanced, "stop": result.Stop})
	if result.Stop == StopIterationCap {
		entry.Warn("payroll generation hit iteration cap; config may still be behind")
	} else {
		entry.Info("payroll generation finished")
	}
	return result, nil
}

type stepOutcome struct {
	stop    StopReason
	period  Period
	current PeriodState
}

func (g *Generator) stepWithRetry(ctx context.Context, id ConfigID) (stepOutcome, error) {
	retries := g.MaxConflictRetries
	if retries < 0 {
		retries = 0
	}
	for attempt := 0; ; attempt++ {
		out, err := g.step(ctx, id)
		if err == nil || !IsRetryable(err) || attempt >= retries {
			return out, err
		}
		g.logger().WithFields(logrus.Fields{
			"config_id": id,
			"attempt":   attempt + 1,
		}).Warn("payroll cycle config changed since read; retrying")
	}
}

// step performs one read-advance-write inside a single transaction.
func (g *Generator) step(ctx context.Context, id ConfigID) (stepOutcome, error) {
	var out stepOutcome
	today := g.clock().Today()

	err := g.Store.WithTx(ctx, func(s Store) error {
		cfg, err := s.GetConfig(ctx, id)
		if errors.Is(err, ErrConfigNotFound) {
			out.stop = StopNotFound
			return nil
		}
		if err != nil {
			return &PersistenceError{Op: "get config", ConfigID: id, Err: err}
		}
		if cfg.Current.To.AfterOrEqual(today) {
			out.stop = StopCaughtUp
			return nil
		}

		adv, err := Advance(*cfg)
		if err != nil {
			return err
		}

		stamp := g.now()
		next := adv.Apply(*cfg)
		next.UpdatedAt = stamp
		if err := s.UpdateConfig(ctx, next, cfg.Version); err != nil {
			return &PersistenceError{Op: "update config", ConfigID: id, Err: err}
		}

		period := Period{
			ID:        g.newPeriodID(),
			ConfigID:  id,
			From:      adv.Finalized.From,
			To:        adv.Finalized.To,
			Check:     adv.Finalized.Check,
			Status:    StatusYetToGenerate,
			CreatedAt: stamp,
		}
		if err := s.InsertPeriod(ctx, period); err != nil {
			return &PersistenceError{Op: "insert period", ConfigID: id, Err: err}
		}
		out.period = period
		out.current = next.Current
		return nil
	})
	if err != nil {
		return stepOutcome{}, err
	}
	return out, nil
}

func (g *Generator) logger() logrus.FieldLogger {
	if g.Logger == nil {
		return logrus.StandardLogger()
	}
	return g.Logger
}

// sharedLocker serializes generators built without NewGenerator.
var sharedLocker = NewKeyedMutex()

func (g *Generator) locker() Locker {
	if g.Locker == nil {
		return sharedLocker
	}
	return g.Locker
}

func (g *Generator) clock() Clock {
	if g.Clock == nil {
		return SystemClock{}
	}
	return g.Clock
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now().UTC()
}

func (g *Generator) newPeriodID() PeriodID {
	if g.NewPeriodID != nil {
		return g.NewPeriodID()
	}
	return PeriodID(uuid.NewString())
}
