// Package stress drives a semaphore from many goroutines with a random mix of
// operations and checks that it never admits more holders than it has
// permits.
package stress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soeux/permits/config"
	"github.com/soeux/permits/database"
	"github.com/soeux/permits/semaphore"
	"github.com/soeux/permits/task"
)

var (
	ErrNoPermits     = errors.New("stress: zero permits, every acquire would block forever")
	ErrOverAdmitted  = errors.New("stress: more permits held than exist")
	ErrLeakedPermits = errors.New("stress: permits missing after all workers finished")
)

type Runner struct {
	config *config.Config
	logger *slog.Logger
}

func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		config: cfg,
		logger: logger,
	}
}

// Run performs one stress run. The returned record is non-nil whenever the
// semaphore could be built, even if the run failed or was interrupted; its
// Err field carries the failure.
func (r *Runner) Run(ctx context.Context) (*database.Run, error) {
	sema, err := semaphore.Uncancelable(r.config.Permits)
	if err != nil {
		return nil, err
	}
	if r.config.Permits == 0 {
		return nil, ErrNoPermits
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	seed := r.config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	eg, ctx := errgroup.WithContext(ctx)
	rc := &runContext{
		runner: r,
		sema:   sema,
		seed:   seed,
		ctx:    ctx,
	}

	run := &database.Run{
		Started: time.Now(),
		Permits: r.config.Permits,
		Workers: r.config.Workers,
		Rounds:  r.config.Rounds,
		Seed:    seed,
	}
	r.logger.Info("stress run starting", "permits", run.Permits, "workers", run.Workers, "rounds", run.Rounds, "seed", seed)

	for i := 0; i < r.config.Workers; i++ {
		eg.Go(func() error {
			return rc.work(i)
		})
	}
	err = eg.Wait()

	run.Duration = time.Since(run.Started)
	run.Acquired = rc.acquired.Load()
	run.TryHits = rc.tryHits.Load()
	run.TryMisses = rc.tryMisses.Load()
	run.Scoped = rc.scoped.Load()
	run.Multi = rc.multi.Load()
	run.MaxHolders = rc.maxHeld.Load()
	run.FinalAvailable = sema.Available()

	switch {
	case err != nil:
		err = fmt.Errorf("stress run interrupted: %w", err)
	case rc.violations.Load() > 0:
		err = fmt.Errorf("%w: %d sections saw up to %d of %d", ErrOverAdmitted, rc.violations.Load(), run.MaxHolders, run.Permits)
	case run.FinalAvailable != run.Permits:
		err = fmt.Errorf("%w: %d of %d available", ErrLeakedPermits, run.FinalAvailable, run.Permits)
	}

	if err != nil {
		run.Err = err.Error()
		r.logger.Error("stress run failed", "error", err, "took", run.Duration)
		return run, err
	}

	r.logger.Info("stress run finished", "took", run.Duration, "max_holders", run.MaxHolders)
	return run, nil
}

type runContext struct {
	runner *Runner
	sema   *semaphore.Semaphore
	seed   uint64
	ctx    context.Context

	// permits currently held by workers
	held    atomic.Int64
	maxHeld atomic.Int64

	acquired   atomic.Int64
	tryHits    atomic.Int64
	tryMisses  atomic.Int64
	scoped     atomic.Int64
	multi      atomic.Int64
	violations atomic.Int64
}

func (rc *runContext) work(id int) error {
	cfg := rc.runner.config
	rng := rand.New(rand.NewPCG(rc.seed, uint64(id)))

	for i := 0; i < cfg.Rounds; i++ {
		if err := rc.ctx.Err(); err != nil {
			return err
		}

		switch rng.IntN(5) {
		case 0:
			rc.sema.Acquire()
			rc.hold(1)
			rc.sema.Release()
			rc.acquired.Add(1)
		case 1:
			if !rc.sema.TryAcquire() {
				rc.tryMisses.Add(1)
				continue
			}
			rc.hold(1)
			rc.sema.Release()
			rc.tryHits.Add(1)
		case 2:
			_ = rc.sema.WithPermit(func() error {
				rc.hold(1)
				return nil
			})
			rc.scoped.Add(1)
		case 3:
			_, err := semaphore.Guard(rc.sema, task.Delay(func() (struct{}, error) {
				rc.hold(1)
				return struct{}{}, nil
			})).Run(rc.ctx)
			if err != nil {
				return err
			}
			rc.scoped.Add(1)
		case 4:
			n := 1 + rng.Int64N(min(2, cfg.Permits))
			rc.sema.AcquireN(n)
			rc.hold(n)
			rc.sema.ReleaseN(n)
			rc.multi.Add(1)
		}
	}
	return nil
}

// hold records n permits as held for the configured hold time.
func (rc *runContext) hold(n int64) {
	h := rc.held.Add(n)
	for {
		m := rc.maxHeld.Load()
		if h <= m || rc.maxHeld.CompareAndSwap(m, h) {
			break
		}
	}
	if h > rc.runner.config.Permits {
		rc.violations.Add(1)
		rc.runner.logger.Error("semaphore over-admitted", "held", h, "permits", rc.runner.config.Permits)
	}

	if d := rc.runner.config.Hold; d > 0 {
		time.Sleep(d)
	}
	rc.held.Add(-n)
}
