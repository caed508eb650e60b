// Package task implements a small deferred-effect type. A Task describes a
// computation; nothing happens until it is run with a context.
package task

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrTimeout is returned by RunTimed when the task does not finish in time.
var ErrTimeout = errors.New("task: timed out")

type result[A any] struct {
	a   A
	err error
}

// Task is a computation producing an A or an error when run.
type Task[A any] func(ctx context.Context) (A, error)

// Run runs t with ctx.
func (t Task[A]) Run(ctx context.Context) (A, error) {
	return t(ctx)
}

// Pure returns a task that yields a without side effects.
func Pure[A any](a A) Task[A] {
	return func(context.Context) (A, error) {
		return a, nil
	}
}

// Fail returns a task that always fails with err.
func Fail[A any](err error) Task[A] {
	return func(context.Context) (A, error) {
		var zero A
		return zero, err
	}
}

// Delay wraps a side-effecting function. f runs every time the task does.
func Delay[A any](f func() (A, error)) Task[A] {
	return func(context.Context) (A, error) {
		return f()
	}
}

// Defer builds the task with f at run time rather than construction time.
func Defer[A any](f func() Task[A]) Task[A] {
	return func(ctx context.Context) (A, error) {
		return f()(ctx)
	}
}

func Map[A, B any](t Task[A], f func(A) B) Task[B] {
	return func(ctx context.Context) (B, error) {
		a, err := t(ctx)
		if err != nil {
			var zero B
			return zero, err
		}
		return f(a), nil
	}
}

func FlatMap[A, B any](t Task[A], f func(A) Task[B]) Task[B] {
	return func(ctx context.Context) (B, error) {
		a, err := t(ctx)
		if err != nil {
			var zero B
			return zero, err
		}
		return f(a)(ctx)
	}
}

// HandleError recovers from a failure of t by mapping the error to a value.
func HandleError[A any](t Task[A], f func(error) A) Task[A] {
	return func(ctx context.Context) (A, error) {
		a, err := t(ctx)
		if err != nil {
			return f(err), nil
		}
		return a, nil
	}
}

// HandleErrorWith recovers from a failure of t by running another task.
func HandleErrorWith[A any](t Task[A], f func(error) Task[A]) Task[A] {
	return func(ctx context.Context) (A, error) {
		a, err := t(ctx)
		if err != nil {
			return f(err)(ctx)
		}
		return a, nil
	}
}

// Guarantee runs finalizer after t however t exits, including a panic.
func Guarantee[A any](t Task[A], finalizer func()) Task[A] {
	return func(ctx context.Context) (A, error) {
		defer finalizer()
		return t(ctx)
	}
}

// Traverse runs f on each element in order and collects the results. It
// stops at the first error.
func Traverse[A, B any](as []A, f func(A) Task[B]) Task[[]B] {
	return func(ctx context.Context) ([]B, error) {
		bs := make([]B, 0, len(as))
		for _, a := range as {
			b, err := f(a)(ctx)
			if err != nil {
				return nil, err
			}
			bs = append(bs, b)
		}
		return bs, nil
	}
}

// ParTraverse is Traverse with up to limit tasks running at once. A limit
// below one means no limit. The first error cancels the remaining tasks.
func ParTraverse[A, B any](as []A, limit int, f func(A) Task[B]) Task[[]B] {
	return func(ctx context.Context) ([]B, error) {
		eg, ctx := errgroup.WithContext(ctx)
		if limit > 0 {
			eg.SetLimit(limit)
		}

		bs := make([]B, len(as))
		for i, a := range as {
			eg.Go(func() error {
				b, err := f(a)(ctx)
				if err != nil {
					return err
				}
				bs[i] = b
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
		return bs, nil
	}
}

// Async suspends until register's callback is invoked. The callback may be
// called from any goroutine; calls after the first are ignored. The wait is
// abandoned with ctx.Err() if ctx is cancelled first.
func Async[A any](register func(cb func(A, error))) Task[A] {
	return func(ctx context.Context) (A, error) {
		done := make(chan result[A], 1)
		register(func(a A, err error) {
			select {
			case done <- result[A]{a, err}:
			default:
			}
		})

		select {
		case r := <-done:
			return r.a, r.err
		case <-ctx.Done():
			var zero A
			return zero, ctx.Err()
		}
	}
}

// Uncancelable runs t with a context that is never cancelled. Values carried
// by ctx are preserved.
func Uncancelable[A any](t Task[A]) Task[A] {
	return func(ctx context.Context) (A, error) {
		return t(context.WithoutCancel(ctx))
	}
}

// RunTimed runs t and waits at most d for it. On timeout the task's context
// is cancelled and ErrTimeout is returned without waiting for the task to
// return.
func RunTimed[A any](ctx context.Context, t Task[A], d time.Duration) (A, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result[A], 1)
	go func() {
		a, err := t(ctx)
		done <- result[A]{a, err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.a, r.err
	case <-timer.C:
		var zero A
		return zero, ErrTimeout
	}
}
