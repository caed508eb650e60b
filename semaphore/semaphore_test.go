package semaphore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soeux/permits/task"
)

// waitQueued spins until n goroutines are queued on s.
func waitQueued(t *testing.T, s *Semaphore, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.Waiting() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d waiters, have %d", n, s.Waiting())
		}
		time.Sleep(time.Millisecond)
	}
}

func mustSemaphore(t *testing.T, n int64) *Semaphore {
	t.Helper()
	s, err := Uncancelable(n)
	if err != nil {
		t.Fatalf("Uncancelable(%d): %v", n, err)
	}
	return s
}

func TestAcquireNSynchronously(t *testing.T) {
	s := mustSemaphore(t, 20)
	for i := 0; i < 20; i++ {
		s.Acquire()
	}
	if got := s.Available(); got != 0 {
		t.Errorf("Available() = %d, want 0", got)
	}
}

func TestTryAcquire(t *testing.T) {
	s := mustSemaphore(t, 20)

	if !s.TryAcquire() {
		t.Fatal("TryAcquire() = false with free permits")
	}
	if got := s.Available(); got != 19 {
		t.Errorf("Available() = %d, want 19", got)
	}
	for i := 0; i < 19; i++ {
		s.Acquire()
	}

	if s.TryAcquire() {
		t.Error("TryAcquire() = true with no free permits")
	}
	if got := s.Available(); got != 0 {
		t.Errorf("Available() = %d after failed TryAcquire, want 0", got)
	}
}

func TestNegativePermits(t *testing.T) {
	s, err := Uncancelable(-5)
	if !errors.Is(err, ErrNegativePermits) {
		t.Fatalf("Uncancelable(-5) error = %v, want ErrNegativePermits", err)
	}
	if s != nil {
		t.Errorf("Uncancelable(-5) returned a semaphore: %v", s)
	}
}

func TestZeroPermits(t *testing.T) {
	s := mustSemaphore(t, 0)
	if s.TryAcquire() {
		t.Error("TryAcquire() = true on empty semaphore")
	}
	s.Release()
	if !s.TryAcquire() {
		t.Error("TryAcquire() = false after Release")
	}
}

func TestWithPermit(t *testing.T) {
	errBoom := errors.New("boom")

	cases := []struct {
		name   string
		action func() error
		want   error
	}{
		{"ok", func() error { return nil }, nil},
		{"error", func() error { return errBoom }, errBoom},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := mustSemaphore(t, 3)
			var inside int64
			err := s.WithPermit(func() error {
				inside = s.Available()
				return c.action()
			})
			if !errors.Is(err, c.want) {
				t.Errorf("WithPermit() = %v, want %v", err, c.want)
			}
			if inside != 2 {
				t.Errorf("Available() inside = %d, want 2", inside)
			}
			if got := s.Available(); got != 3 {
				t.Errorf("Available() after = %d, want 3", got)
			}
		})
	}
}

func TestWithPermitPanic(t *testing.T) {
	s := mustSemaphore(t, 1)
	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic did not propagate")
			}
		}()
		_ = s.WithPermit(func() error { panic("boom") })
	}()
	if got := s.Available(); got != 1 {
		t.Errorf("Available() = %d after panic, want 1", got)
	}
}

func TestWith(t *testing.T) {
	s := mustSemaphore(t, 2)
	got, err := With(s, func() (int64, error) {
		return s.Available(), nil
	})
	if err != nil || got != 1 {
		t.Errorf("With() = %d, %v; want 1, nil", got, err)
	}
	if s.Available() != 2 {
		t.Errorf("Available() = %d, want 2", s.Available())
	}
}

func TestReleaseWakesWaitersInOrder(t *testing.T) {
	s := mustSemaphore(t, 0)

	const n = 5
	order := make(chan int, n)
	for i := 0; i < n; i++ {
		go func() {
			s.Acquire()
			order <- i
		}()
		waitQueued(t, s, i+1)
	}

	for i := 0; i < n; i++ {
		s.Release()
		if got := <-order; got != i {
			t.Fatalf("waiter %d woke at position %d", got, i)
		}
	}
}

func TestReleaseHandsOffToWaiter(t *testing.T) {
	s := mustSemaphore(t, 1)
	s.Acquire()

	acquired := make(chan struct{})
	go func() {
		s.Acquire()
		close(acquired)
	}()
	waitQueued(t, s, 1)

	s.Release()
	if s.TryAcquire() {
		t.Fatal("TryAcquire() stole the permit from a queued waiter")
	}
	if got := s.Available(); got != 0 {
		t.Errorf("Available() = %d after hand-off, want 0", got)
	}
	<-acquired
}

func TestAcquireNPartial(t *testing.T) {
	s := mustSemaphore(t, 2)

	done := make(chan struct{})
	go func() {
		s.AcquireN(5)
		close(done)
	}()
	waitQueued(t, s, 1)

	if got := s.Available(); got != 0 {
		t.Errorf("Available() = %d, want 0", got)
	}
	if got := s.Count(); got != -3 {
		t.Errorf("Count() = %d, want -3", got)
	}

	s.ReleaseN(2)
	if got := s.Count(); got != -1 {
		t.Errorf("Count() = %d, want -1", got)
	}
	select {
	case <-done:
		t.Fatal("AcquireN(5) returned with 4 permits")
	default:
	}

	s.ReleaseN(3)
	<-done
	if got := s.Available(); got != 2 {
		t.Errorf("Available() = %d, want 2", got)
	}
}

func TestReleaseNServesSeveralWaiters(t *testing.T) {
	s := mustSemaphore(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Acquire()
		}()
		waitQueued(t, s, i+1)
	}

	s.ReleaseN(4)
	wg.Wait()
	if got := s.Available(); got != 1 {
		t.Errorf("Available() = %d, want 1", got)
	}
}

func TestNegativeCountPanics(t *testing.T) {
	s := mustSemaphore(t, 1)
	for name, f := range map[string]func(){
		"AcquireN":    func() { s.AcquireN(-1) },
		"TryAcquireN": func() { s.TryAcquireN(-1) },
		"ReleaseN":    func() { s.ReleaseN(-1) },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("%s(-1) did not panic", name)
				}
			}()
			f()
		})
	}
}

func TestConcurrentHoldersBounded(t *testing.T) {
	const (
		permits = 4
		workers = 32
		rounds  = 200
	)
	s := mustSemaphore(t, permits)

	var holders, peak atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				_ = s.WithPermit(func() error {
					h := holders.Add(1)
					for {
						p := peak.Load()
						if h <= p || peak.CompareAndSwap(p, h) {
							break
						}
					}
					holders.Add(-1)
					return nil
				})
			}
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > permits {
		t.Errorf("observed %d simultaneous holders, limit %d", got, permits)
	}
	if got := s.Available(); got != permits {
		t.Errorf("Available() = %d, want %d", got, permits)
	}
}

func TestAcquiringIgnoresCancellation(t *testing.T) {
	s := mustSemaphore(t, 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := Acquiring(s).Run(ctx)
		done <- err
	}()
	waitQueued(t, s, 1)
	cancel()

	select {
	case err := <-done:
		t.Fatalf("cancelled Acquiring returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	if s.Waiting() != 1 {
		t.Fatalf("Waiting() = %d after cancel, want 1", s.Waiting())
	}

	s.Release()
	if err := <-done; err != nil {
		t.Errorf("Acquiring: %v", err)
	}
}

func TestGuard(t *testing.T) {
	s := mustSemaphore(t, 5)

	inside, err := task.RunTimed(context.Background(), Guard(s, task.Defer(func() task.Task[int64] {
		return task.Pure(s.Available())
	})), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if inside != 4 {
		t.Errorf("Available() inside Guard = %d, want 4", inside)
	}
	if got := s.Available(); got != 5 {
		t.Errorf("Available() after Guard = %d, want 5", got)
	}

	errBoom := errors.New("boom")
	_, err = Guard(s, task.Fail[int](errBoom)).Run(context.Background())
	if !errors.Is(err, errBoom) {
		t.Errorf("Guard(Fail) = %v, want %v", err, errBoom)
	}
	if got := s.Available(); got != 5 {
		t.Errorf("Available() after failed Guard = %d, want 5", got)
	}
}

func TestAcquireTraverse(t *testing.T) {
	s := mustSemaphore(t, 20)
	idx := make([]int, 20)

	avail, err := task.RunTimed(context.Background(), task.FlatMap(
		task.Traverse(idx, func(int) task.Task[struct{}] { return Acquiring(s) }),
		func([]struct{}) task.Task[int64] {
			return task.Delay(func() (int64, error) { return s.Available(), nil })
		},
	), 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if avail != 0 {
		t.Errorf("Available() = %d, want 0", avail)
	}
}

func TestString(t *testing.T) {
	s := mustSemaphore(t, 3)
	s.Acquire()
	if got, want := s.String(), "Semaphore(available=2 waiting=0)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
