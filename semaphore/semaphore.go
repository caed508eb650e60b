package semaphore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/deque"
)

// ErrNegativePermits is returned by Uncancelable when asked for fewer than
// zero permits.
var ErrNegativePermits = errors.New("semaphore: negative number of permits")

// waiter is a goroutine suspended in AcquireN. ready is closed once need
// drops to zero.
type waiter struct {
	need  int64
	ready chan struct{}
}

// Semaphore is a FIFO counting semaphore. The zero value has no permits;
// use Uncancelable to create one.
type Semaphore struct {
	mu sync.Mutex

	// INVARIANT: permits >= 0
	// INVARIANT: permits > 0 implies waiters.Len() == 0
	//
	// GUARDED_BY(mu)
	permits int64
	waiters deque.Deque[*waiter]
}

// Uncancelable creates a semaphore holding n permits. Goroutines waiting on
// it cannot be interrupted. It fails without producing a semaphore if n is
// negative.
func Uncancelable(n int64) (*Semaphore, error) {
	if n < 0 {
		return nil, fmt.Errorf("uncancelable(%d): %w", n, ErrNegativePermits)
	}
	return &Semaphore{permits: n}, nil
}

// Acquire takes one permit, blocking until one is available.
//
// Typical usage pattern:
//
//	s.Acquire()
//	defer s.Release()
func (s *Semaphore) Acquire() {
	s.AcquireN(1)
}

// AcquireN takes n permits, blocking until all of them are available.
// Permits that are free when the call queues are taken immediately and the
// remainder is handed over by later releases.
func (s *Semaphore) AcquireN(n int64) {
	checkCount("AcquireN", n)
	if n == 0 {
		return
	}

	s.mu.Lock()
	if s.permits >= n {
		s.permits -= n
		s.mu.Unlock()
		return
	}

	w := &waiter{need: n - s.permits, ready: make(chan struct{})}
	s.permits = 0
	s.waiters.PushBack(w)
	s.mu.Unlock()

	<-w.ready
}

// TryAcquire takes one permit if one is free and reports whether it did.
// It never blocks.
func (s *Semaphore) TryAcquire() bool {
	return s.TryAcquireN(1)
}

// TryAcquireN takes n permits if all of them are free and reports whether
// it did. On failure the semaphore is left unchanged.
func (s *Semaphore) TryAcquireN(n int64) bool {
	checkCount("TryAcquireN", n)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.permits < n {
		return false
	}
	s.permits -= n
	return true
}

// Release gives back one permit, waking the longest waiting goroutine if
// there is one.
func (s *Semaphore) Release() {
	s.ReleaseN(1)
}

// ReleaseN gives back n permits. Queued waiters are satisfied front to back;
// only permits nobody is waiting for become available.
func (s *Semaphore) ReleaseN(n int64) {
	checkCount("ReleaseN", n)

	s.mu.Lock()
	defer s.mu.Unlock()

	for n > 0 && s.waiters.Len() > 0 {
		w := s.waiters.Front()
		if w.need > n {
			w.need -= n
			return
		}
		n -= w.need
		w.need = 0
		s.waiters.PopFront()
		close(w.ready)
	}
	s.permits += n
}

// Available returns the number of permits that could be taken right now.
// The value is a snapshot and may be stale by the time it is used.
func (s *Semaphore) Available() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits
}

// Count returns the available permits minus the permits still owed to
// queued waiters. It is negative while goroutines are waiting.
func (s *Semaphore) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.waiters.Len() == 0 {
		return s.permits
	}
	var owed int64
	for i := 0; i < s.waiters.Len(); i++ {
		owed += s.waiters.At(i).need
	}
	return s.permits - owed
}

// Waiting returns the number of goroutines queued in Acquire or AcquireN.
func (s *Semaphore) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Len()
}

// WithPermit runs action while holding one permit. The permit is released
// however action exits.
func (s *Semaphore) WithPermit(action func() error) error {
	s.Acquire()
	defer s.Release()
	return action()
}

// With is WithPermit for actions that produce a value.
func With[T any](s *Semaphore, action func() (T, error)) (T, error) {
	s.Acquire()
	defer s.Release()
	return action()
}

// String returns a human-readable representation of the semaphore's state,
// e.g. "Semaphore(available=3 waiting=0)".
func (s *Semaphore) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("Semaphore(available=%d waiting=%d)", s.permits, s.waiters.Len())
}

func checkCount(op string, n int64) {
	if n < 0 {
		panic(fmt.Sprintf("semaphore: %s(%d): negative permit count", op, n))
	}
}
