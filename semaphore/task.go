package semaphore

import (
	"github.com/soeux/permits/task"
)

// Acquiring returns a task that takes one permit when run. Cancelling the
// task's context does not interrupt the wait.
func Acquiring(s *Semaphore) task.Task[struct{}] {
	return task.Uncancelable(task.Delay(func() (struct{}, error) {
		s.Acquire()
		return struct{}{}, nil
	}))
}

// Releasing returns a task that gives back one permit when run.
func Releasing(s *Semaphore) task.Task[struct{}] {
	return task.Delay(func() (struct{}, error) {
		s.Release()
		return struct{}{}, nil
	})
}

// Guard returns a task that runs t while holding one permit of s.
func Guard[A any](s *Semaphore, t task.Task[A]) task.Task[A] {
	return task.FlatMap(Acquiring(s), func(struct{}) task.Task[A] {
		return task.Guarantee(t, s.Release)
	})
}
