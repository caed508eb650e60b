// Package semaphore provides a counting semaphore whose waiters are served in
// strict arrival order and cannot be cancelled once they start waiting.
//
// # Semantics
//
// A Semaphore holds a number of permits fixed at construction. Acquire takes
// one, suspending the calling goroutine while none are free. TryAcquire takes
// one only if it is free right now and never suspends. Release gives one back.
//
// When Release runs while goroutines are queued, the permit is handed straight
// to the goroutine at the head of the queue: the available count is never
// incremented and re-decremented, so neither a late Acquire nor a TryAcquire
// can slip in ahead of a queued waiter. As a consequence a positive Available
// count implies an empty queue.
//
// # Cancellation
//
// Semaphores are built with Uncancelable. A waiter blocked in Acquire stays
// queued until a permit reaches it; there is no context to abandon the wait.
// Callers that need a bounded wait should use TryAcquire and retry on their own
// schedule.
//
// # Scoped use
//
// WithPermit and With pair an Acquire with a deferred Release so the permit
// goes back on every exit path, panics included:
//
//	err := sem.WithPermit(func() error {
//	    return upload(ctx, blob)
//	})
//
// Guard, Acquiring and Releasing provide the same operations as task.Task
// values for code written against the task package.
package semaphore
