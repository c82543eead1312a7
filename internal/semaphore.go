package internal

import "context"

// Semaphore bounds concurrent access to a shared resource. It backs the
// global converter-invocation limit shared by the Pool Manager and
// Worker Runtime; worker launches are bounded by a WorkerPool instead.
type Semaphore chan struct{}

func NewSemaphore(n int) Semaphore {
	if n <= 0 {
		n = 1
	}
	return make(Semaphore, n)
}

// Acquire blocks until a slot is free or ctx is canceled.
func (s Semaphore) Acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s Semaphore) Release() {
	<-s
}
