package socks5d

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// admissionSemaphore is a bounded, non-blocking connection permit pool.
// It wraps golang.org/x/sync/semaphore.Weighted behind the small
// NewWorkerTry/DeferWorker-shaped API used by the pack's
// nabbar-golib/semaphore package, adapted here to the admission-control
// use case: a failed TryAcquire means "reject this connection", never
// "wait for one".
type admissionSemaphore struct {
	weighted *semaphore.Weighted
	ctx      context.Context
}

// newAdmissionSemaphore returns a semaphore admitting at most max
// simultaneous permit holders.
func newAdmissionSemaphore(max int) *admissionSemaphore {
	return &admissionSemaphore{
		weighted: semaphore.NewWeighted(int64(max)),
		ctx:      context.Background(),
	}
}

// tryAcquire attempts to acquire one permit without blocking. On
// success it returns a release function that must be called exactly
// once when the permit is no longer needed, and ok is true. On failure
// ok is false and release is nil.
func (s *admissionSemaphore) tryAcquire() (release func(), ok bool) {
	if !s.weighted.TryAcquire(1) {
		return nil, false
	}
	return func() { s.weighted.Release(1) }, true
}
