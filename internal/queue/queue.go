package queue

import (
	"context"
	"sync"

	"spacedub/internal/mention"
)

// State is the drain state of a Queue.
type State string

const (
	StateIdle     State = "idle"
	StateDraining State = "draining"
)

// Handler processes one unit. It runs on the drain goroutine.
type Handler func(ctx context.Context, unit mention.WorkUnit)

// Queue is a FIFO of work units with at most one consumer.
type Queue struct {
	mu    sync.Mutex
	items []mention.WorkUnit
	state State
	done  chan struct{}
}

// New returns an empty, idle queue.
func New() *Queue {
	return &Queue{state: StateIdle}
}

// Push appends unit to the tail.
func (q *Queue) Push(unit mention.WorkUnit) {
	q.mu.Lock()
	q.items = append(q.items, unit)
	q.mu.Unlock()
}

// Len returns the number of queued units, excluding one being processed.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// State reports whether a drain loop is active.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Snapshot returns the queued units in order.
func (q *Queue) Snapshot() []mention.WorkUnit {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]mention.WorkUnit(nil), q.items...)
}

// StartDrain starts the drain loop if none is active and reports whether it
// did. The loop pops units from the head and runs handle on each until the
// queue is empty or ctx is done, then returns the queue to idle. A unit
// already handed to handle is always finished before the loop checks ctx.
func (q *Queue) StartDrain(ctx context.Context, handle Handler) bool {
	q.mu.Lock()
	if q.state == StateDraining {
		q.mu.Unlock()
		return false
	}
	q.state = StateDraining
	done := make(chan struct{})
	q.done = done
	q.mu.Unlock()

	go func() {
		defer close(done)
		for {
			unit, ok := q.next(ctx)
			if !ok {
				return
			}
			handle(ctx, unit)
		}
	}()
	return true
}

// next pops the head, or moves the queue to idle when there is nothing to do.
// Both happen under the same lock as Push so no unit is stranded.
func (q *Queue) next(ctx context.Context) (mention.WorkUnit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 || ctx.Err() != nil {
		q.state = StateIdle
		return mention.WorkUnit{}, false
	}
	unit := q.items[0]
	q.items[0] = mention.WorkUnit{}
	q.items = q.items[1:]
	return unit, true
}

// Wait blocks until the active drain loop, if any, has exited or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
