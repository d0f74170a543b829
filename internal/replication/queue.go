package replication

import (
	"context"

	"github.com/fenwick-labs/chatcluster/internal/model"
)

// Queue is a bounded FIFO of pending mutation events awaiting fan-out. A
// leader holds one Queue; its single fan-out worker pops each event and
// delivers it to every follower in turn.
//
// A full queue drops the oldest event rather than blocking the writer that
// produced it — replication is best-effort and at-most-once (see
// model.MutationEvent). A dropped event is never redelivered.
type Queue struct {
	ch chan model.MutationEvent
}

// NewQueue returns a Queue buffering up to capacity pending events.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan model.MutationEvent, capacity)}
}

// Push enqueues ev, dropping the oldest queued event if the queue is full.
func (q *Queue) Push(ev model.MutationEvent) {
	for {
		select {
		case q.ch <- ev:
			return
		default:
			select {
			case <-q.ch:
			default:
			}
		}
	}
}

// Pop blocks until an event is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (model.MutationEvent, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	case <-ctx.Done():
		return model.MutationEvent{}, false
	}
}

// Len reports the number of events currently queued.
func (q *Queue) Len() int {
	return len(q.ch)
}
