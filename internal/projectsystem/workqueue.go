package projectsystem

import (
	"context"
	"sync"
	"time"
)

// workQueue collects items and hands them to process in batches once no new
// item has arrived for delay. Items are deduplicated within a batch and
// batches are processed one at a time, in order.
type workQueue[T comparable] struct {
	delay   time.Duration
	process func(ctx context.Context, items []T)

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	items []T
	seen  map[T]bool
	timer *time.Timer

	// processing serializes batches. It is taken before the pending items
	// are, so batches run in the order their items arrived.
	processing sync.Mutex
}

func newWorkQueue[T comparable](delay time.Duration, process func(ctx context.Context, items []T)) *workQueue[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &workQueue[T]{
		delay:   delay,
		process: process,
		ctx:     ctx,
		cancel:  cancel,
		seen:    make(map[T]bool),
	}
}

// Add queues item and restarts the quiet period.
func (q *workQueue[T]) Add(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx.Err() != nil {
		return
	}
	if !q.seen[item] {
		q.seen[item] = true
		q.items = append(q.items, item)
	}
	if q.timer == nil {
		q.timer = time.AfterFunc(q.delay, q.run)
	} else {
		q.timer.Reset(q.delay)
	}
}

// Cancel drops pending items and cancels the batch in progress, if any.
// The queue accepts no further items.
func (q *workQueue[T]) Cancel() {
	q.cancel()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.timer != nil {
		q.timer.Stop()
	}
	q.items = nil
	clear(q.seen)
}

func (q *workQueue[T]) run() {
	q.processing.Lock()
	defer q.processing.Unlock()

	q.mu.Lock()
	items := q.items
	q.items = nil
	clear(q.seen)
	q.mu.Unlock()

	if len(items) == 0 || q.ctx.Err() != nil {
		return
	}
	q.process(q.ctx, items)
}
