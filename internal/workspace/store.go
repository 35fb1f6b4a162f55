package workspace

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

// SolutionUpdate describes one call to Store.SetCurrentSolution.
type SolutionUpdate struct {
	// Transform derives the new solution from old. It may run more than once
	// and must not have side effects. Returning old unchanged is a no-op.
	Transform func(old *Solution) *Solution

	// Classify describes the committed change. It runs once, for the attempt
	// that is committed. Nil means SolutionChanged.
	Classify func(old, new *Solution) ChangeEvent

	// OnBeforeUpdate runs under the commit lock just before new is published.
	OnBeforeUpdate func(old, new *Solution)

	// OnAfterUpdate runs under the commit lock just after new is published.
	OnAfterUpdate func(old, new *Solution)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLanguages replaces the default language registrations.
func WithLanguages(langs ...Language) StoreOption {
	return func(s *Store) {
		s.languages = NewLanguages(langs)
	}
}

// WithLogger sets the logger used to report failing subscribers.
func WithLogger(logger *log.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store owns the current Solution and publishes changes to it.
type Store struct {
	languages *Languages
	logger    *log.Logger

	current  atomic.Pointer[Solution]
	closing  atomic.Bool
	commitMu sync.Mutex

	events *dispatcher
}

// NewStore returns a store holding an empty solution.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		languages: NewLanguages(DefaultLanguages()),
		logger:    log.New(os.Stderr, "[workspace] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(NewSolution(s.languages))
	s.events = newDispatcher(s.logger)
	return s
}

// CurrentSolution returns the latest committed snapshot.
func (s *Store) CurrentSolution() *Solution {
	return s.current.Load()
}

// Languages returns the registered languages.
func (s *Store) Languages() *Languages {
	return s.languages
}

// SetCurrentSolution applies u.Transform to the current solution and commits
// the result. If another writer commits while the transform runs, the
// transform is run again against the newer solution.
//
// It reports whether a change was committed, along with the solution that is
// current afterwards.
func (s *Store) SetCurrentSolution(u SolutionUpdate) (bool, *Solution) {
	for {
		old := s.current.Load()
		next := u.Transform(old)
		if next == nil || next == old {
			return false, old
		}

		s.commitMu.Lock()
		if s.current.Load() != old {
			s.commitMu.Unlock()
			continue
		}

		committed := next.withVersion(old.version + 1)
		if u.OnBeforeUpdate != nil {
			u.OnBeforeUpdate(old, committed)
		}
		s.current.Store(committed)
		if u.OnAfterUpdate != nil {
			u.OnAfterUpdate(old, committed)
		}

		event := ChangeEvent{Kind: SolutionChanged}
		if u.Classify != nil {
			event = u.Classify(old, next)
			if event.Kind == NoChange {
				event.Kind = SolutionChanged
			}
		}
		event.OldSolution = old
		event.NewSolution = committed
		s.events.enqueue(event)
		s.commitMu.Unlock()

		return true, committed
	}
}

// MarkSolutionClosing records that the whole solution is being torn down.
func (s *Store) MarkSolutionClosing() {
	s.closing.Store(true)
}

// SolutionClosing reports whether MarkSolutionClosing was called.
func (s *Store) SolutionClosing() bool {
	return s.closing.Load()
}

// Subscribe registers handler for every change committed from now on.
// Handlers run one at a time, in commit order, on a dedicated goroutine.
// The returned function removes the subscription.
func (s *Store) Subscribe(handler func(ChangeEvent)) (unsubscribe func()) {
	return s.events.subscribe(handler)
}

// Flush blocks until every event committed before the call has been
// delivered, or ctx is done.
func (s *Store) Flush(ctx context.Context) error {
	return s.events.flush(ctx)
}

// Close stops event delivery after the pending events have been delivered.
func (s *Store) Close() {
	s.events.close()
}

type dispatchItem struct {
	event   ChangeEvent
	flushed chan struct{}
}

type subscription struct {
	id      uint64
	handler func(ChangeEvent)
}

// dispatcher delivers events in enqueue order from a single goroutine.
type dispatcher struct {
	logger *log.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []dispatchItem
	subs   []subscription
	nextID uint64
	closed bool
	done   chan struct{}
}

func newDispatcher(logger *log.Logger) *dispatcher {
	d := &dispatcher{logger: logger, done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

func (d *dispatcher) enqueue(event ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, dispatchItem{event: event})
	d.cond.Signal()
}

func (d *dispatcher) subscribe(handler func(ChangeEvent)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.subs = append(d.subs, subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, sub := range d.subs {
				if sub.id == id {
					d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (d *dispatcher) flush(ctx context.Context) error {
	marker := make(chan struct{})
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		select {
		case <-d.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.queue = append(d.queue, dispatchItem{flushed: marker})
	d.cond.Signal()
	d.mu.Unlock()

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *dispatcher) close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.cond.Signal()
	}
	d.mu.Unlock()
	<-d.done
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		item := d.queue[0]
		d.queue[0] = dispatchItem{}
		d.queue = d.queue[1:]
		subs := d.subs
		d.mu.Unlock()

		if item.flushed != nil {
			close(item.flushed)
			continue
		}
		for _, sub := range subs {
			d.deliver(sub, item.event)
		}
	}
}

func (d *dispatcher) deliver(sub subscription, event ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Printf("subscriber %d panicked on %s: %v", sub.id, event.Kind, r)
		}
	}()
	sub.handler(event)
}
