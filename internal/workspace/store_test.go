package workspace

import (
	"context"
	"sync"
	"testing"
	"time"
)

func flush(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
}

// TestStore_SetCurrentSolution verifies that a commit bumps the version and raises one event.
func TestStore_SetCurrentSolution(t *testing.T) {
	s := NewStore()
	defer s.Close()

	var events []ChangeEvent
	s.Subscribe(func(e ChangeEvent) { events = append(events, e) })

	a := newTestProject("A")
	applied, sol := s.SetCurrentSolution(AccumulatedUpdate(func(acc *ChangeAccumulator) {
		acc.ApplyProjectAdded(a.ID, acc.Solution().AddProject(a))
	}))
	if !applied {
		t.Fatal("SetCurrentSolution() was not applied")
	}
	if sol.Version() != 1 {
		t.Errorf("Version() = %d, want 1", sol.Version())
	}
	if s.CurrentSolution() != sol {
		t.Error("CurrentSolution() is not the committed solution")
	}

	flush(t, s)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != ProjectAdded || events[0].ProjectID != a.ID {
		t.Errorf("event = %s/%s, want project_added/%s", events[0].Kind, events[0].ProjectID, a.ID)
	}
	if events[0].NewSolution != sol || events[0].OldSolution.Version() != 0 {
		t.Error("event does not carry the old and new solutions")
	}
}

// TestStore_NoOpTransform verifies that returning the input commits nothing.
func TestStore_NoOpTransform(t *testing.T) {
	s := NewStore()
	defer s.Close()

	count := 0
	s.Subscribe(func(ChangeEvent) { count++ })

	applied, sol := s.SetCurrentSolution(SolutionUpdate{
		Transform: func(old *Solution) *Solution { return old },
	})
	if applied {
		t.Error("no-op transform reported as applied")
	}
	if sol.Version() != 0 {
		t.Errorf("Version() = %d, want 0", sol.Version())
	}

	flush(t, s)
	if count != 0 {
		t.Errorf("got %d events for a no-op, want 0", count)
	}
}

// TestStore_RetriesOnConcurrentCommit verifies that the transform is rerun against the newer solution.
func TestStore_RetriesOnConcurrentCommit(t *testing.T) {
	s := NewStore()
	defer s.Close()

	a := newTestProject("A")
	b := newTestProject("B")

	var bases []int64
	var before, after int
	applied, sol := s.SetCurrentSolution(SolutionUpdate{
		Transform: func(old *Solution) *Solution {
			bases = append(bases, old.Version())
			if len(bases) == 1 {
				// Another writer sneaks in between transform and commit.
				s.SetCurrentSolution(SolutionUpdate{
					Transform: func(o *Solution) *Solution { return o.AddProject(b) },
				})
			}
			return old.AddProject(a)
		},
		OnBeforeUpdate: func(_, _ *Solution) { before++ },
		OnAfterUpdate:  func(_, _ *Solution) { after++ },
	})

	if !applied {
		t.Fatal("SetCurrentSolution() was not applied")
	}
	if len(bases) != 2 || bases[0] != 0 || bases[1] != 1 {
		t.Errorf("transform bases = %v, want [0 1]", bases)
	}
	if before != 1 || after != 1 {
		t.Errorf("hooks ran before=%d after=%d, want 1 each", before, after)
	}
	if !sol.ContainsProject(a.ID) || !sol.ContainsProject(b.ID) {
		t.Error("committed solution lost one of the writers' projects")
	}
	if sol.Version() != 2 {
		t.Errorf("Version() = %d, want 2", sol.Version())
	}
}

// TestStore_EventsInCommitOrder verifies ordered delivery under concurrent writers.
func TestStore_EventsInCommitOrder(t *testing.T) {
	s := NewStore()
	defer s.Close()

	var mu sync.Mutex
	var versions []int64
	s.Subscribe(func(e ChangeEvent) {
		mu.Lock()
		versions = append(versions, e.NewSolution.Version())
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := newTestProject("P")
			s.SetCurrentSolution(SolutionUpdate{
				Transform: func(old *Solution) *Solution { return old.AddProject(p) },
			})
		}()
	}
	wg.Wait()
	flush(t, s)

	mu.Lock()
	defer mu.Unlock()
	if len(versions) != 20 {
		t.Fatalf("got %d events, want 20", len(versions))
	}
	for i, v := range versions {
		if v != int64(i+1) {
			t.Fatalf("event %d has version %d, want %d", i, v, i+1)
		}
	}
}

// TestStore_Unsubscribe verifies that an unsubscribed handler receives nothing further.
func TestStore_Unsubscribe(t *testing.T) {
	s := NewStore()
	defer s.Close()

	count := 0
	unsubscribe := s.Subscribe(func(ChangeEvent) { count++ })
	unsubscribe()

	p := newTestProject("P")
	s.SetCurrentSolution(SolutionUpdate{
		Transform: func(old *Solution) *Solution { return old.AddProject(p) },
	})
	flush(t, s)

	if count != 0 {
		t.Errorf("unsubscribed handler got %d events", count)
	}
}

func TestStore_SolutionClosing(t *testing.T) {
	s := NewStore()
	defer s.Close()

	if s.SolutionClosing() {
		t.Fatal("new store reports closing")
	}
	s.MarkSolutionClosing()
	if !s.SolutionClosing() {
		t.Error("SolutionClosing() = false after MarkSolutionClosing()")
	}
}
