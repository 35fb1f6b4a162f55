package projectsystem

import (
	"context"
	"io"
	"log"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/projsync/internal/filewatch"
	"github.com/steveyegge/projsync/internal/workspace"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestFactory(t *testing.T, opts ...FactoryOption) (*Factory, *workspace.Store) {
	t.Helper()
	store := workspace.NewStore(workspace.WithLogger(quietLogger()))
	t.Cleanup(store.Close)
	opts = append([]FactoryOption{WithLogger(quietLogger())}, opts...)
	return NewFactory(store, opts...), store
}

func createProject(t *testing.T, f *Factory, info ProjectCreationInfo) *Project {
	t.Helper()
	if info.Language == "" {
		info.Language = workspace.LanguageCSharp
	}
	if info.AssemblyName == "" {
		info.AssemblyName = info.Name
	}
	p, err := f.CreateAndAddToWorkspace(context.Background(), info)
	if err != nil {
		t.Fatalf("CreateAndAddToWorkspace(%s) failed: %v", info.Name, err)
	}
	return p
}

func projectState(t *testing.T, store *workspace.Store, p *Project) *workspace.ProjectState {
	t.Helper()
	state, ok := store.CurrentSolution().Project(p.ID())
	if !ok {
		t.Fatalf("project %s is not in the workspace", p.Name())
	}
	return state
}

func hasMetadataReference(state *workspace.ProjectState, path string, aliases ...string) bool {
	return slices.ContainsFunc(state.MetadataReferences(), func(r workspace.MetadataReference) bool {
		return r.FilePath == path && slices.Equal(r.Properties.Aliases, aliases)
	})
}

func hasProjectReference(state *workspace.ProjectState, target workspace.ProjectID, aliases ...string) bool {
	return slices.ContainsFunc(state.ProjectReferences(), func(r workspace.ProjectReference) bool {
		return r.ProjectID == target && slices.Equal(r.Aliases, aliases)
	})
}

// eventRecorder collects store events.
type eventRecorder struct {
	mu     sync.Mutex
	events []workspace.ChangeEvent
}

func recordEvents(store *workspace.Store) *eventRecorder {
	r := &eventRecorder{}
	store.Subscribe(func(e workspace.ChangeEvent) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

func (r *eventRecorder) take(t *testing.T, store *workspace.Store) []workspace.ChangeEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// fakeOSWatcher counts OS-level watches per path.
type fakeOSWatcher struct {
	mu      sync.Mutex
	created map[string]int
	closed  map[string]int
}

func newFakeOSWatcher() *fakeOSWatcher {
	return &fakeOSWatcher{created: make(map[string]int), closed: make(map[string]int)}
}

type fakeHandle struct {
	w    *fakeOSWatcher
	path string
}

func (h fakeHandle) Close() error {
	h.w.mu.Lock()
	defer h.w.mu.Unlock()
	h.w.closed[h.path]++
	return nil
}

func (w *fakeOSWatcher) Watch(path string, _ func(string)) (filewatch.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.created[path]++
	return fakeHandle{w: w, path: path}, nil
}

func (w *fakeOSWatcher) counts(path string) (created, closed int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.created[path], w.closed[path]
}

func newTestRegistry(t *testing.T, os filewatch.OSWatcher) *filewatch.Registry {
	t.Helper()
	reg := filewatch.NewRegistry(os, &filewatch.Config{Debounce: time.Hour, Logger: quietLogger()})
	t.Cleanup(func() { reg.Close() })
	return reg
}
