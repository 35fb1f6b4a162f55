package projectsystem

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/projsync/internal/workspace"
)

// fakeProvider generates a document for every .razor file.
type fakeProvider struct {
	mu          sync.Mutex
	texts       map[string]string
	removed     []string
	subscribers map[int]func(projectFilePath, filePath string)
	nextID      int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		texts:       make(map[string]string),
		subscribers: make(map[int]func(string, string)),
	}
}

func (p *fakeProvider) GetDynamicFileInfo(_ context.Context, _ workspace.ProjectID, _, filePath string) (*DynamicFileInfo, error) {
	if !strings.HasSuffix(filePath, ".razor") {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return &DynamicFileInfo{FilePath: filePath + ".g.cs", Text: p.texts[filePath]}, nil
}

func (p *fakeProvider) RemoveDynamicFileInfo(_ context.Context, _ workspace.ProjectID, _, filePath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, filePath)
	return nil
}

func (p *fakeProvider) Subscribe(fn func(projectFilePath, filePath string)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subscribers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

func (p *fakeProvider) update(projectFilePath, filePath, text string) {
	p.mu.Lock()
	p.texts[filePath] = text
	subs := make([]func(string, string), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		subs = append(subs, fn)
	}
	p.mu.Unlock()
	for _, fn := range subs {
		fn(projectFilePath, filePath)
	}
}

func (p *fakeProvider) subscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

func (p *fakeProvider) removedFiles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.removed...)
}

func TestDynamicFiles_AddUpdateRemove(t *testing.T) {
	provider := newFakeProvider()
	provider.texts["/src/Index.razor"] = "v1"
	f, store := newTestFactory(t,
		WithDynamicFileProviders(provider),
		WithDynamicFilesDebounce(10*time.Millisecond))
	ctx := context.Background()

	p := createProject(t, f, ProjectCreationInfo{Name: "Web", FilePath: "/src/Web.csproj"})

	if err := p.AddDynamicSourceFile(ctx, "/src/Index.razor"); err != nil {
		t.Fatalf("AddDynamicSourceFile() failed: %v", err)
	}
	docs := projectState(t, store, p).Documents(workspace.KindSource)
	if len(docs) != 1 || docs[0].FilePath != "/src/Index.razor.g.cs" || !docs[0].IsGenerated || docs[0].Text != "v1" {
		t.Fatalf("documents = %+v, want one generated document", docs)
	}
	id := docs[0].ID

	changed := make(chan workspace.ChangeEvent, 4)
	unsubscribe := store.Subscribe(func(e workspace.ChangeEvent) {
		if e.Kind == workspace.DocumentChanged {
			changed <- e
		}
	})
	defer unsubscribe()

	provider.update("/src/Web.csproj", "/src/Index.razor", "v2")
	select {
	case e := <-changed:
		if e.DocumentID != id {
			t.Errorf("changed document = %s, want %s", e.DocumentID, id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the generated document to refresh")
	}
	if doc, _ := store.CurrentSolution().Document(id); doc.Text != "v2" {
		t.Errorf("text = %q, want v2", doc.Text)
	}

	if err := p.RemoveDynamicSourceFile(ctx, "/src/Index.razor"); err != nil {
		t.Fatalf("RemoveDynamicSourceFile() failed: %v", err)
	}
	if store.CurrentSolution().ContainsDocument(id) {
		t.Error("generated document still present")
	}
	if got := provider.removedFiles(); len(got) != 1 || got[0] != "/src/Index.razor" {
		t.Errorf("provider released %v, want [/src/Index.razor]", got)
	}
	if err := p.RemoveDynamicSourceFile(ctx, "/src/Index.razor"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RemoveDynamicSourceFile() = %v, want ErrNotFound", err)
	}
}

func TestDynamicFiles_UnhandledFileIsIgnored(t *testing.T) {
	provider := newFakeProvider()
	f, store := newTestFactory(t, WithDynamicFileProviders(provider))
	p := createProject(t, f, ProjectCreationInfo{Name: "Web", FilePath: "/src/Web.csproj"})
	before := store.CurrentSolution().Version()

	if err := p.AddDynamicSourceFile(context.Background(), "/src/readme.md"); err != nil {
		t.Fatalf("AddDynamicSourceFile() failed: %v", err)
	}
	if v := store.CurrentSolution().Version(); v != before {
		t.Errorf("version = %d, want %d", v, before)
	}
	if n := provider.subscriberCount(); n != 0 {
		t.Errorf("subscribed %d times for an unhandled file", n)
	}
}

func TestDynamicFiles_FailedAddReleasesInfo(t *testing.T) {
	provider := newFakeProvider()
	f, _ := newTestFactory(t, WithDynamicFileProviders(provider))
	ctx := context.Background()
	p := createProject(t, f, ProjectCreationInfo{Name: "Web", FilePath: "/src/Web.csproj"})

	// A checked-in copy of the generated document blocks the dynamic one.
	if err := p.AddSourceFile("/src/Index.razor.g.cs"); err != nil {
		t.Fatalf("AddSourceFile() failed: %v", err)
	}
	err := p.AddDynamicSourceFile(ctx, "/src/Index.razor")
	if !errors.Is(err, ErrAlreadyAdded) {
		t.Fatalf("AddDynamicSourceFile() = %v, want ErrAlreadyAdded", err)
	}
	if got := provider.removedFiles(); len(got) != 1 || got[0] != "/src/Index.razor" {
		t.Errorf("provider released %v, want [/src/Index.razor]", got)
	}
	if n := provider.subscriberCount(); n != 0 {
		t.Errorf("subscriptions = %d after a failed add, want 0", n)
	}
	if err := p.RemoveDynamicSourceFile(ctx, "/src/Index.razor"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveDynamicSourceFile() = %v, want ErrNotFound", err)
	}
}

func TestDynamicFiles_RemovingProjectReleasesFiles(t *testing.T) {
	provider := newFakeProvider()
	f, _ := newTestFactory(t, WithDynamicFileProviders(provider))
	ctx := context.Background()
	p := createProject(t, f, ProjectCreationInfo{Name: "Web", FilePath: "/src/Web.csproj"})

	for _, path := range []string{"/src/A.razor", "/src/B.razor"} {
		if err := p.AddDynamicSourceFile(ctx, path); err != nil {
			t.Fatalf("AddDynamicSourceFile(%s) failed: %v", path, err)
		}
	}
	if n := provider.subscriberCount(); n != 1 {
		t.Fatalf("subscriptions = %d, want one per provider", n)
	}

	if err := p.RemoveFromWorkspace(ctx); err != nil {
		t.Fatalf("RemoveFromWorkspace() failed: %v", err)
	}
	if n := provider.subscriberCount(); n != 0 {
		t.Errorf("subscriptions = %d after removal, want 0", n)
	}
	if got := provider.removedFiles(); len(got) != 2 {
		t.Errorf("provider released %v, want both files", got)
	}
}
