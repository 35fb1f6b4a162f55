package projectsystem

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/steveyegge/projsync/internal/workspace"
)

func TestFactory_CreateAndAddToWorkspace(t *testing.T) {
	f, store := newTestFactory(t)
	events := recordEvents(store)

	p := createProject(t, f, ProjectCreationInfo{
		Name:           "Lib",
		FilePath:       "/src/Lib/Lib.csproj",
		OutputFilePath: "/out/Lib.dll",
		CompilationOptions: workspace.CompilationOptions{
			OutputKind: workspace.OutputKindLibrary,
		},
	})

	got := events.take(t, store)
	if len(got) != 1 || got[0].Kind != workspace.ProjectAdded || got[0].ProjectID != p.ID() {
		t.Fatalf("events = %+v, want one project_added", got)
	}

	ps := projectState(t, store, p)
	if ps.Name() != "Lib" || ps.OutputFilePath() != "/out/Lib.dll" {
		t.Errorf("project = %s/%s, want Lib//out/Lib.dll", ps.Name(), ps.OutputFilePath())
	}

	state, err := f.UpdateState(context.Background())
	if err != nil {
		t.Fatalf("UpdateState() failed: %v", err)
	}
	if producers := state.ProjectsForOutputPath("/OUT/lib.dll"); len(producers) != 1 || producers[0] != p.ID() {
		t.Errorf("ProjectsForOutputPath() = %v, want [%s]", producers, p.ID())
	}
}

func TestFactory_CreateRejectsInvalidInput(t *testing.T) {
	f, store := newTestFactory(t)

	_, err := f.CreateAndAddToWorkspace(context.Background(), ProjectCreationInfo{Name: "X", Language: "COBOL"})
	if !errors.Is(err, ErrUnknownLanguage) {
		t.Errorf("unknown language: err = %v, want ErrUnknownLanguage", err)
	}
	_, err = f.CreateAndAddToWorkspace(context.Background(), ProjectCreationInfo{
		Name:           "X",
		Language:       workspace.LanguageCSharp,
		OutputFilePath: "bin/x.dll",
	})
	if !errors.Is(err, ErrInvalidPath) {
		t.Errorf("relative output path: err = %v, want ErrInvalidPath", err)
	}
	if !IsContractViolation(err) {
		t.Error("IsContractViolation() = false for an invalid path")
	}
	if n := store.CurrentSolution().ProjectCount(); n != 0 {
		t.Errorf("rejected creations left %d projects behind", n)
	}
}

// TestFactory_BatchProducesOneEvent verifies that a batch of edits becomes a single notification.
func TestFactory_BatchProducesOneEvent(t *testing.T) {
	f, store := newTestFactory(t)
	p := createProject(t, f, ProjectCreationInfo{Name: "App"})

	events := recordEvents(store)
	before := store.CurrentSolution().Version()

	scope, err := p.CreateBatchScope()
	if err != nil {
		t.Fatalf("CreateBatchScope() failed: %v", err)
	}
	for _, path := range []string{"/src/a.cs", "/src/b.cs", "/src/c.cs"} {
		if err := p.AddSourceFile(path); err != nil {
			t.Fatalf("AddSourceFile(%s) failed: %v", path, err)
		}
	}
	if err := p.AddMetadataReference("/lib/System.dll", workspace.MetadataReferenceProperties{}); err != nil {
		t.Fatalf("AddMetadataReference() failed: %v", err)
	}

	if v := store.CurrentSolution().Version(); v != before {
		t.Fatalf("edits reached the workspace while the scope was open (version %d -> %d)", before, v)
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	got := events.take(t, store)
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Kind != workspace.ProjectChanged || got[0].ProjectID != p.ID() {
		t.Errorf("event = %s/%s, want project_changed/%s", got[0].Kind, got[0].ProjectID, p.ID())
	}

	ps := projectState(t, store, p)
	if n := len(ps.Documents(workspace.KindSource)); n != 3 {
		t.Errorf("got %d source documents, want 3", n)
	}
	if !hasMetadataReference(ps, "/lib/System.dll") {
		t.Error("metadata reference missing after flush")
	}

	if err := scope.Close(); !errors.Is(err, ErrScopeClosed) {
		t.Errorf("second Close() = %v, want ErrScopeClosed", err)
	}
}

func TestFactory_NestedScopesFlushOnLastClose(t *testing.T) {
	f, store := newTestFactory(t)
	p := createProject(t, f, ProjectCreationInfo{Name: "App"})
	before := store.CurrentSolution().Version()

	outer, _ := p.CreateBatchScope()
	inner, _ := p.CreateBatchScope()
	if err := p.AddSourceFile("/src/a.cs"); err != nil {
		t.Fatalf("AddSourceFile() failed: %v", err)
	}
	if err := inner.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if v := store.CurrentSolution().Version(); v != before {
		t.Fatal("closing the inner scope flushed the batch")
	}
	if err := outer.CloseContext(context.Background()); err != nil {
		t.Fatalf("CloseContext() failed: %v", err)
	}
	if v := store.CurrentSolution().Version(); v != before+1 {
		t.Errorf("version = %d, want %d after the outer scope closed", v, before+1)
	}
}

// TestFactory_IdleEditsApplyImmediately verifies one transform per edit outside a scope.
func TestFactory_IdleEditsApplyImmediately(t *testing.T) {
	f, store := newTestFactory(t)
	p := createProject(t, f, ProjectCreationInfo{Name: "App"})
	events := recordEvents(store)

	if err := p.AddSourceFile("/src/a.cs", "Folder"); err != nil {
		t.Fatalf("AddSourceFile() failed: %v", err)
	}
	if err := p.AddAdditionalFile("/src/notes.txt"); err != nil {
		t.Fatalf("AddAdditionalFile() failed: %v", err)
	}
	if err := p.AddAnalyzerConfigFile("/src/.editorconfig"); err != nil {
		t.Fatalf("AddAnalyzerConfigFile() failed: %v", err)
	}

	got := events.take(t, store)
	want := []workspace.ChangeKind{
		workspace.DocumentAdded,
		workspace.AdditionalDocumentAdded,
		workspace.AnalyzerConfigDocumentAdded,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i, e := range got {
		if e.Kind != want[i] {
			t.Errorf("event %d = %s, want %s", i, e.Kind, want[i])
		}
		if e.DocumentID.IsZero() {
			t.Errorf("event %d has no document id", i)
		}
	}

	if err := p.RemoveSourceFile("/SRC/A.cs"); err != nil {
		t.Fatalf("RemoveSourceFile() failed: %v", err)
	}
	got = events.take(t, store)
	if len(got) != 1 || got[0].Kind != workspace.DocumentRemoved {
		t.Errorf("events = %+v, want one document_removed", got)
	}
}

// TestFactory_AddThenRemoveInBatchCancels verifies that a document added and removed in one batch never reaches the workspace.
func TestFactory_AddThenRemoveInBatchCancels(t *testing.T) {
	f, store := newTestFactory(t)
	p := createProject(t, f, ProjectCreationInfo{Name: "App"})
	events := recordEvents(store)
	before := store.CurrentSolution().Version()

	scope, _ := p.CreateBatchScope()
	if err := p.AddSourceFile("/src/tmp.cs"); err != nil {
		t.Fatalf("AddSourceFile() failed: %v", err)
	}
	if err := p.RemoveSourceFile("/src/tmp.cs"); err != nil {
		t.Fatalf("RemoveSourceFile() failed: %v", err)
	}
	if err := p.AddMetadataReference("/lib/tmp.dll", workspace.MetadataReferenceProperties{}); err != nil {
		t.Fatalf("AddMetadataReference() failed: %v", err)
	}
	if err := p.RemoveMetadataReference("/lib/tmp.dll", workspace.MetadataReferenceProperties{}); err != nil {
		t.Fatalf("RemoveMetadataReference() failed: %v", err)
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if v := store.CurrentSolution().Version(); v != before {
		t.Errorf("version = %d, want %d", v, before)
	}
	if got := events.take(t, store); len(got) != 0 {
		t.Errorf("got %d events for a cancelled batch", len(got))
	}
}

// TestFactory_ContractViolations verifies that invalid input fails without changing anything.
func TestFactory_ContractViolations(t *testing.T) {
	f, store := newTestFactory(t)
	p := createProject(t, f, ProjectCreationInfo{Name: "App"})
	other := createProject(t, f, ProjectCreationInfo{Name: "Other"})

	if err := p.AddSourceFile("/src/a.cs"); err != nil {
		t.Fatalf("AddSourceFile() failed: %v", err)
	}
	if err := p.AddMetadataReference("/lib/x.dll", workspace.MetadataReferenceProperties{}); err != nil {
		t.Fatalf("AddMetadataReference() failed: %v", err)
	}
	if err := p.AddProjectReference(workspace.ProjectReference{ProjectID: other.ID()}); err != nil {
		t.Fatalf("AddProjectReference() failed: %v", err)
	}
	if err := p.AddAnalyzerReference("/analyzers/a.dll"); err != nil {
		t.Fatalf("AddAnalyzerReference() failed: %v", err)
	}
	version := store.CurrentSolution().Version()

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"duplicate source file", func() error { return p.AddSourceFile("/SRC/a.cs") }, ErrAlreadyAdded},
		{"missing source file", func() error { return p.RemoveSourceFile("/src/missing.cs") }, ErrNotFound},
		{"relative source file", func() error { return p.AddSourceFile("a.cs") }, ErrInvalidPath},
		{"duplicate metadata reference", func() error {
			return p.AddMetadataReference("/lib/x.dll", workspace.MetadataReferenceProperties{})
		}, ErrAlreadyAdded},
		{"missing metadata reference", func() error {
			return p.RemoveMetadataReference("/lib/x.dll", workspace.MetadataReferenceProperties{Aliases: []string{"y"}})
		}, ErrNotFound},
		{"duplicate project reference", func() error {
			return p.AddProjectReference(workspace.ProjectReference{ProjectID: other.ID()})
		}, ErrAlreadyAdded},
		{"self project reference", func() error {
			return p.AddProjectReference(workspace.ProjectReference{ProjectID: p.ID()})
		}, ErrSelfReference},
		{"circular project reference", func() error {
			return other.AddProjectReference(workspace.ProjectReference{ProjectID: p.ID()})
		}, ErrCircularReference},
		{"unknown project reference", func() error {
			return p.AddProjectReference(workspace.ProjectReference{ProjectID: workspace.NewProjectID()})
		}, ErrNotFound},
		{"duplicate analyzer", func() error { return p.AddAnalyzerReference("/analyzers/A.dll") }, ErrAlreadyAdded},
		{"missing analyzer", func() error { return p.RemoveAnalyzerReference("/analyzers/b.dll") }, ErrNotFound},
		{"incomplete reorder", func() error { return p.ReorderSourceFiles(nil) }, ErrInvalidOrder},
		{"unnamed build property", func() error { return p.SetBuildProperty("", "x") }, ErrInvalidProperty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !IsContractViolation(err) {
				t.Errorf("IsContractViolation(%v) = false", err)
			}
		})
	}

	if v := store.CurrentSolution().Version(); v != version {
		t.Errorf("failed calls changed the workspace (version %d -> %d)", version, v)
	}
}

// TestFactory_RetryUsesLastCommittedState simulates a concurrent writer during a batch change.
func TestFactory_RetryUsesLastCommittedState(t *testing.T) {
	f, store := newTestFactory(t)
	p := createProject(t, f, ProjectCreationInfo{Name: "App"})
	intruder := workspace.ProjectInfo{ID: workspace.NewProjectID(), Name: "Intruder", Language: workspace.LanguageCSharp}

	var seen []ProjectUpdateState
	err := f.ApplyBatchChange(context.Background(), func(acc *workspace.ChangeAccumulator, state ProjectUpdateState) ProjectUpdateState {
		seen = append(seen, state)
		if len(seen) == 1 {
			// A writer that does not go through the factory commits first.
			store.SetCurrentSolution(workspace.SolutionUpdate{
				Transform: func(old *workspace.Solution) *workspace.Solution { return old.AddProject(intruder) },
			})
		}
		return addOutputPath(acc, state, p.ID(), "/out/app.dll")
	}, nil)
	if err != nil {
		t.Fatalf("ApplyBatchChange() failed: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("change ran %d times, want 2", len(seen))
	}
	if diff := cmp.Diff(seen[0], seen[1], cmp.AllowUnexported(ProjectUpdateState{})); diff != "" {
		t.Errorf("retry saw a different starting state (-first +second):\n%s", diff)
	}

	state, _ := f.UpdateState(context.Background())
	if producers := state.ProjectsForOutputPath("/out/app.dll"); len(producers) != 1 {
		t.Errorf("output path registered %d times, want once", len(producers))
	}
	if !store.CurrentSolution().ContainsProject(intruder.ID) {
		t.Error("the concurrent writer's project was lost")
	}
}

// TestFactory_PropertyChangesInBatch verifies last-writer-wins for batched property edits.
func TestFactory_PropertyChangesInBatch(t *testing.T) {
	f, store := newTestFactory(t)
	p := createProject(t, f, ProjectCreationInfo{Name: "App", OutputFilePath: "/out/v1.dll"})
	c := createProject(t, f, ProjectCreationInfo{Name: "Consumer"})
	if err := c.AddMetadataReference("/out/v3.dll", workspace.MetadataReferenceProperties{}); err != nil {
		t.Fatalf("AddMetadataReference() failed: %v", err)
	}

	scope, _ := p.CreateBatchScope()
	for _, path := range []string{"/out/v2.dll", "/out/v3.dll"} {
		if err := p.SetOutputFilePath(path); err != nil {
			t.Fatalf("SetOutputFilePath() failed: %v", err)
		}
	}
	if err := p.SetAssemblyName("App.Core"); err != nil {
		t.Fatalf("SetAssemblyName() failed: %v", err)
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	ps := projectState(t, store, p)
	if ps.OutputFilePath() != "/out/v3.dll" || ps.AssemblyName() != "App.Core" {
		t.Errorf("project = %s/%s, want /out/v3.dll and App.Core", ps.OutputFilePath(), ps.AssemblyName())
	}
	state, _ := f.UpdateState(context.Background())
	for _, old := range []string{"/out/v1.dll", "/out/v2.dll"} {
		if producers := state.ProjectsForOutputPath(old); len(producers) != 0 {
			t.Errorf("stale output path %s still has producers %v", old, producers)
		}
	}
	if !hasProjectReference(projectState(t, store, c), p.ID()) {
		t.Error("consumer was not converted to the project's new output path")
	}
}

func TestFactory_ReorderSourceFiles(t *testing.T) {
	f, store := newTestFactory(t)
	p := createProject(t, f, ProjectCreationInfo{Name: "App"})

	scope, _ := p.CreateBatchScope()
	for _, path := range []string{"/src/a.cs", "/src/b.cs", "/src/c.cs"} {
		if err := p.AddSourceFile(path); err != nil {
			t.Fatalf("AddSourceFile() failed: %v", err)
		}
	}
	if err := p.ReorderSourceFiles([]string{"/src/c.cs", "/src/a.cs", "/src/b.cs"}); err != nil {
		t.Fatalf("ReorderSourceFiles() failed: %v", err)
	}
	scope.Close()

	var got []string
	for _, d := range projectState(t, store, p).Documents(workspace.KindSource) {
		got = append(got, d.FilePath)
	}
	want := []string{"/src/c.cs", "/src/a.cs", "/src/b.cs"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("document order mismatch (-want +got):\n%s", diff)
	}
}

type bufferContainer struct{ text string }

func (b *bufferContainer) CurrentText() string { return b.text }

func TestFactory_TextContainers(t *testing.T) {
	f, store := newTestFactory(t)
	p := createProject(t, f, ProjectCreationInfo{Name: "App"})
	buf := &bufferContainer{text: "class A {}"}

	id, err := p.AddSourceTextContainer(buf, "/src/A.cs")
	if err != nil {
		t.Fatalf("AddSourceTextContainer() failed: %v", err)
	}
	events := recordEvents(store)

	buf.text = "class A { int x; }"
	if err := p.NotifyTextChanged(buf); err != nil {
		t.Fatalf("NotifyTextChanged() failed: %v", err)
	}
	doc, ok := store.CurrentSolution().Document(id)
	if !ok || doc.Text != "class A { int x; }" {
		t.Errorf("document text = %q, want the container's text", doc.Text)
	}
	if got := events.take(t, store); len(got) != 1 || got[0].Kind != workspace.DocumentChanged || got[0].DocumentID != id {
		t.Errorf("events = %+v, want one document_changed", got)
	}

	if err := p.RemoveSourceTextContainer(buf); err != nil {
		t.Fatalf("RemoveSourceTextContainer() failed: %v", err)
	}
	if store.CurrentSolution().ContainsDocument(id) {
		t.Error("document still present after removing its container")
	}
	if err := p.NotifyTextChanged(buf); !errors.Is(err, ErrNotFound) {
		t.Errorf("NotifyTextChanged() after removal = %v, want ErrNotFound", err)
	}
}

func TestFactory_RemovedProject(t *testing.T) {
	f, store := newTestFactory(t)
	p := createProject(t, f, ProjectCreationInfo{Name: "App"})
	other := createProject(t, f, ProjectCreationInfo{Name: "Other"})
	if err := other.AddProjectReference(workspace.ProjectReference{ProjectID: p.ID()}); err != nil {
		t.Fatalf("AddProjectReference() failed: %v", err)
	}

	if err := p.RemoveFromWorkspace(context.Background()); err != nil {
		t.Fatalf("RemoveFromWorkspace() failed: %v", err)
	}
	if store.CurrentSolution().ContainsProject(p.ID()) {
		t.Fatal("project still in the workspace")
	}
	if refs := projectState(t, store, other).ProjectReferences(); len(refs) != 0 {
		t.Errorf("dangling project references %v", refs)
	}

	if err := p.AddSourceFile("/src/a.cs"); !errors.Is(err, ErrProjectRemoved) {
		t.Errorf("AddSourceFile() on removed project = %v, want ErrProjectRemoved", err)
	}
	if err := p.RemoveFromWorkspace(context.Background()); !errors.Is(err, ErrProjectRemoved) {
		t.Errorf("second RemoveFromWorkspace() = %v, want ErrProjectRemoved", err)
	}
}

func TestFactory_ProjectsByName(t *testing.T) {
	f, _ := newTestFactory(t)
	ctx := context.Background()

	net8 := createProject(t, f, ProjectCreationInfo{Name: "Lib"})
	net9 := createProject(t, f, ProjectCreationInfo{Name: "Lib"})
	createProject(t, f, ProjectCreationInfo{Name: "App"})

	got, err := f.ProjectsByName(ctx, "Lib")
	if err != nil {
		t.Fatalf("ProjectsByName() failed: %v", err)
	}
	if len(got) != 2 || got[0] != net8 || got[1] != net9 {
		t.Fatalf("ProjectsByName(Lib) = %v, want both targets", got)
	}

	if err := net8.RemoveFromWorkspace(ctx); err != nil {
		t.Fatalf("RemoveFromWorkspace() failed: %v", err)
	}
	got, _ = f.ProjectsByName(ctx, "Lib")
	if len(got) != 1 || got[0] != net9 {
		t.Errorf("ProjectsByName(Lib) after removal = %v, want the remaining target", got)
	}
}

func TestFactory_CloseSolution(t *testing.T) {
	f, store := newTestFactory(t)
	createProject(t, f, ProjectCreationInfo{Name: "A", OutputFilePath: "/out/a.dll"})
	c := createProject(t, f, ProjectCreationInfo{Name: "C"})
	if err := c.AddMetadataReference("/out/a.dll", workspace.MetadataReferenceProperties{}); err != nil {
		t.Fatalf("AddMetadataReference() failed: %v", err)
	}

	if err := f.CloseSolution(context.Background()); err != nil {
		t.Fatalf("CloseSolution() failed: %v", err)
	}
	if n := store.CurrentSolution().ProjectCount(); n != 0 {
		t.Errorf("%d projects left after CloseSolution()", n)
	}
	if !store.SolutionClosing() {
		t.Error("store not marked as closing")
	}
	projects, _ := f.Projects(context.Background())
	if len(projects) != 0 {
		t.Errorf("factory still tracks %d projects", len(projects))
	}
}

func TestFactory_HostAdjustsParseOptions(t *testing.T) {
	f, store := newTestFactory(t, WithHost(MaxLanguageVersionHost{}))
	p := createProject(t, f, ProjectCreationInfo{
		Name:            "App",
		ParseOptions:    workspace.ParseOptions{LanguageVersion: "12"},
		BuildProperties: map[string]string{MaxLanguageVersionProperty: "10"},
	})

	if got := projectState(t, store, p).ParseOptions().LanguageVersion; got != "10" {
		t.Fatalf("LanguageVersion = %q, want capped at 10", got)
	}

	if err := p.SetBuildProperty(MaxLanguageVersionProperty, ""); err != nil {
		t.Fatalf("SetBuildProperty() failed: %v", err)
	}
	if got := projectState(t, store, p).ParseOptions().LanguageVersion; got != "12" {
		t.Errorf("LanguageVersion = %q, want 12 once the cap is lifted", got)
	}

	if err := p.SetParseOptions(workspace.ParseOptions{LanguageVersion: "9"}); err != nil {
		t.Fatalf("SetParseOptions() failed: %v", err)
	}
	if got := projectState(t, store, p).ParseOptions().LanguageVersion; got != "9" {
		t.Errorf("LanguageVersion = %q, want 9", got)
	}
}

func TestFactory_MetadataReferenceWatches(t *testing.T) {
	osw := newFakeOSWatcher()
	reg := newTestRegistry(t, osw)
	f, store := newTestFactory(t, WithFileWatches(reg))
	ctx := context.Background()

	a := createProject(t, f, ProjectCreationInfo{Name: "A"})
	b := createProject(t, f, ProjectCreationInfo{Name: "B"})
	for _, p := range []*Project{a, b} {
		if err := p.AddMetadataReference("/lib/x.dll", workspace.MetadataReferenceProperties{}); err != nil {
			t.Fatalf("AddMetadataReference() failed: %v", err)
		}
	}
	if created, _ := osw.counts("/lib/x.dll"); created != 1 {
		t.Fatalf("OS watches created = %d, want 1 for a shared file", created)
	}

	if err := f.RefreshMetadataReferencesForFile(ctx, "/LIB/x.dll"); err != nil {
		t.Fatalf("RefreshMetadataReferencesForFile() failed: %v", err)
	}
	for _, p := range []*Project{a, b} {
		refs := projectState(t, store, p).MetadataReferences()
		if len(refs) != 1 || refs[0].Generation != 1 {
			t.Errorf("%s references = %+v, want one refreshed reference", p.Name(), refs)
		}
	}
	if created, closed := osw.counts("/lib/x.dll"); created != 1 || closed != 0 {
		t.Errorf("after refresh: created=%d closed=%d, want the watch kept", created, closed)
	}

	for _, p := range []*Project{a, b} {
		if err := p.RemoveMetadataReference("/lib/x.dll", workspace.MetadataReferenceProperties{}); err != nil {
			t.Fatalf("RemoveMetadataReference() failed: %v", err)
		}
	}
	if _, closed := osw.counts("/lib/x.dll"); closed != 1 {
		t.Errorf("OS watches closed = %d, want 1 once nothing references the file", closed)
	}
	if stats := reg.Stats(); stats.OSWatches != 0 || stats.Identities != 0 {
		t.Errorf("registry stats = %+v, want empty", stats)
	}
}

func TestFactory_ConvertedReferenceIsNotWatched(t *testing.T) {
	osw := newFakeOSWatcher()
	reg := newTestRegistry(t, osw)
	f, store := newTestFactory(t, WithFileWatches(reg))

	a := createProject(t, f, ProjectCreationInfo{Name: "A", OutputFilePath: "/out/a.dll"})
	c := createProject(t, f, ProjectCreationInfo{Name: "C"})
	if err := c.AddMetadataReference("/out/a.dll", workspace.MetadataReferenceProperties{}); err != nil {
		t.Fatalf("AddMetadataReference() failed: %v", err)
	}
	if !hasProjectReference(projectState(t, store, c), a.ID()) {
		t.Fatal("reference was not converted")
	}
	if created, _ := osw.counts("/out/a.dll"); created != 0 {
		t.Errorf("converted reference created %d OS watches", created)
	}

	// Removing the producer turns the reference back into a watched file.
	if err := a.RemoveFromWorkspace(context.Background()); err != nil {
		t.Fatalf("RemoveFromWorkspace() failed: %v", err)
	}
	if !hasMetadataReference(projectState(t, store, c), "/out/a.dll") {
		t.Fatal("reference was not reverted to a metadata reference")
	}
	if created, _ := osw.counts("/out/a.dll"); created != 1 {
		t.Errorf("reverted reference created %d OS watches, want 1", created)
	}
}

func TestFactory_ExplicitReferenceMatchingConversion(t *testing.T) {
	f, store := newTestFactory(t)
	a := createProject(t, f, ProjectCreationInfo{Name: "A", OutputFilePath: "/out/a.dll"})
	c := createProject(t, f, ProjectCreationInfo{Name: "C"})
	refA := workspace.ProjectReference{ProjectID: a.ID()}

	if err := c.AddMetadataReference("/out/a.dll", workspace.MetadataReferenceProperties{}); err != nil {
		t.Fatalf("AddMetadataReference() failed: %v", err)
	}
	if err := c.AddProjectReference(refA); !errors.Is(err, ErrAlreadyAdded) {
		t.Fatalf("AddProjectReference() over a converted reference = %v, want ErrAlreadyAdded", err)
	}

	if err := c.RemoveMetadataReference("/out/a.dll", workspace.MetadataReferenceProperties{}); err != nil {
		t.Fatalf("RemoveMetadataReference() failed: %v", err)
	}
	if s := projectState(t, store, c); len(s.ProjectReferences()) != 0 {
		t.Errorf("project references = %+v, want none", s.ProjectReferences())
	}
	if err := c.RemoveProjectReference(refA); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveProjectReference() = %v, want ErrNotFound", err)
	}

	// Both kinds of reference in one batch: the explicit one wins and the
	// file reference stays a metadata reference.
	scope, err := c.CreateBatchScope()
	if err != nil {
		t.Fatalf("CreateBatchScope() failed: %v", err)
	}
	if err := c.AddMetadataReference("/out/a.dll", workspace.MetadataReferenceProperties{}); err != nil {
		t.Fatalf("AddMetadataReference() failed: %v", err)
	}
	if err := c.AddProjectReference(refA); err != nil {
		t.Fatalf("AddProjectReference() failed: %v", err)
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	state := projectState(t, store, c)
	if !hasProjectReference(state, a.ID()) || !hasMetadataReference(state, "/out/a.dll") {
		t.Fatalf("references = %+v / %+v, want both kinds", state.ProjectReferences(), state.MetadataReferences())
	}

	// Dropping the explicit reference leaves the metadata reference alone.
	if err := c.RemoveProjectReference(refA); err != nil {
		t.Fatalf("RemoveProjectReference() failed: %v", err)
	}
	state = projectState(t, store, c)
	if hasProjectReference(state, a.ID()) || !hasMetadataReference(state, "/out/a.dll") {
		t.Errorf("references = %+v / %+v, want only the metadata reference", state.ProjectReferences(), state.MetadataReferences())
	}
}

func TestFactory_ExplicitReferenceReplacesConversionInBatch(t *testing.T) {
	f, store := newTestFactory(t)
	a := createProject(t, f, ProjectCreationInfo{Name: "A", OutputFilePath: "/out/a.dll"})
	c := createProject(t, f, ProjectCreationInfo{Name: "C"})
	if err := c.AddMetadataReference("/out/a.dll", workspace.MetadataReferenceProperties{}); err != nil {
		t.Fatalf("AddMetadataReference() failed: %v", err)
	}

	scope, err := c.CreateBatchScope()
	if err != nil {
		t.Fatalf("CreateBatchScope() failed: %v", err)
	}
	if err := c.RemoveMetadataReference("/out/a.dll", workspace.MetadataReferenceProperties{}); err != nil {
		t.Fatalf("RemoveMetadataReference() failed: %v", err)
	}
	if err := c.AddProjectReference(workspace.ProjectReference{ProjectID: a.ID()}); err != nil {
		t.Fatalf("AddProjectReference() after releasing the conversion failed: %v", err)
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if !hasProjectReference(projectState(t, store, c), a.ID()) {
		t.Fatal("explicit project reference is missing")
	}
	updateState, err := f.UpdateState(context.Background())
	if err != nil {
		t.Fatalf("UpdateState() failed: %v", err)
	}
	if n := len(updateState.ReferenceInfo(c.ID()).ConvertedProjectReferences); n != 0 {
		t.Errorf("%d conversions left, want 0", n)
	}
}

func TestFactory_ExplicitReferenceCannotCloseCycle(t *testing.T) {
	f, store := newTestFactory(t)
	a := createProject(t, f, ProjectCreationInfo{Name: "A", OutputFilePath: "/out/a.dll"})
	c := createProject(t, f, ProjectCreationInfo{Name: "C"})
	if err := c.AddMetadataReference("/out/a.dll", workspace.MetadataReferenceProperties{}); err != nil {
		t.Fatalf("AddMetadataReference() failed: %v", err)
	}
	version := store.CurrentSolution().Version()

	err := a.AddProjectReference(workspace.ProjectReference{ProjectID: c.ID()})
	if !errors.Is(err, ErrCircularReference) {
		t.Fatalf("AddProjectReference() = %v, want ErrCircularReference", err)
	}
	sol := store.CurrentSolution()
	if sol.DependsOnTransitively(a.ID(), c.ID()) {
		t.Error("A depends on C after a rejected reference")
	}
	if sol.Version() != version {
		t.Errorf("version = %d, want %d", sol.Version(), version)
	}
}
