package projectsystem

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/steveyegge/projsync/internal/filewatch"
	"github.com/steveyegge/projsync/internal/workspace"
)

// BatchChange is a transform over the running solution and the factory's
// bookkeeping. It must be pure: it may run several times, each time against
// the last committed ProjectUpdateState.
type BatchChange func(acc *workspace.ChangeAccumulator, state ProjectUpdateState) ProjectUpdateState

// ProjectCreationInfo describes a project to create.
type ProjectCreationInfo struct {
	// Name is the project-system name. Several projects may share one, for
	// example the target frameworks of a multi-targeted project.
	Name              string
	AssemblyName      string
	Language          string
	FilePath          string
	OutputFilePath    string
	OutputRefFilePath string

	CompilationOptions workspace.CompilationOptions
	ParseOptions       workspace.ParseOptions
	BuildProperties    map[string]string
}

// Factory creates projects and serializes every change they make to the
// workspace.
type Factory struct {
	store                *workspace.Store
	host                 Host
	watches              *filewatch.Registry
	providers            []DynamicFileInfoProvider
	dynamicFilesDebounce time.Duration
	logger               *log.Logger

	// gate is FIFO and guards everything below.
	gate           *semaphore.Weighted
	state          ProjectUpdateState
	projects       map[workspace.ProjectID]*Project
	projectsByName map[string][]*Project
}

// FactoryOption configures the factory
type FactoryOption func(*Factory)

// WithHost sets the host that adjusts project options.
func WithHost(h Host) FactoryOption {
	return func(f *Factory) {
		if h != nil {
			f.host = h
		}
	}
}

// WithFileWatches makes the factory watch metadata reference files through
// registry and refresh references when they change.
func WithFileWatches(registry *filewatch.Registry) FactoryOption {
	return func(f *Factory) {
		f.watches = registry
	}
}

// WithDynamicFileProviders registers providers for dynamic source files.
// Providers are consulted in order. They must be comparable, typically
// pointers.
func WithDynamicFileProviders(providers ...DynamicFileInfoProvider) FactoryOption {
	return func(f *Factory) {
		f.providers = append(f.providers, providers...)
	}
}

// WithDynamicFilesDebounce sets the quiet period before refreshed dynamic
// files are applied.
func WithDynamicFilesDebounce(d time.Duration) FactoryOption {
	return func(f *Factory) {
		f.dynamicFilesDebounce = d
	}
}

// WithLogger sets the factory's logger.
func WithLogger(logger *log.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFactory creates a factory that keeps store in sync.
func NewFactory(store *workspace.Store, opts ...FactoryOption) *Factory {
	f := &Factory{
		store:                store,
		host:                 DefaultHost{},
		dynamicFilesDebounce: 200 * time.Millisecond,
		logger:               log.New(os.Stderr, "[factory] ", log.LstdFlags),
		gate:                 semaphore.NewWeighted(1),
		state:                NewProjectUpdateState(),
		projects:             make(map[workspace.ProjectID]*Project),
		projectsByName:       make(map[string][]*Project),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.watches != nil {
		f.watches.Subscribe(func(path string) {
			if err := f.RefreshMetadataReferencesForFile(context.Background(), path); err != nil {
				f.logger.Printf("failed to refresh references to %s: %v", path, err)
			}
		})
	}
	return f
}

// Store returns the store the factory writes to.
func (f *Factory) Store() *workspace.Store {
	return f.store
}

func (f *Factory) acquire(ctx context.Context) error {
	if err := f.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire project system gate: %w", err)
	}
	return nil
}

func (f *Factory) release() {
	f.gate.Release(1)
}

// CreateAndAddToWorkspace creates a project and adds it to the workspace.
func (f *Factory) CreateAndAddToWorkspace(ctx context.Context, info ProjectCreationInfo) (*Project, error) {
	if !f.store.Languages().Contains(info.Language) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, info.Language)
	}
	for _, path := range []string{info.FilePath, info.OutputFilePath, info.OutputRefFilePath} {
		if path != "" && !filepath.IsAbs(path) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}

	p := newProject(f, workspace.NewProjectID(), info)

	if err := f.acquire(ctx); err != nil {
		return nil, err
	}
	defer f.release()

	projectInfo := workspace.ProjectInfo{
		ID:                 p.id,
		Name:               info.Name,
		AssemblyName:       info.AssemblyName,
		Language:           info.Language,
		FilePath:           info.FilePath,
		OutputFilePath:     info.OutputFilePath,
		OutputRefFilePath:  info.OutputRefFilePath,
		CompilationOptions: f.host.CompilationOptions(p.hostProjectLocked(), info.CompilationOptions),
		ParseOptions:       f.host.ParseOptions(p.hostProjectLocked(), info.ParseOptions),
	}
	f.applyBatchChangeLocked(func(acc *workspace.ChangeAccumulator, state ProjectUpdateState) ProjectUpdateState {
		acc.ApplyProjectAdded(p.id, acc.Solution().AddProject(projectInfo))
		for _, out := range []string{projectInfo.OutputFilePath, projectInfo.OutputRefFilePath} {
			if out != "" {
				state = addOutputPath(acc, state, p.id, out)
			}
		}
		return state
	}, nil)

	f.projects[p.id] = p
	f.projectsByName[info.Name] = append(f.projectsByName[info.Name], p)
	return p, nil
}

// ApplyBatchChange runs change as one transform against the workspace.
// onAfterUpdate, if set, runs under the store's commit lock once the change
// is committed.
func (f *Factory) ApplyBatchChange(ctx context.Context, change BatchChange, onAfterUpdate func(old, new *workspace.Solution)) error {
	if err := f.acquire(ctx); err != nil {
		return err
	}
	defer f.release()
	f.applyBatchChangeLocked(change, onAfterUpdate)
	return nil
}

// ApplyChangeToWorkspace runs a change that needs none of the factory's
// bookkeeping.
func (f *Factory) ApplyChangeToWorkspace(ctx context.Context, change func(acc *workspace.ChangeAccumulator)) error {
	return f.ApplyBatchChange(ctx, func(acc *workspace.ChangeAccumulator, state ProjectUpdateState) ProjectUpdateState {
		change(acc)
		return state
	}, nil)
}

// applyBatchChangeLocked submits change to the store, then commits the
// resulting bookkeeping and synchronizes watches. The caller holds the gate.
func (f *Factory) applyBatchChangeLocked(change BatchChange, onAfterUpdate func(old, new *workspace.Solution)) bool {
	var next ProjectUpdateState
	update := workspace.AccumulatedUpdate(func(acc *workspace.ChangeAccumulator) {
		transformAttemptsTotal.Inc()
		// Always start from the last committed state, never from a
		// previous attempt's result.
		next = change(acc, f.state)
	})
	update.OnAfterUpdate = onAfterUpdate

	applied, _ := f.store.SetCurrentSolution(update)
	if applied {
		transformsTotal.WithLabelValues("applied").Inc()
	} else {
		transformsTotal.WithLabelValues("noop").Inc()
	}

	// Bookkeeping can change without the solution changing, for instance
	// when a project declares an output path nobody references yet.
	f.state = next
	referenceConversionsTotal.WithLabelValues("to_project").Add(float64(next.convertedToProject))
	referenceConversionsTotal.WithLabelValues("to_metadata").Add(float64(next.revertedToMetadata))
	f.syncWatchesLocked()
	f.state = f.state.ClearIncrementalState()
	return applied
}

// watchID is the registry identity of a metadata reference. Equal references
// share an identity, so the registry refcounts them.
func watchID(ref workspace.MetadataReference) string {
	return ref.FilePath + "|" + ref.Properties.Key() + "|" + strconv.Itoa(ref.Generation)
}

// syncWatchesLocked starts watches for references that entered the solution
// and stops those for references that left it. Adds go first, so a refreshed
// reference keeps the OS watch of the one it replaces.
func (f *Factory) syncWatchesLocked() {
	if f.watches == nil {
		return
	}
	for _, ref := range f.state.addedReferences {
		if err := f.watches.StartWatching(watchID(ref), ref.FilePath); err != nil {
			f.logger.Printf("failed to watch %s: %v", ref.FilePath, err)
		}
	}
	for _, ref := range f.state.removedReferences {
		if err := f.watches.StopWatching(watchID(ref)); err != nil {
			f.logger.Printf("failed to release watch on %s: %v", ref.FilePath, err)
		}
	}
	activeWatches.Set(float64(f.watches.Stats().OSWatches))
}

// RefreshMetadataReferencesForFile replaces every metadata reference to path
// with a fresh one, so consumers reload the file.
func (f *Factory) RefreshMetadataReferencesForFile(ctx context.Context, path string) error {
	if err := f.acquire(ctx); err != nil {
		return err
	}
	defer f.release()

	referenceRefreshesTotal.Inc()
	f.applyBatchChangeLocked(func(acc *workspace.ChangeAccumulator, state ProjectUpdateState) ProjectUpdateState {
		for _, id := range acc.Solution().ProjectIDs() {
			project, _ := acc.Solution().Project(id)
			for _, ref := range project.MetadataReferences() {
				if !pathsEqual(ref.FilePath, path) {
					continue
				}
				fresh := ref.Refreshed()
				next := acc.Solution().
					RemoveMetadataReference(id, ref).
					AddMetadataReference(id, fresh)
				acc.ApplyProjectChange(id, next)
				state = state.
					WithIncrementalMetadataReferencesRemoved(ref).
					WithIncrementalMetadataReferenceAdded(fresh)
			}
		}
		return state
	}, nil)
	return nil
}

// removeProjectLocked takes p out of the workspace and drops every trace of
// it from the bookkeeping.
func (f *Factory) removeProjectLocked(p *Project) {
	closing := f.store.SolutionClosing()
	f.applyBatchChangeLocked(func(acc *workspace.ChangeAccumulator, state ProjectUpdateState) ProjectUpdateState {
		for _, out := range state.ReferenceInfo(p.id).OutputPaths {
			state = removeOutputPath(acc, state, p.id, out, closing)
		}
		state = state.WithoutProject(p.id)

		if project, ok := acc.Solution().Project(p.id); ok {
			state = state.WithIncrementalMetadataReferencesRemoved(project.MetadataReferences()...)
			acc.ApplyProjectRemoved(p.id, acc.Solution().RemoveProject(p.id))
		}
		return state
	}, nil)

	delete(f.projects, p.id)
	named := slices.DeleteFunc(slices.Clone(f.projectsByName[p.projectSystemName]), func(other *Project) bool {
		return other == p
	})
	if len(named) == 0 {
		delete(f.projectsByName, p.projectSystemName)
	} else {
		f.projectsByName[p.projectSystemName] = named
	}
}

// ProjectsByName returns the live projects created under a project-system
// name, in creation order.
func (f *Factory) ProjectsByName(ctx context.Context, name string) ([]*Project, error) {
	if err := f.acquire(ctx); err != nil {
		return nil, err
	}
	defer f.release()
	return slices.Clone(f.projectsByName[name]), nil
}

// Projects returns every live project.
func (f *Factory) Projects(ctx context.Context) ([]*Project, error) {
	if err := f.acquire(ctx); err != nil {
		return nil, err
	}
	defer f.release()
	return f.projectsLocked(), nil
}

func (f *Factory) projectsLocked() []*Project {
	out := make([]*Project, 0, len(f.projects))
	for _, id := range f.store.CurrentSolution().ProjectIDs() {
		if p, ok := f.projects[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// UpdateState returns the last committed bookkeeping.
func (f *Factory) UpdateState(ctx context.Context) (ProjectUpdateState, error) {
	if err := f.acquire(ctx); err != nil {
		return ProjectUpdateState{}, err
	}
	defer f.release()
	return f.state, nil
}

// CloseSolution removes every project. Conversions are not reverted on the
// way out since nothing will read them again.
func (f *Factory) CloseSolution(ctx context.Context) error {
	f.store.MarkSolutionClosing()

	projects, err := f.Projects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if err := p.RemoveFromWorkspace(ctx); err != nil && !IsContractViolation(err) {
			return fmt.Errorf("failed to remove project %s: %w", p.Name(), err)
		}
	}
	return nil
}
