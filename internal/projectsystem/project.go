package projectsystem

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/steveyegge/projsync/internal/workspace"
)

// propertyChange is a deferred property update. It reads the old value from
// the running solution, never from a cache, so it stays correct when the
// transform is retried.
type propertyChange func(acc *workspace.ChangeAccumulator, state ProjectUpdateState, solutionClosing bool) ProjectUpdateState

type metadataReferenceKey struct {
	path       string
	properties workspace.MetadataReferenceProperties
}

func (k metadataReferenceKey) matches(other metadataReferenceKey) bool {
	return pathsEqual(k.path, other.path) && k.properties.Equal(other.properties)
}

// Project is the project system's handle on one project in the workspace.
// All methods are safe for concurrent use; they are serialized by the
// factory's gate.
type Project struct {
	f                 *Factory
	id                workspace.ProjectID
	language          string
	projectSystemName string

	// Everything below is guarded by the factory gate.
	removed     bool
	batchScopes int

	displayName        string
	assemblyName       string
	filePath           string
	outputFilePath     string
	outputRefFilePath  string
	compilationOptions workspace.CompilationOptions
	parseOptions       workspace.ParseOptions
	buildProperties    map[string]string

	sourceFiles         *documentCollection
	additionalFiles     *documentCollection
	analyzerConfigFiles *documentCollection

	// metadataReferences, projectReferences and analyzerReferences include
	// edits that are still pending in the batch.
	metadataReferences        []metadataReferenceKey
	metadataReferencesAdded   []metadataReferenceKey
	metadataReferencesRemoved []metadataReferenceKey

	projectReferences        []workspace.ProjectReference
	projectReferencesAdded   []workspace.ProjectReference
	projectReferencesRemoved []workspace.ProjectReference

	analyzerReferences        []string
	analyzerReferencesAdded   []workspace.AnalyzerReference
	analyzerReferencesRemoved []workspace.AnalyzerReference

	propertyChanges []propertyChange

	dynamicFiles        map[string]*dynamicFile
	dynamicRefresh      *workQueue[dynamicFileUpdate]
	subscribedProviders []DynamicFileInfoProvider
	unsubscribes        []func()
}

func newProject(f *Factory, id workspace.ProjectID, info ProjectCreationInfo) *Project {
	p := &Project{
		f:                   f,
		id:                  id,
		language:            info.Language,
		projectSystemName:   info.Name,
		displayName:         info.Name,
		assemblyName:        info.AssemblyName,
		filePath:            info.FilePath,
		outputFilePath:      info.OutputFilePath,
		outputRefFilePath:   info.OutputRefFilePath,
		compilationOptions:  info.CompilationOptions,
		parseOptions:        info.ParseOptions,
		buildProperties:     maps.Clone(info.BuildProperties),
		sourceFiles:         newDocumentCollection(id, workspace.KindSource),
		additionalFiles:     newDocumentCollection(id, workspace.KindAdditional),
		analyzerConfigFiles: newDocumentCollection(id, workspace.KindAnalyzerConfig),
		dynamicFiles:        make(map[string]*dynamicFile),
	}
	p.dynamicRefresh = newWorkQueue(f.dynamicFilesDebounce, p.refreshDynamicFiles)
	return p
}

// ID returns the project's id in the workspace.
func (p *Project) ID() workspace.ProjectID { return p.id }

// Name returns the project-system name the project was created under.
func (p *Project) Name() string { return p.projectSystemName }

// Language returns the project's language.
func (p *Project) Language() string { return p.language }

func validatePath(path string) error {
	if path == "" || !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}

// withGate runs fn holding the factory gate, unless the project has been
// removed.
func (p *Project) withGate(ctx context.Context, fn func() error) error {
	if err := p.f.acquire(ctx); err != nil {
		return err
	}
	defer p.f.release()
	if p.removed {
		return fmt.Errorf("%w: %s", ErrProjectRemoved, p.projectSystemName)
	}
	return fn()
}

func (p *Project) hostProjectLocked() HostProject {
	return HostProject{
		ID:              p.id,
		Language:        p.language,
		BuildProperties: maps.Clone(p.buildProperties),
	}
}

// BatchScope defers a project's edits until it is closed. Scopes nest; the
// edits are submitted when the last open scope closes.
type BatchScope struct {
	p      *Project
	closed atomic.Bool
}

// CreateBatchScope opens a batch scope.
func (p *Project) CreateBatchScope() (*BatchScope, error) {
	return p.CreateBatchScopeContext(context.Background())
}

// CreateBatchScopeContext opens a batch scope, waiting for the gate until
// ctx is done.
func (p *Project) CreateBatchScopeContext(ctx context.Context) (*BatchScope, error) {
	err := p.withGate(ctx, func() error {
		p.batchScopes++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BatchScope{p: p}, nil
}

// Close closes the scope, flushing the batch if it was the last one open.
func (s *BatchScope) Close() error {
	return s.CloseContext(context.Background())
}

// CloseContext is Close, waiting for the gate until ctx is done.
func (s *BatchScope) CloseContext(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrScopeClosed
	}
	p := s.p
	if err := p.f.acquire(ctx); err != nil {
		s.closed.Store(false)
		return err
	}
	defer p.f.release()

	if p.removed {
		return nil
	}
	p.batchScopes--
	if p.batchScopes == 0 {
		p.flushLocked()
	}
	return nil
}

func (p *Project) flushIfIdleLocked() {
	if p.batchScopes == 0 {
		p.flushLocked()
	}
}

// projectBatch is everything a project has pending, detached from the
// project so that the transform built from it is pure.
type projectBatch struct {
	projectID workspace.ProjectID
	documents []documentBatch

	metadataReferencesRemoved []metadataReferenceKey
	metadataReferencesAdded   []metadataReferenceKey
	projectReferencesRemoved  []workspace.ProjectReference
	projectReferencesAdded    []workspace.ProjectReference
	analyzerReferencesRemoved []workspace.AnalyzerReference
	analyzerReferencesAdded   []workspace.AnalyzerReference
	propertyChanges           []propertyChange
	solutionClosing           bool
}

func (b *projectBatch) empty() bool {
	for _, d := range b.documents {
		if !d.empty() {
			return false
		}
	}
	return len(b.metadataReferencesRemoved) == 0 &&
		len(b.metadataReferencesAdded) == 0 &&
		len(b.projectReferencesRemoved) == 0 &&
		len(b.projectReferencesAdded) == 0 &&
		len(b.analyzerReferencesRemoved) == 0 &&
		len(b.analyzerReferencesAdded) == 0 &&
		len(b.propertyChanges) == 0
}

func (p *Project) takeBatchLocked() *projectBatch {
	b := &projectBatch{
		projectID: p.id,
		documents: []documentBatch{
			p.sourceFiles.take(),
			p.additionalFiles.take(),
			p.analyzerConfigFiles.take(),
		},
		metadataReferencesRemoved: p.metadataReferencesRemoved,
		metadataReferencesAdded:   p.metadataReferencesAdded,
		projectReferencesRemoved:  p.projectReferencesRemoved,
		projectReferencesAdded:    p.projectReferencesAdded,
		analyzerReferencesRemoved: p.analyzerReferencesRemoved,
		analyzerReferencesAdded:   p.analyzerReferencesAdded,
		propertyChanges:           p.propertyChanges,
		solutionClosing:           p.f.store.SolutionClosing(),
	}
	p.metadataReferencesRemoved = nil
	p.metadataReferencesAdded = nil
	p.projectReferencesRemoved = nil
	p.projectReferencesAdded = nil
	p.analyzerReferencesRemoved = nil
	p.analyzerReferencesAdded = nil
	p.propertyChanges = nil
	return b
}

// flushLocked submits everything pending as one transform.
func (p *Project) flushLocked() {
	batch := p.takeBatchLocked()
	if batch.empty() {
		return
	}
	p.f.applyBatchChangeLocked(batch.apply, nil)
}

// apply folds the batch into acc: documents first, then metadata reference
// removals, project references, metadata reference additions, analyzer
// references and finally property changes.
func (b *projectBatch) apply(acc *workspace.ChangeAccumulator, state ProjectUpdateState) ProjectUpdateState {
	id := b.projectID
	if !acc.Solution().ContainsProject(id) {
		return state
	}

	for _, docs := range b.documents {
		docs.apply(id, acc)
	}

	for _, key := range b.metadataReferencesRemoved {
		if projectRef, next, ok := tryRemoveConvertedProjectReference(state, id, key.path, key.properties); ok {
			state = next
			acc.ApplyProjectChange(id, acc.Solution().RemoveProjectReference(id, projectRef))
			continue
		}
		project, _ := acc.Solution().Project(id)
		for _, ref := range project.MetadataReferences() {
			if pathsEqual(ref.FilePath, key.path) && ref.Properties.Equal(key.properties) {
				state = state.WithIncrementalMetadataReferencesRemoved(ref)
				acc.ApplyProjectChange(id, acc.Solution().RemoveMetadataReference(id, ref))
				break
			}
		}
	}

	for _, ref := range b.projectReferencesRemoved {
		acc.ApplyProjectChange(id, acc.Solution().RemoveProjectReference(id, ref))
	}
	var toAdd []workspace.ProjectReference
	for _, ref := range b.projectReferencesAdded {
		// The target may have left the workspace since the call, or a
		// conversion may already have produced the same reference.
		if !acc.Solution().ContainsProject(ref.ProjectID) || containsProjectReference(acc.Solution(), id, ref) {
			continue
		}
		toAdd = append(toAdd, ref)
	}
	if len(toAdd) > 0 {
		acc.ApplyProjectChange(id, acc.Solution().AddProjectReferences(id, toAdd))
	}

	// Explicit project references go first, so a new metadata reference
	// to the same project stays a metadata reference.
	for _, key := range b.metadataReferencesAdded {
		if projectRef, next, ok := tryCreateConvertedProjectReference(acc.Solution(), state, id, key.path, key.properties); ok {
			state = next
			acc.ApplyProjectChange(id, acc.Solution().AddProjectReference(id, projectRef))
			continue
		}
		ref := workspace.NewMetadataReference(key.path, key.properties)
		state = state.WithIncrementalMetadataReferenceAdded(ref)
		acc.ApplyProjectChange(id, acc.Solution().AddMetadataReference(id, ref))
	}

	for _, ref := range b.analyzerReferencesRemoved {
		acc.ApplyProjectChange(id, acc.Solution().RemoveAnalyzerReference(id, ref))
	}
	for _, ref := range b.analyzerReferencesAdded {
		acc.ApplyProjectChange(id, acc.Solution().AddAnalyzerReference(id, ref))
	}

	for _, change := range b.propertyChanges {
		state = change(acc, state, b.solutionClosing)
	}
	return state
}

// AddSourceFile adds a source document for path.
func (p *Project) AddSourceFile(path string, folders ...string) error {
	return p.addFile(p.sourceFiles, path, folders)
}

// RemoveSourceFile removes the source document for path.
func (p *Project) RemoveSourceFile(path string) error {
	return p.removeFile(p.sourceFiles, path)
}

// AddAdditionalFile adds an additional document for path.
func (p *Project) AddAdditionalFile(path string, folders ...string) error {
	return p.addFile(p.additionalFiles, path, folders)
}

// RemoveAdditionalFile removes the additional document for path.
func (p *Project) RemoveAdditionalFile(path string) error {
	return p.removeFile(p.additionalFiles, path)
}

// AddAnalyzerConfigFile adds an analyzer config document for path.
func (p *Project) AddAnalyzerConfigFile(path string) error {
	return p.addFile(p.analyzerConfigFiles, path, nil)
}

// RemoveAnalyzerConfigFile removes the analyzer config document for path.
func (p *Project) RemoveAnalyzerConfigFile(path string) error {
	return p.removeFile(p.analyzerConfigFiles, path)
}

// ContainsSourceFile reports whether the project has, or is about to have, a
// source document for path.
func (p *Project) ContainsSourceFile(path string) bool {
	var ok bool
	_ = p.withGate(context.Background(), func() error {
		ok = p.sourceFiles.contains(path)
		return nil
	})
	return ok
}

func (p *Project) addFile(c *documentCollection, path string, folders []string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	return p.withGate(context.Background(), func() error {
		if _, err := c.addFile(path, folders, false, ""); err != nil {
			return err
		}
		p.flushIfIdleLocked()
		return nil
	})
}

func (p *Project) removeFile(c *documentCollection, path string) error {
	return p.withGate(context.Background(), func() error {
		if err := c.removeFile(path); err != nil {
			return err
		}
		p.flushIfIdleLocked()
		return nil
	})
}

// ReorderSourceFiles sets the order of the project's source documents. paths
// must name every source file exactly once.
func (p *Project) ReorderSourceFiles(paths []string) error {
	return p.withGate(context.Background(), func() error {
		if err := p.sourceFiles.reorder(paths); err != nil {
			return err
		}
		p.flushIfIdleLocked()
		return nil
	})
}

// AddSourceTextContainer adds a source document for path whose text comes
// from container.
func (p *Project) AddSourceTextContainer(container TextContainer, path string, folders ...string) (workspace.DocumentID, error) {
	if err := validatePath(path); err != nil {
		return workspace.DocumentID{}, err
	}
	var id workspace.DocumentID
	err := p.withGate(context.Background(), func() error {
		var err error
		if id, err = p.sourceFiles.addTextContainer(container, path, folders); err != nil {
			return err
		}
		p.flushIfIdleLocked()
		return nil
	})
	return id, err
}

// RemoveSourceTextContainer removes the document backed by container.
func (p *Project) RemoveSourceTextContainer(container TextContainer) error {
	return p.withGate(context.Background(), func() error {
		if err := p.sourceFiles.removeTextContainer(container); err != nil {
			return err
		}
		p.flushIfIdleLocked()
		return nil
	})
}

// NotifyTextChanged pushes the current text of container to its document.
func (p *Project) NotifyTextChanged(container TextContainer) error {
	return p.withGate(context.Background(), func() error {
		id, ok := p.sourceFiles.containerDocument(container)
		if !ok {
			return fmt.Errorf("%w: text container", ErrNotFound)
		}
		p.sourceFiles.updateText(id, container.CurrentText())
		p.flushIfIdleLocked()
		return nil
	})
}

// AddMetadataReference adds a reference to the binary at path. If exactly
// one project in the workspace produces path, a project reference to it is
// added instead.
func (p *Project) AddMetadataReference(path string, properties workspace.MetadataReferenceProperties) error {
	if err := validatePath(path); err != nil {
		return err
	}
	key := metadataReferenceKey{path: path, properties: workspace.MetadataReferenceProperties{
		Aliases:           slices.Clone(properties.Aliases),
		EmbedInteropTypes: properties.EmbedInteropTypes,
	}}
	return p.withGate(context.Background(), func() error {
		if slices.ContainsFunc(p.metadataReferences, key.matches) {
			return fmt.Errorf("%w: metadata reference %s", ErrAlreadyAdded, path)
		}
		p.metadataReferences = append(p.metadataReferences, key)
		if i := slices.IndexFunc(p.metadataReferencesRemoved, key.matches); i >= 0 {
			p.metadataReferencesRemoved = slices.Delete(p.metadataReferencesRemoved, i, i+1)
		} else {
			p.metadataReferencesAdded = append(p.metadataReferencesAdded, key)
		}
		p.flushIfIdleLocked()
		return nil
	})
}

// RemoveMetadataReference removes a reference previously added with the same
// path and properties.
func (p *Project) RemoveMetadataReference(path string, properties workspace.MetadataReferenceProperties) error {
	key := metadataReferenceKey{path: path, properties: properties}
	return p.withGate(context.Background(), func() error {
		i := slices.IndexFunc(p.metadataReferences, key.matches)
		if i < 0 {
			return fmt.Errorf("%w: metadata reference %s", ErrNotFound, path)
		}
		stored := p.metadataReferences[i]
		p.metadataReferences = slices.Delete(p.metadataReferences, i, i+1)
		if j := slices.IndexFunc(p.metadataReferencesAdded, key.matches); j >= 0 {
			p.metadataReferencesAdded = slices.Delete(p.metadataReferencesAdded, j, j+1)
		} else {
			p.metadataReferencesRemoved = append(p.metadataReferencesRemoved, stored)
		}
		p.flushIfIdleLocked()
		return nil
	})
}

// AddProjectReference adds a reference to another project in the workspace.
func (p *Project) AddProjectReference(ref workspace.ProjectReference) error {
	if ref.ProjectID == p.id {
		return fmt.Errorf("%w: %s", ErrSelfReference, p.projectSystemName)
	}
	return p.withGate(context.Background(), func() error {
		if !p.f.store.CurrentSolution().ContainsProject(ref.ProjectID) {
			return fmt.Errorf("%w: referenced project %s", ErrNotFound, ref.ProjectID)
		}
		if slices.ContainsFunc(p.projectReferences, ref.Equal) || p.heldByConversionLocked(ref) {
			return fmt.Errorf("%w: project reference to %s", ErrAlreadyAdded, ref.ProjectID)
		}
		if p.f.store.CurrentSolution().DependsOnTransitively(ref.ProjectID, p.id) {
			return fmt.Errorf("%w: %s already depends on %s", ErrCircularReference, ref.ProjectID, p.projectSystemName)
		}
		p.projectReferences = append(p.projectReferences, ref)
		if i := slices.IndexFunc(p.projectReferencesRemoved, ref.Equal); i >= 0 {
			p.projectReferencesRemoved = slices.Delete(p.projectReferencesRemoved, i, i+1)
		} else {
			p.projectReferencesAdded = append(p.projectReferencesAdded, ref)
		}
		p.flushIfIdleLocked()
		return nil
	})
}

// heldByConversionLocked reports whether ref stands in for one of p's
// metadata references and is not about to be released by the batch.
func (p *Project) heldByConversionLocked(ref workspace.ProjectReference) bool {
	for _, converted := range p.f.state.ReferenceInfo(p.id).ConvertedProjectReferences {
		if !converted.ProjectReference.Equal(ref) {
			continue
		}
		key := metadataReferenceKey{path: converted.Path, properties: ref.Properties()}
		if !slices.ContainsFunc(p.metadataReferencesRemoved, key.matches) {
			return true
		}
	}
	return false
}

// RemoveProjectReference removes a reference added with AddProjectReference.
func (p *Project) RemoveProjectReference(ref workspace.ProjectReference) error {
	return p.withGate(context.Background(), func() error {
		i := slices.IndexFunc(p.projectReferences, ref.Equal)
		if i < 0 {
			return fmt.Errorf("%w: project reference to %s", ErrNotFound, ref.ProjectID)
		}
		p.projectReferences = slices.Delete(p.projectReferences, i, i+1)
		if j := slices.IndexFunc(p.projectReferencesAdded, ref.Equal); j >= 0 {
			p.projectReferencesAdded = slices.Delete(p.projectReferencesAdded, j, j+1)
		} else {
			p.projectReferencesRemoved = append(p.projectReferencesRemoved, ref)
		}
		p.flushIfIdleLocked()
		return nil
	})
}

// AddAnalyzerReference adds the analyzer assembly at path.
func (p *Project) AddAnalyzerReference(path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	return p.withGate(context.Background(), func() error {
		if slices.ContainsFunc(p.analyzerReferences, func(other string) bool { return pathsEqual(other, path) }) {
			return fmt.Errorf("%w: analyzer reference %s", ErrAlreadyAdded, path)
		}
		p.analyzerReferences = append(p.analyzerReferences, path)
		ref := workspace.AnalyzerReference{FullPath: path}
		if i := slices.IndexFunc(p.analyzerReferencesRemoved, func(r workspace.AnalyzerReference) bool { return pathsEqual(r.FullPath, path) }); i >= 0 {
			p.analyzerReferencesRemoved = slices.Delete(p.analyzerReferencesRemoved, i, i+1)
		} else {
			p.analyzerReferencesAdded = append(p.analyzerReferencesAdded, ref)
		}
		p.flushIfIdleLocked()
		return nil
	})
}

// RemoveAnalyzerReference removes the analyzer assembly at path.
func (p *Project) RemoveAnalyzerReference(path string) error {
	return p.withGate(context.Background(), func() error {
		i := slices.IndexFunc(p.analyzerReferences, func(other string) bool { return pathsEqual(other, path) })
		if i < 0 {
			return fmt.Errorf("%w: analyzer reference %s", ErrNotFound, path)
		}
		stored := p.analyzerReferences[i]
		p.analyzerReferences = slices.Delete(p.analyzerReferences, i, i+1)
		if j := slices.IndexFunc(p.analyzerReferencesAdded, func(r workspace.AnalyzerReference) bool { return pathsEqual(r.FullPath, path) }); j >= 0 {
			p.analyzerReferencesAdded = slices.Delete(p.analyzerReferencesAdded, j, j+1)
		} else {
			p.analyzerReferencesRemoved = append(p.analyzerReferencesRemoved, workspace.AnalyzerReference{FullPath: stored})
		}
		p.flushIfIdleLocked()
		return nil
	})
}

// RemoveFromWorkspace removes the project. Pending batch edits are dropped,
// dynamic file refreshes are canceled and the project's watches are released.
func (p *Project) RemoveFromWorkspace(ctx context.Context) error {
	var dynamicFiles []*dynamicFile
	var unsubscribes []func()
	var projectFilePath string

	err := p.withGate(ctx, func() error {
		p.removed = true
		p.dynamicRefresh.Cancel()
		unsubscribes, p.unsubscribes = p.unsubscribes, nil
		for _, df := range p.dynamicFiles {
			dynamicFiles = append(dynamicFiles, df)
		}
		clear(p.dynamicFiles)
		projectFilePath = p.filePath
		p.f.removeProjectLocked(p)
		return nil
	})
	if err != nil {
		return err
	}

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
	for _, df := range dynamicFiles {
		if err := df.provider.RemoveDynamicFileInfo(ctx, p.id, projectFilePath, df.path); err != nil {
			p.f.logger.Printf("failed to release dynamic file info for %s: %v", df.path, err)
		}
	}
	return nil
}
