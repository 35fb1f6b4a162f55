package manifest

import (
	"context"
	"fmt"
	"log"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/projsync/internal/projectsystem"
	"github.com/steveyegge/projsync/internal/workspace"
)

// Config holds configuration for a Syncer.
type Config struct {
	// Concurrency is the number of projects populated at once.
	Concurrency int

	// Logger for sync progress.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Concurrency: 4,
		Logger:      log.New(os.Stderr, "[manifest] ", log.LstdFlags),
	}
}

// Result summarizes one Sync.
type Result struct {
	Created  int
	Updated  int
	Removed  int
	Duration time.Duration
}

type syncedProject struct {
	project *projectsystem.Project
	spec    ProjectSpec
}

// Syncer applies manifests to a factory. The first Sync creates every
// project; later ones apply only what changed since the previous manifest.
type Syncer struct {
	factory     *projectsystem.Factory
	logger      *log.Logger
	concurrency int

	// mu serializes Sync calls and guards projects.
	mu       sync.Mutex
	projects map[string]*syncedProject
}

// NewSyncer creates a syncer that drives factory.
func NewSyncer(factory *projectsystem.Factory, config *Config) *Syncer {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = DefaultConfig().Logger
	}
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConfig().Concurrency
	}
	return &Syncer{
		factory:     factory,
		logger:      logger,
		concurrency: concurrency,
		projects:    make(map[string]*syncedProject),
	}
}

// Project returns the project created for the manifest project name.
func (s *Syncer) Project(name string) (*projectsystem.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.projects[name]
	if !ok {
		return nil, false
	}
	return sp.project, true
}

// Sync makes the workspace match m. The manifest is validated, including
// its languages, before any project is touched. Each project's edits are
// applied in one batch.
func (s *Syncer) Sync(ctx context.Context, m *Manifest) (Result, error) {
	start := time.Now()
	if err := m.Validate(); err != nil {
		return Result{}, err
	}
	langs := s.factory.Store().Languages()
	for _, p := range m.Projects {
		if !langs.Contains(p.Language) {
			return Result{}, fmt.Errorf("%w: project %q: unknown language %q", ErrInvalidManifest, p.Name, p.Language)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result Result
	removed := make(map[string]bool)

	// Projects that left the manifest, or changed language, go first so
	// their output paths are free for the projects that replace them.
	for name, sp := range s.projects {
		next, ok := m.Project(name)
		if ok && next.Language == sp.spec.Language {
			continue
		}
		if err := sp.project.RemoveFromWorkspace(ctx); err != nil {
			return result, fmt.Errorf("failed to remove project %s: %w", name, err)
		}
		delete(s.projects, name)
		removed[name] = true
		result.Removed++
	}

	for _, spec := range m.Projects {
		if _, ok := s.projects[spec.Name]; ok {
			continue
		}
		project, err := s.factory.CreateAndAddToWorkspace(ctx, projectsystem.ProjectCreationInfo{
			Name:               spec.Name,
			AssemblyName:       assemblyName(spec),
			Language:           spec.Language,
			FilePath:           spec.File,
			OutputFilePath:     spec.OutputPath,
			OutputRefFilePath:  spec.OutputRefPath,
			CompilationOptions: spec.CompilationOptions(),
			ParseOptions:       spec.ParseOptions(),
			BuildProperties:    maps.Clone(spec.Properties),
		})
		if err != nil {
			return result, fmt.Errorf("failed to create project %s: %w", spec.Name, err)
		}
		// A fresh project starts from an empty spec, so populate adds
		// everything but does not touch the properties set at creation.
		s.projects[spec.Name] = &syncedProject{project: project, spec: creationSpec(spec)}
		result.Created++
	}

	ids := make(map[string]workspace.ProjectID, len(s.projects))
	for name, sp := range s.projects {
		ids[name] = sp.project.ID()
	}

	var updatedMu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, spec := range m.Projects {
		sp := s.projects[spec.Name]
		prev := sp.spec
		// References to removed projects left the workspace with them.
		prev.ProjectReferences = slices.DeleteFunc(slices.Clone(prev.ProjectReferences), func(name string) bool {
			return removed[name]
		})
		g.Go(func() error {
			changed, err := populate(gCtx, sp.project, prev, spec, ids)
			if err != nil {
				return fmt.Errorf("failed to sync project %s: %w", spec.Name, err)
			}
			// Each goroutine owns its own project; a failure elsewhere
			// must not make the next sync replay this one's changes.
			sp.spec = spec
			if changed {
				updatedMu.Lock()
				result.Updated++
				updatedMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	s.logger.Printf("synced %d projects: created=%d updated=%d removed=%d in %v",
		len(m.Projects), result.Created, result.Updated, result.Removed, result.Duration)
	return result, nil
}

// Close removes every project the syncer created.
func (s *Syncer) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, sp := range s.projects {
		if err := sp.project.RemoveFromWorkspace(ctx); err != nil && !projectsystem.IsContractViolation(err) {
			return fmt.Errorf("failed to remove project %s: %w", name, err)
		}
		delete(s.projects, name)
	}
	return nil
}

func assemblyName(spec ProjectSpec) string {
	if spec.AssemblyName != "" {
		return spec.AssemblyName
	}
	return spec.Name
}

// creationSpec is the part of spec applied by CreateAndAddToWorkspace.
func creationSpec(spec ProjectSpec) ProjectSpec {
	return ProjectSpec{
		Name:            spec.Name,
		Language:        spec.Language,
		AssemblyName:    spec.AssemblyName,
		File:            spec.File,
		OutputPath:      spec.OutputPath,
		OutputRefPath:   spec.OutputRefPath,
		OutputKind:      spec.OutputKind,
		LanguageVersion: spec.LanguageVersion,
		DefineConstants: spec.DefineConstants,
		Properties:      spec.Properties,
	}
}

// populate applies the difference between prev and next to project inside
// one batch scope. It reports whether anything was changed.
func populate(ctx context.Context, project *projectsystem.Project, prev, next ProjectSpec, ids map[string]workspace.ProjectID) (bool, error) {
	scope, err := project.CreateBatchScopeContext(ctx)
	if err != nil {
		return false, err
	}

	changed := false
	step := func(did bool, err error) error {
		changed = changed || did
		return err
	}

	run := func() error {
		if err := step(syncProperties(project, prev, next)); err != nil {
			return err
		}
		if err := step(syncFiles(prev.Sources, next.Sources, func(p string) error { return project.AddSourceFile(p) }, project.RemoveSourceFile)); err != nil {
			return err
		}
		if len(prev.Sources) > 0 && !slices.Equal(prev.Sources, next.Sources) && len(next.Sources) > 0 {
			if err := step(true, project.ReorderSourceFiles(next.Sources)); err != nil {
				return err
			}
		}
		if err := step(syncFiles(prev.AdditionalFiles, next.AdditionalFiles, func(p string) error { return project.AddAdditionalFile(p) }, project.RemoveAdditionalFile)); err != nil {
			return err
		}
		if err := step(syncFiles(prev.AnalyzerConfigs, next.AnalyzerConfigs, project.AddAnalyzerConfigFile, project.RemoveAnalyzerConfigFile)); err != nil {
			return err
		}
		if err := step(syncFiles(prev.Analyzers, next.Analyzers, project.AddAnalyzerReference, project.RemoveAnalyzerReference)); err != nil {
			return err
		}
		if err := step(syncReferences(project, prev.References, next.References)); err != nil {
			return err
		}
		return step(syncProjectReferences(project, prev.ProjectReferences, next.ProjectReferences, ids))
	}

	err = run()
	if closeErr := scope.CloseContext(context.WithoutCancel(ctx)); err == nil {
		err = closeErr
	}
	return changed, err
}

func syncProperties(project *projectsystem.Project, prev, next ProjectSpec) (bool, error) {
	changed := false
	set := func(differs bool, apply func() error) error {
		if !differs {
			return nil
		}
		changed = true
		return apply()
	}

	steps := []struct {
		differs bool
		apply   func() error
	}{
		{assemblyName(prev) != assemblyName(next), func() error { return project.SetAssemblyName(assemblyName(next)) }},
		{prev.File != next.File, func() error { return project.SetFilePath(next.File) }},
		{prev.OutputPath != next.OutputPath, func() error { return project.SetOutputFilePath(next.OutputPath) }},
		{prev.OutputRefPath != next.OutputRefPath, func() error { return project.SetOutputRefFilePath(next.OutputRefPath) }},
		{prev.CompilationOptions() != next.CompilationOptions(), func() error { return project.SetCompilationOptions(next.CompilationOptions()) }},
		{!prev.ParseOptions().Equal(next.ParseOptions()), func() error { return project.SetParseOptions(next.ParseOptions()) }},
	}
	for _, st := range steps {
		if err := set(st.differs, st.apply); err != nil {
			return changed, err
		}
	}

	names := slices.Sorted(maps.Keys(prev.Properties))
	for k := range next.Properties {
		if _, ok := prev.Properties[k]; !ok {
			names = append(names, k)
		}
	}
	for _, k := range names {
		if prev.Properties[k] == next.Properties[k] {
			continue
		}
		changed = true
		if err := project.SetBuildProperty(k, next.Properties[k]); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

func pathKey(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

// syncFiles removes the paths that left the list, then adds the new ones.
func syncFiles(prev, next []string, add, remove func(string) error) (bool, error) {
	changed := false
	keep := make(map[string]bool, len(next))
	for _, p := range next {
		keep[pathKey(p)] = true
	}
	had := make(map[string]bool, len(prev))
	for _, p := range prev {
		had[pathKey(p)] = true
		if keep[pathKey(p)] {
			continue
		}
		changed = true
		if err := remove(p); err != nil {
			return changed, err
		}
	}
	for _, p := range next {
		if had[pathKey(p)] {
			continue
		}
		changed = true
		if err := add(p); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

func syncReferences(project *projectsystem.Project, prev, next []ReferenceSpec) (bool, error) {
	changed := false
	keep := make(map[string]bool, len(next))
	for _, r := range next {
		keep[r.key()] = true
	}
	had := make(map[string]bool, len(prev))
	for _, r := range prev {
		had[r.key()] = true
		if keep[r.key()] {
			continue
		}
		changed = true
		if err := project.RemoveMetadataReference(r.Path, r.Properties()); err != nil {
			return changed, err
		}
	}
	for _, r := range next {
		if had[r.key()] {
			continue
		}
		changed = true
		if err := project.AddMetadataReference(r.Path, r.Properties()); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// syncProjectReferences resolves project names through ids.
func syncProjectReferences(project *projectsystem.Project, prev, next []string, ids map[string]workspace.ProjectID) (bool, error) {
	changed := false
	for _, name := range prev {
		if slices.Contains(next, name) {
			continue
		}
		changed = true
		if err := project.RemoveProjectReference(workspace.ProjectReference{ProjectID: ids[name]}); err != nil {
			return changed, err
		}
	}
	for _, name := range next {
		if slices.Contains(prev, name) {
			continue
		}
		changed = true
		if err := project.AddProjectReference(workspace.ProjectReference{ProjectID: ids[name]}); err != nil {
			return changed, err
		}
	}
	return changed, nil
}
