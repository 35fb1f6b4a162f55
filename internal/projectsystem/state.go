package projectsystem

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/steveyegge/projsync/internal/workspace"
)

// ConvertedProjectReference records a metadata reference that is currently
// represented in the solution as a project reference.
type ConvertedProjectReference struct {
	// Path is the file path of the original metadata reference.
	Path             string
	ProjectReference workspace.ProjectReference
}

// ProjectReferenceInfo is the conversion bookkeeping for one project.
type ProjectReferenceInfo struct {
	// OutputPaths are the paths this project produces.
	OutputPaths []string

	// ConvertedProjectReferences are the metadata references of this project
	// that were converted to project references.
	ConvertedProjectReferences []ConvertedProjectReference
}

func (i ProjectReferenceInfo) isEmpty() bool {
	return len(i.OutputPaths) == 0 && len(i.ConvertedProjectReferences) == 0
}

// ProjectUpdateState is the cross-project bookkeeping of a Factory.
//
// It is an immutable value: every method returns a new state and leaves the
// receiver untouched, so a transform can be rerun from the same starting
// state any number of times.
type ProjectUpdateState struct {
	// projectsByOutputPath maps a normalized output path to its producers.
	// A project that declares the same path twice appears twice.
	projectsByOutputPath map[string][]workspace.ProjectID

	projectReferenceInfos map[workspace.ProjectID]ProjectReferenceInfo

	// Transient, cleared after every commit.
	addedReferences    []workspace.MetadataReference
	removedReferences  []workspace.MetadataReference
	convertedToProject int
	revertedToMetadata int
}

// NewProjectUpdateState returns an empty state.
func NewProjectUpdateState() ProjectUpdateState {
	return ProjectUpdateState{
		projectsByOutputPath:  map[string][]workspace.ProjectID{},
		projectReferenceInfos: map[workspace.ProjectID]ProjectReferenceInfo{},
	}
}

// cloneMap is maps.Clone that never returns nil, so the zero state is usable.
func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return make(map[K]V)
	}
	return maps.Clone(m)
}

func normalizePath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

func pathsEqual(a, b string) bool {
	return normalizePath(a) == normalizePath(b)
}

// ProjectsForOutputPath returns the producers of path, including duplicates.
func (s ProjectUpdateState) ProjectsForOutputPath(path string) []workspace.ProjectID {
	return slices.Clone(s.projectsByOutputPath[normalizePath(path)])
}

// distinctProjectsForOutputPath returns the producers of path, each once, in
// registration order.
func (s ProjectUpdateState) distinctProjectsForOutputPath(path string) []workspace.ProjectID {
	var out []workspace.ProjectID
	for _, id := range s.projectsByOutputPath[normalizePath(path)] {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// ReferenceInfo returns the bookkeeping for projectID. A project without
// bookkeeping gets an empty info.
func (s ProjectUpdateState) ReferenceInfo(projectID workspace.ProjectID) ProjectReferenceInfo {
	info := s.projectReferenceInfos[projectID]
	return ProjectReferenceInfo{
		OutputPaths:                slices.Clone(info.OutputPaths),
		ConvertedProjectReferences: slices.Clone(info.ConvertedProjectReferences),
	}
}

// AddedReferences returns the metadata references added since the last commit.
func (s ProjectUpdateState) AddedReferences() []workspace.MetadataReference {
	return slices.Clone(s.addedReferences)
}

// RemovedReferences returns the metadata references removed since the last
// commit.
func (s ProjectUpdateState) RemovedReferences() []workspace.MetadataReference {
	return slices.Clone(s.removedReferences)
}

// WithProjectOutputPath registers projectID as a producer of path.
func (s ProjectUpdateState) WithProjectOutputPath(path string, projectID workspace.ProjectID) ProjectUpdateState {
	key := normalizePath(path)
	s.projectsByOutputPath = cloneMap(s.projectsByOutputPath)
	s.projectsByOutputPath[key] = append(slices.Clip(s.projectsByOutputPath[key]), projectID)

	info := s.ReferenceInfo(projectID)
	info.OutputPaths = append(info.OutputPaths, path)
	return s.WithProjectReferenceInfo(projectID, info)
}

// RemoveProjectOutputPath removes one registration of projectID as a producer
// of path.
func (s ProjectUpdateState) RemoveProjectOutputPath(path string, projectID workspace.ProjectID) ProjectUpdateState {
	key := normalizePath(path)
	producers := s.projectsByOutputPath[key]
	i := slices.Index(producers, projectID)
	if i < 0 {
		return s
	}
	s.projectsByOutputPath = cloneMap(s.projectsByOutputPath)
	if len(producers) == 1 {
		delete(s.projectsByOutputPath, key)
	} else {
		s.projectsByOutputPath[key] = slices.Delete(slices.Clone(producers), i, i+1)
	}

	info := s.ReferenceInfo(projectID)
	if j := slices.IndexFunc(info.OutputPaths, func(p string) bool { return pathsEqual(p, path) }); j >= 0 {
		info.OutputPaths = slices.Delete(info.OutputPaths, j, j+1)
	}
	return s.WithProjectReferenceInfo(projectID, info)
}

// WithProjectReferenceInfo replaces the bookkeeping for projectID. Empty
// bookkeeping is dropped.
func (s ProjectUpdateState) WithProjectReferenceInfo(projectID workspace.ProjectID, info ProjectReferenceInfo) ProjectUpdateState {
	s.projectReferenceInfos = cloneMap(s.projectReferenceInfos)
	if info.isEmpty() {
		delete(s.projectReferenceInfos, projectID)
	} else {
		s.projectReferenceInfos[projectID] = info
	}
	return s
}

// WithoutProject drops all bookkeeping for projectID. Output paths must have
// been removed first so that conversions pointing at the project are
// reverted.
func (s ProjectUpdateState) WithoutProject(projectID workspace.ProjectID) ProjectUpdateState {
	if _, ok := s.projectReferenceInfos[projectID]; !ok {
		return s
	}
	s.projectReferenceInfos = cloneMap(s.projectReferenceInfos)
	delete(s.projectReferenceInfos, projectID)
	return s
}

// WithIncrementalMetadataReferenceAdded records that ref entered the solution.
func (s ProjectUpdateState) WithIncrementalMetadataReferenceAdded(ref workspace.MetadataReference) ProjectUpdateState {
	s.addedReferences = append(slices.Clip(s.addedReferences), ref)
	return s
}

// WithIncrementalMetadataReferencesRemoved records that refs left the solution.
func (s ProjectUpdateState) WithIncrementalMetadataReferencesRemoved(refs ...workspace.MetadataReference) ProjectUpdateState {
	if len(refs) == 0 {
		return s
	}
	s.removedReferences = append(slices.Clip(s.removedReferences), refs...)
	return s
}

func (s ProjectUpdateState) withConversion(toProject bool) ProjectUpdateState {
	if toProject {
		s.convertedToProject++
	} else {
		s.revertedToMetadata++
	}
	return s
}

// ClearIncrementalState drops the transient lists.
func (s ProjectUpdateState) ClearIncrementalState() ProjectUpdateState {
	s.addedReferences = nil
	s.removedReferences = nil
	s.convertedToProject = 0
	s.revertedToMetadata = 0
	return s
}
