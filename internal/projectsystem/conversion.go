package projectsystem

import (
	"slices"

	"github.com/steveyegge/projsync/internal/workspace"
)

// The functions in this file are pure over the accumulator's running
// solution and the state they are given. They run inside transforms and may
// be repeated.

// addOutputPath registers projectID as a producer of outputPath and converts
// or reverts references to that path as needed.
func addOutputPath(acc *workspace.ChangeAccumulator, state ProjectUpdateState, projectID workspace.ProjectID, outputPath string) ProjectUpdateState {
	state = state.WithProjectOutputPath(outputPath, projectID)

	producers := state.ProjectsForOutputPath(outputPath)
	distinct := state.distinctProjectsForOutputPath(outputPath)

	switch {
	case len(producers) == 1:
		return convertMetadataReferencesToProjectReferences(acc, state, projectID, outputPath)
	case len(distinct) == 1:
		// The same project declared the path twice; the first registration
		// already converted everything there was to convert.
		return state
	default:
		// Nobody can tell which producer a reference should point at.
		for _, other := range distinct {
			if other != projectID {
				state = convertProjectReferencesToMetadataReferences(acc, state, other, outputPath)
			}
		}
		return state
	}
}

// removeOutputPath removes one registration of projectID as a producer of
// outputPath. When one producer is left, references to the path are
// converted to it. When none is left they are reverted to metadata
// references, unless the solution is closing.
func removeOutputPath(acc *workspace.ChangeAccumulator, state ProjectUpdateState, projectID workspace.ProjectID, outputPath string, solutionClosing bool) ProjectUpdateState {
	if !slices.Contains(state.ProjectsForOutputPath(outputPath), projectID) {
		return state
	}
	state = state.RemoveProjectOutputPath(outputPath, projectID)

	distinct := state.distinctProjectsForOutputPath(outputPath)
	switch len(distinct) {
	case 1:
		return convertMetadataReferencesToProjectReferences(acc, state, distinct[0], outputPath)
	case 0:
		if solutionClosing {
			return state
		}
		return convertProjectReferencesToMetadataReferences(acc, state, projectID, outputPath)
	default:
		return state
	}
}

// canConvertMetadataReferenceToProjectReference reports whether referencing
// may hold a project reference to referenced.
func canConvertMetadataReferenceToProjectReference(solution *workspace.Solution, referencing, referenced workspace.ProjectID) bool {
	if referencing == referenced {
		return false
	}
	from, ok := solution.Project(referencing)
	if !ok {
		return false
	}
	to, ok := solution.Project(referenced)
	if !ok {
		return false
	}

	langs := solution.Languages()
	if langs.CanCompile(from.Language()) && !langs.CanCompile(to.Language()) {
		return false
	}

	// The new edge must not close a cycle.
	return !solution.DependsOnTransitively(referenced, referencing)
}

// convertMetadataReferencesToProjectReferences replaces every metadata
// reference to outputPath, in every project that may reference producer,
// with a project reference to producer.
func convertMetadataReferencesToProjectReferences(acc *workspace.ChangeAccumulator, state ProjectUpdateState, producer workspace.ProjectID, outputPath string) ProjectUpdateState {
	for _, referencing := range acc.Solution().ProjectIDs() {
		if !canConvertMetadataReferenceToProjectReference(acc.Solution(), referencing, producer) {
			continue
		}
		project, _ := acc.Solution().Project(referencing)

		// A project can reference the same file under different aliases;
		// each reference is converted on its own.
		for _, ref := range project.MetadataReferences() {
			if !pathsEqual(ref.FilePath, outputPath) {
				continue
			}
			projectRef := workspace.NewProjectReference(producer, ref.Properties)
			if containsProjectReference(acc.Solution(), referencing, projectRef) {
				continue
			}

			state = state.WithIncrementalMetadataReferencesRemoved(ref)
			next := acc.Solution().
				RemoveMetadataReference(referencing, ref).
				AddProjectReference(referencing, projectRef)
			acc.ApplyProjectChange(referencing, next)

			info := state.ReferenceInfo(referencing)
			info.ConvertedProjectReferences = append(info.ConvertedProjectReferences, ConvertedProjectReference{
				Path:             ref.FilePath,
				ProjectReference: projectRef,
			})
			state = state.WithProjectReferenceInfo(referencing, info).withConversion(true)
		}
	}
	return state
}

// convertProjectReferencesToMetadataReferences reverts every converted
// reference to outputPath that points at producer.
func convertProjectReferencesToMetadataReferences(acc *workspace.ChangeAccumulator, state ProjectUpdateState, producer workspace.ProjectID, outputPath string) ProjectUpdateState {
	for _, referencing := range acc.Solution().ProjectIDs() {
		info := state.ReferenceInfo(referencing)
		changed := false

		for i := 0; i < len(info.ConvertedProjectReferences); i++ {
			converted := info.ConvertedProjectReferences[i]
			if !pathsEqual(converted.Path, outputPath) || converted.ProjectReference.ProjectID != producer {
				continue
			}

			ref := workspace.NewMetadataReference(converted.Path, converted.ProjectReference.Properties())
			state = state.WithIncrementalMetadataReferenceAdded(ref)
			next := acc.Solution().
				RemoveProjectReference(referencing, converted.ProjectReference).
				AddMetadataReference(referencing, ref)
			acc.ApplyProjectChange(referencing, next)

			info.ConvertedProjectReferences = slices.Delete(info.ConvertedProjectReferences, i, i+1)
			i--
			changed = true
			state = state.withConversion(false)
		}

		if changed {
			state = state.WithProjectReferenceInfo(referencing, info)
		}
	}
	return state
}

// tryCreateConvertedProjectReference returns a project reference to use in
// place of a new metadata reference to path, if path has exactly one
// producer that referencing may reference.
func tryCreateConvertedProjectReference(solution *workspace.Solution, state ProjectUpdateState, referencing workspace.ProjectID, path string, properties workspace.MetadataReferenceProperties) (workspace.ProjectReference, ProjectUpdateState, bool) {
	producers := state.distinctProjectsForOutputPath(path)
	if len(producers) != 1 {
		return workspace.ProjectReference{}, state, false
	}
	producer := producers[0]
	if !canConvertMetadataReferenceToProjectReference(solution, referencing, producer) {
		return workspace.ProjectReference{}, state, false
	}

	projectRef := workspace.NewProjectReference(producer, properties)
	if containsProjectReference(solution, referencing, projectRef) {
		return workspace.ProjectReference{}, state, false
	}

	info := state.ReferenceInfo(referencing)
	info.ConvertedProjectReferences = append(info.ConvertedProjectReferences, ConvertedProjectReference{
		Path:             path,
		ProjectReference: projectRef,
	})
	return projectRef, state.WithProjectReferenceInfo(referencing, info).withConversion(true), true
}

// tryRemoveConvertedProjectReference forgets the conversion of the metadata
// reference (path, properties) held by referencing, returning the project
// reference that stood in for it.
func tryRemoveConvertedProjectReference(state ProjectUpdateState, referencing workspace.ProjectID, path string, properties workspace.MetadataReferenceProperties) (workspace.ProjectReference, ProjectUpdateState, bool) {
	info := state.ReferenceInfo(referencing)
	for i, converted := range info.ConvertedProjectReferences {
		if pathsEqual(converted.Path, path) && converted.ProjectReference.Properties().Equal(properties) {
			info.ConvertedProjectReferences = slices.Delete(info.ConvertedProjectReferences, i, i+1)
			return converted.ProjectReference, state.WithProjectReferenceInfo(referencing, info), true
		}
	}
	return workspace.ProjectReference{}, state, false
}

func containsProjectReference(solution *workspace.Solution, projectID workspace.ProjectID, ref workspace.ProjectReference) bool {
	p, ok := solution.Project(projectID)
	return ok && p.ContainsProjectReference(ref)
}
