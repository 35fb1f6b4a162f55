// Package workspace holds the immutable project model that the project system
// keeps in sync, and the Store that publishes it.
//
// # Model
//
// A Solution is an immutable, versioned snapshot of every project the IDE
// knows about: its documents, compilation options and references. Every
// mutator returns a new Solution and leaves the receiver untouched, so a
// Solution can be read from any goroutine without locking.
//
// # Store
//
// Store owns the current Solution. Writers never assign it directly; they
// hand SetCurrentSolution a transform:
//
//	applied, solution := store.SetCurrentSolution(workspace.SolutionUpdate{
//	    Transform: func(old *workspace.Solution) *workspace.Solution {
//	        return old.AddProject(info)
//	    },
//	    Classify: func(old, new *workspace.Solution) workspace.ChangeEvent {
//	        return workspace.ChangeEvent{Kind: workspace.ProjectAdded, ProjectID: info.ID}
//	    },
//	})
//
// If another writer commits between the transform running and the commit,
// the transform is run again against the newer snapshot. Transforms must
// therefore be free of side effects; anything that must happen exactly once
// belongs in OnBeforeUpdate or OnAfterUpdate, which run under the commit lock
// for the attempt that wins.
//
// Committed changes are delivered to subscribers, in commit order, on a
// dedicated goroutine.
//
// # Change classification
//
// ChangeAccumulator folds many edits made inside one transform into the
// narrowest correct ChangeKind: one document, one project, or the whole
// solution.
package workspace
