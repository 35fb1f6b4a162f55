// Package projectsystem keeps a workspace.Store in sync with the stream of
// edits coming from an external project system.
//
// # Architecture
//
//   - Factory: owns the cross-project bookkeeping (ProjectUpdateState), the
//     serialization gate, and the file watches on metadata references.
//   - Project: the per-project entry point. Edits made while a BatchScope is
//     open are collected and submitted as one transform when the last scope
//     closes; outside of a scope every edit is submitted on its own.
//   - Reference conversion: a metadata reference to a path produced by
//     exactly one project in the workspace is turned into a project reference
//     to that project, and turned back when that stops being true.
//
// # Transforms
//
// Every change reaches the Store through Factory.ApplyBatchChange. The change
// function is pure over the ProjectUpdateState it is given and may run more
// than once if another writer races it; it always receives the last
// committed state. Watches are synchronized exactly once, after the commit,
// from the transient lists of added and removed metadata references.
//
//	err := factory.ApplyBatchChange(ctx, func(acc *workspace.ChangeAccumulator, state projectsystem.ProjectUpdateState) projectsystem.ProjectUpdateState {
//	    acc.ApplyProjectChange(id, acc.Solution().WithProjectName(id, "Renamed"))
//	    return state
//	}, nil)
//
// # Errors
//
// Invalid caller input (adding something twice, removing something that was
// never added, relative paths) is rejected before any state changes, with an
// error for which IsContractViolation reports true.
package projectsystem
