package workspace

// ChangeAccumulator collects the edits made during one transform attempt and
// tracks the narrowest change kind that describes all of them.
//
// An accumulator is not safe for concurrent use and must not be reused across
// attempts: build a new one inside every transform.
type ChangeAccumulator struct {
	solution   *Solution
	kind       ChangeKind
	projectID  ProjectID
	documentID DocumentID
}

// NewChangeAccumulator starts accumulating from base.
func NewChangeAccumulator(base *Solution) *ChangeAccumulator {
	return &ChangeAccumulator{solution: base}
}

// Solution returns the solution with every edit applied so far.
func (a *ChangeAccumulator) Solution() *Solution { return a.solution }

// HasChange reports whether any edit changed the solution.
func (a *ChangeAccumulator) HasChange() bool { return a.kind != NoChange }

// Kind returns the accumulated change kind.
func (a *ChangeAccumulator) Kind() ChangeKind { return a.kind }

// Event returns the accumulated classification. The store fills in the old
// and new solutions.
func (a *ChangeAccumulator) Event() ChangeEvent {
	return ChangeEvent{Kind: a.kind, ProjectID: a.projectID, DocumentID: a.documentID}
}

// ApplyDocumentChange records next as the running solution after a change of
// kind to the given documents. A single document yields a document-level
// kind; several documents of one project collapse to ProjectChanged. An edit
// with no documents named cannot be attributed and counts as a solution
// change.
func (a *ChangeAccumulator) ApplyDocumentChange(next *Solution, kind ChangeKind, ids ...DocumentID) {
	if next == a.solution {
		return
	}
	if len(ids) == 0 {
		a.ApplySolutionChange(next)
		return
	}
	a.solution = next
	for _, id := range ids {
		a.record(kind, id.ProjectID, id)
	}
}

// ApplyProjectChange records next as the running solution after a change to
// one project.
func (a *ChangeAccumulator) ApplyProjectChange(projectID ProjectID, next *Solution) {
	if next == a.solution {
		return
	}
	a.solution = next
	a.record(ProjectChanged, projectID, DocumentID{})
}

// ApplyProjectAdded records next as the running solution after projectID was
// added.
func (a *ChangeAccumulator) ApplyProjectAdded(projectID ProjectID, next *Solution) {
	if next == a.solution {
		return
	}
	a.solution = next
	a.record(ProjectAdded, projectID, DocumentID{})
}

// ApplyProjectRemoved records next as the running solution after projectID
// was removed.
func (a *ChangeAccumulator) ApplyProjectRemoved(projectID ProjectID, next *Solution) {
	if next == a.solution {
		return
	}
	a.solution = next
	a.record(ProjectRemoved, projectID, DocumentID{})
}

// ApplySolutionChange records next as the running solution after a change
// that is not attributable to one project.
func (a *ChangeAccumulator) ApplySolutionChange(next *Solution) {
	if next == a.solution {
		return
	}
	a.solution = next
	a.kind = SolutionChanged
	a.projectID = ProjectID{}
	a.documentID = DocumentID{}
}

func (a *ChangeAccumulator) record(kind ChangeKind, projectID ProjectID, documentID DocumentID) {
	switch {
	case a.kind == SolutionChanged:
		// Terminal.
	case a.kind == NoChange:
		a.kind = kind
		a.projectID = projectID
		a.documentID = documentID
	case a.projectID != projectID:
		a.kind = SolutionChanged
		a.projectID = ProjectID{}
		a.documentID = DocumentID{}
	case a.kind == ProjectAdded || a.kind == ProjectRemoved:
		// A new or removed project absorbs further edits to itself.
		a.documentID = DocumentID{}
	default:
		a.kind = ProjectChanged
		a.documentID = DocumentID{}
	}
}

// AccumulatedUpdate returns a SolutionUpdate whose transform runs fn against
// a fresh accumulator on every attempt and whose classification is taken
// from the accumulator of the attempt that was committed.
func AccumulatedUpdate(fn func(acc *ChangeAccumulator)) SolutionUpdate {
	var last *ChangeAccumulator
	return SolutionUpdate{
		Transform: func(old *Solution) *Solution {
			last = NewChangeAccumulator(old)
			fn(last)
			return last.Solution()
		},
		Classify: func(_, _ *Solution) ChangeEvent {
			return last.Event()
		},
	}
}
