package workspace

import "testing"

func TestChangeAccumulator_Classification(t *testing.T) {
	a := newTestProject("A")
	b := newTestProject("B")
	base := NewSolution(nil).AddProject(a).AddProject(b)

	docA1 := DocumentInfo{ID: NewDocumentID(a.ID), FilePath: "/a/1.cs"}
	docA2 := DocumentInfo{ID: NewDocumentID(a.ID), FilePath: "/a/2.cs"}
	docB := DocumentInfo{ID: NewDocumentID(b.ID), FilePath: "/b/1.cs"}

	tests := []struct {
		name    string
		apply   func(acc *ChangeAccumulator)
		want    ChangeKind
		project ProjectID
		doc     DocumentID
	}{
		{
			name:  "no edits",
			apply: func(acc *ChangeAccumulator) {},
			want:  NoChange,
		},
		{
			name: "single document",
			apply: func(acc *ChangeAccumulator) {
				acc.ApplyDocumentChange(acc.Solution().AddDocuments([]DocumentInfo{docA1}), DocumentAdded, docA1.ID)
			},
			want:    DocumentAdded,
			project: a.ID,
			doc:     docA1.ID,
		},
		{
			name: "two documents in one project",
			apply: func(acc *ChangeAccumulator) {
				acc.ApplyDocumentChange(acc.Solution().AddDocuments([]DocumentInfo{docA1}), DocumentAdded, docA1.ID)
				acc.ApplyDocumentChange(acc.Solution().AddDocuments([]DocumentInfo{docA2}), DocumentAdded, docA2.ID)
			},
			want:    ProjectChanged,
			project: a.ID,
		},
		{
			name: "document then project property",
			apply: func(acc *ChangeAccumulator) {
				acc.ApplyDocumentChange(acc.Solution().AddDocuments([]DocumentInfo{docA1}), DocumentAdded, docA1.ID)
				acc.ApplyProjectChange(a.ID, acc.Solution().WithProjectAssemblyName(a.ID, "A2"))
			},
			want:    ProjectChanged,
			project: a.ID,
		},
		{
			name: "two projects",
			apply: func(acc *ChangeAccumulator) {
				acc.ApplyDocumentChange(acc.Solution().AddDocuments([]DocumentInfo{docA1}), DocumentAdded, docA1.ID)
				acc.ApplyDocumentChange(acc.Solution().AddDocuments([]DocumentInfo{docB}), DocumentAdded, docB.ID)
				acc.ApplyProjectChange(a.ID, acc.Solution().WithProjectAssemblyName(a.ID, "A2"))
			},
			want: SolutionChanged,
		},
		{
			name: "document edit without ids",
			apply: func(acc *ChangeAccumulator) {
				acc.ApplyDocumentChange(acc.Solution().AddDocuments([]DocumentInfo{docA1}), DocumentAdded)
			},
			want: SolutionChanged,
		},
		{
			name: "identical snapshot is ignored",
			apply: func(acc *ChangeAccumulator) {
				acc.ApplyProjectChange(a.ID, acc.Solution().WithProjectName(a.ID, "A"))
			},
			want: NoChange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewChangeAccumulator(base)
			tt.apply(acc)

			event := acc.Event()
			if event.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", event.Kind, tt.want)
			}
			if event.ProjectID != tt.project {
				t.Errorf("ProjectID = %s, want %s", event.ProjectID, tt.project)
			}
			if event.DocumentID != tt.doc {
				t.Errorf("DocumentID = %s, want %s", event.DocumentID, tt.doc)
			}
			if acc.HasChange() != (tt.want != NoChange) {
				t.Errorf("HasChange() = %v", acc.HasChange())
			}
		})
	}
}

func TestChangeAccumulator_DocumentEditWithoutIDsIsKept(t *testing.T) {
	a := newTestProject("A")
	base := NewSolution(nil).AddProject(a)
	doc := DocumentInfo{ID: NewDocumentID(a.ID), FilePath: "/a/1.cs"}

	acc := NewChangeAccumulator(base)
	acc.ApplyDocumentChange(acc.Solution().AddDocuments([]DocumentInfo{doc}), DocumentAdded)
	if !acc.Solution().ContainsDocument(doc.ID) {
		t.Fatal("edit was dropped from the running solution")
	}

	// Later edits still build on it.
	acc.ApplyProjectChange(a.ID, acc.Solution().WithProjectAssemblyName(a.ID, "A2"))
	if !acc.Solution().ContainsDocument(doc.ID) {
		t.Error("document lost after a later edit")
	}
	if acc.Kind() != SolutionChanged {
		t.Errorf("Kind() = %s, want %s", acc.Kind(), SolutionChanged)
	}
}
