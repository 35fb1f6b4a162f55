package workspace

import (
	"fmt"
	"maps"
	"slices"
)

// Solution is an immutable snapshot of every project in a Store.
//
// Mutators return a new Solution and never modify the receiver. A mutator
// that would not change anything returns the receiver itself, so callers can
// detect no-ops by pointer comparison. Mutators that name a project which is
// not part of the solution panic: callers validate their input first.
type Solution struct {
	version    int64
	languages  *Languages
	projectIDs []ProjectID
	projects   map[ProjectID]*ProjectState
}

// NewSolution returns an empty solution that knows about langs.
func NewSolution(langs *Languages) *Solution {
	if langs == nil {
		langs = NewLanguages(DefaultLanguages())
	}
	return &Solution{
		languages: langs,
		projects:  make(map[ProjectID]*ProjectState),
	}
}

// Version is bumped by the Store on every commit.
func (s *Solution) Version() int64 { return s.version }

// Languages returns the languages registered with the owning Store.
func (s *Solution) Languages() *Languages { return s.languages }

// ProjectIDs returns the ids of all projects in the order they were added.
func (s *Solution) ProjectIDs() []ProjectID { return slices.Clone(s.projectIDs) }

// ProjectCount returns the number of projects.
func (s *Solution) ProjectCount() int { return len(s.projectIDs) }

// Projects returns all projects in the order they were added.
func (s *Solution) Projects() []*ProjectState {
	out := make([]*ProjectState, len(s.projectIDs))
	for i, id := range s.projectIDs {
		out[i] = s.projects[id]
	}
	return out
}

// Project returns the state of the project with the given id.
func (s *Solution) Project(id ProjectID) (*ProjectState, bool) {
	p, ok := s.projects[id]
	return p, ok
}

// ContainsProject reports whether id is part of the solution.
func (s *Solution) ContainsProject(id ProjectID) bool {
	_, ok := s.projects[id]
	return ok
}

// Document looks up a document by id.
func (s *Solution) Document(id DocumentID) (DocumentInfo, bool) {
	p, ok := s.projects[id.ProjectID]
	if !ok {
		return DocumentInfo{}, false
	}
	return p.Document(id)
}

// ContainsDocument reports whether id is part of the solution.
func (s *Solution) ContainsDocument(id DocumentID) bool {
	_, ok := s.Document(id)
	return ok
}

// DependsOnTransitively reports whether project from reaches project to by
// following project references.
func (s *Solution) DependsOnTransitively(from, to ProjectID) bool {
	seen := map[ProjectID]bool{from: true}
	queue := []ProjectID{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		p, ok := s.projects[current]
		if !ok {
			continue
		}
		for _, ref := range p.info.ProjectReferences {
			if ref.ProjectID == to {
				return true
			}
			if !seen[ref.ProjectID] {
				seen[ref.ProjectID] = true
				queue = append(queue, ref.ProjectID)
			}
		}
	}
	return false
}

func (s *Solution) clone() *Solution {
	return &Solution{
		version:    s.version,
		languages:  s.languages,
		projectIDs: s.projectIDs,
		projects:   s.projects,
	}
}

func (s *Solution) withVersion(version int64) *Solution {
	next := s.clone()
	next.version = version
	return next
}

func (s *Solution) mustProject(id ProjectID) *ProjectState {
	p, ok := s.projects[id]
	if !ok {
		panic(fmt.Sprintf("workspace: project %s is not part of the solution", id))
	}
	return p
}

func (s *Solution) withProjectState(p *ProjectState) *Solution {
	next := s.clone()
	next.projects = maps.Clone(s.projects)
	next.projects[p.info.ID] = p
	return next
}

func (s *Solution) updateProject(id ProjectID, update func(info *ProjectInfo)) *Solution {
	return s.withProjectState(s.mustProject(id).with(update))
}

// AddProject returns a solution that contains a new project described by info.
func (s *Solution) AddProject(info ProjectInfo) *Solution {
	if info.ID.IsZero() {
		panic("workspace: AddProject requires a project id")
	}
	if s.ContainsProject(info.ID) {
		panic(fmt.Sprintf("workspace: project %s is already part of the solution", info.ID))
	}
	next := s.withProjectState(newProjectState(info))
	next.projectIDs = append(slices.Clip(s.projectIDs), info.ID)
	return next
}

// RemoveProject returns a solution without the project. Project references
// from other projects to the removed one are dropped with it.
func (s *Solution) RemoveProject(id ProjectID) *Solution {
	s.mustProject(id)
	next := s.clone()
	next.projects = make(map[ProjectID]*ProjectState, len(s.projects)-1)
	next.projectIDs = make([]ProjectID, 0, len(s.projectIDs)-1)
	for _, pid := range s.projectIDs {
		if pid == id {
			continue
		}
		p := s.projects[pid]
		if slices.ContainsFunc(p.info.ProjectReferences, func(r ProjectReference) bool { return r.ProjectID == id }) {
			p = p.with(func(info *ProjectInfo) {
				info.ProjectReferences = slices.DeleteFunc(slices.Clone(info.ProjectReferences), func(r ProjectReference) bool {
					return r.ProjectID == id
				})
			})
		}
		next.projects[pid] = p
		next.projectIDs = append(next.projectIDs, pid)
	}
	return next
}

// WithProjectName renames a project.
func (s *Solution) WithProjectName(id ProjectID, name string) *Solution {
	if s.mustProject(id).info.Name == name {
		return s
	}
	return s.updateProject(id, func(info *ProjectInfo) { info.Name = name })
}

// WithProjectAssemblyName changes the assembly name of a project.
func (s *Solution) WithProjectAssemblyName(id ProjectID, name string) *Solution {
	if s.mustProject(id).info.AssemblyName == name {
		return s
	}
	return s.updateProject(id, func(info *ProjectInfo) { info.AssemblyName = name })
}

// WithProjectFilePath changes the project file path.
func (s *Solution) WithProjectFilePath(id ProjectID, path string) *Solution {
	if s.mustProject(id).info.FilePath == path {
		return s
	}
	return s.updateProject(id, func(info *ProjectInfo) { info.FilePath = path })
}

// WithProjectOutputFilePath changes the path the project compiles to.
func (s *Solution) WithProjectOutputFilePath(id ProjectID, path string) *Solution {
	if s.mustProject(id).info.OutputFilePath == path {
		return s
	}
	return s.updateProject(id, func(info *ProjectInfo) { info.OutputFilePath = path })
}

// WithProjectOutputRefFilePath changes the path of the project's reference
// assembly.
func (s *Solution) WithProjectOutputRefFilePath(id ProjectID, path string) *Solution {
	if s.mustProject(id).info.OutputRefFilePath == path {
		return s
	}
	return s.updateProject(id, func(info *ProjectInfo) { info.OutputRefFilePath = path })
}

// WithProjectCompilationOptions replaces the compilation options of a project.
func (s *Solution) WithProjectCompilationOptions(id ProjectID, opts CompilationOptions) *Solution {
	if s.mustProject(id).info.CompilationOptions == opts {
		return s
	}
	return s.updateProject(id, func(info *ProjectInfo) { info.CompilationOptions = opts })
}

// WithProjectParseOptions replaces the parse options of a project.
func (s *Solution) WithProjectParseOptions(id ProjectID, opts ParseOptions) *Solution {
	if s.mustProject(id).info.ParseOptions.Equal(opts) {
		return s
	}
	return s.updateProject(id, func(info *ProjectInfo) { info.ParseOptions = opts.clone() })
}

// AddDocuments adds documents to their owning projects. Each document goes to
// the list named by its Kind.
func (s *Solution) AddDocuments(docs []DocumentInfo) *Solution {
	if len(docs) == 0 {
		return s
	}
	next := s
	for _, doc := range docs {
		if s.ContainsDocument(doc.ID) {
			panic(fmt.Sprintf("workspace: document %s is already part of the solution", doc.ID))
		}
		doc := doc.clone()
		next = next.updateProject(doc.ID.ProjectID, func(info *ProjectInfo) {
			list := documentListOf(info, doc.Kind)
			*list = append(slices.Clip(*list), doc)
		})
	}
	return next
}

// RemoveDocuments removes documents of any kind. Unknown ids are ignored.
func (s *Solution) RemoveDocuments(ids []DocumentID) *Solution {
	next := s
	for _, id := range ids {
		p, ok := next.projects[id.ProjectID]
		if !ok {
			continue
		}
		doc, ok := p.Document(id)
		if !ok {
			continue
		}
		next = next.updateProject(id.ProjectID, func(info *ProjectInfo) {
			list := documentListOf(info, doc.Kind)
			*list = slices.DeleteFunc(slices.Clone(*list), func(d DocumentInfo) bool { return d.ID == id })
		})
	}
	return next
}

// WithDocumentText replaces the text of a document and bumps its version.
func (s *Solution) WithDocumentText(id DocumentID, text string) *Solution {
	doc, ok := s.Document(id)
	if !ok {
		panic(fmt.Sprintf("workspace: document %s is not part of the solution", id))
	}
	if doc.Text == text {
		return s
	}
	return s.updateProject(id.ProjectID, func(info *ProjectInfo) {
		list := documentListOf(info, doc.Kind)
		docs := slices.Clone(*list)
		for i := range docs {
			if docs[i].ID == id {
				docs[i].Text = text
				docs[i].Version++
			}
		}
		*list = docs
	})
}

// WithProjectDocumentsOrder reorders the source documents of a project. ids
// must be a permutation of the project's current source document ids.
func (s *Solution) WithProjectDocumentsOrder(id ProjectID, ids []DocumentID) *Solution {
	p := s.mustProject(id)
	current := p.info.Documents
	if len(ids) != len(current) {
		panic(fmt.Sprintf("workspace: reorder of project %s names %d documents, project has %d", id, len(ids), len(current)))
	}
	byID := make(map[DocumentID]DocumentInfo, len(current))
	for _, d := range current {
		byID[d.ID] = d
	}
	ordered := make([]DocumentInfo, 0, len(ids))
	changed := false
	for i, docID := range ids {
		d, ok := byID[docID]
		if !ok {
			panic(fmt.Sprintf("workspace: reorder names unknown document %s", docID))
		}
		delete(byID, docID)
		if current[i].ID != docID {
			changed = true
		}
		ordered = append(ordered, d)
	}
	if !changed {
		return s
	}
	return s.updateProject(id, func(info *ProjectInfo) { info.Documents = ordered })
}

// AddMetadataReference adds ref to the project.
func (s *Solution) AddMetadataReference(id ProjectID, ref MetadataReference) *Solution {
	return s.updateProject(id, func(info *ProjectInfo) {
		info.MetadataReferences = append(slices.Clip(info.MetadataReferences), ref)
	})
}

// RemoveMetadataReference removes the first reference equal to ref. It is a
// no-op when the project has no such reference.
func (s *Solution) RemoveMetadataReference(id ProjectID, ref MetadataReference) *Solution {
	refs := s.mustProject(id).info.MetadataReferences
	i := slices.IndexFunc(refs, ref.Equal)
	if i < 0 {
		return s
	}
	return s.updateProject(id, func(info *ProjectInfo) {
		info.MetadataReferences = slices.Delete(slices.Clone(refs), i, i+1)
	})
}

// AddProjectReference adds ref to the project.
func (s *Solution) AddProjectReference(id ProjectID, ref ProjectReference) *Solution {
	return s.AddProjectReferences(id, []ProjectReference{ref})
}

// AddProjectReferences adds refs to the project, in order.
func (s *Solution) AddProjectReferences(id ProjectID, refs []ProjectReference) *Solution {
	if len(refs) == 0 {
		return s
	}
	p := s.mustProject(id)
	for _, ref := range refs {
		if ref.ProjectID == id {
			panic(fmt.Sprintf("workspace: project %s cannot reference itself", id))
		}
		if p.ContainsProjectReference(ref) {
			panic(fmt.Sprintf("workspace: project %s already references %s", id, ref.ProjectID))
		}
	}
	return s.updateProject(id, func(info *ProjectInfo) {
		info.ProjectReferences = append(slices.Clip(info.ProjectReferences), refs...)
	})
}

// RemoveProjectReference removes ref from the project. It is a no-op when
// the project has no such reference.
func (s *Solution) RemoveProjectReference(id ProjectID, ref ProjectReference) *Solution {
	refs := s.mustProject(id).info.ProjectReferences
	i := slices.IndexFunc(refs, ref.Equal)
	if i < 0 {
		return s
	}
	return s.updateProject(id, func(info *ProjectInfo) {
		info.ProjectReferences = slices.Delete(slices.Clone(refs), i, i+1)
	})
}

// AddAnalyzerReference adds ref to the project.
func (s *Solution) AddAnalyzerReference(id ProjectID, ref AnalyzerReference) *Solution {
	return s.updateProject(id, func(info *ProjectInfo) {
		info.AnalyzerReferences = append(slices.Clip(info.AnalyzerReferences), ref)
	})
}

// RemoveAnalyzerReference removes ref from the project, if present.
func (s *Solution) RemoveAnalyzerReference(id ProjectID, ref AnalyzerReference) *Solution {
	refs := s.mustProject(id).info.AnalyzerReferences
	i := slices.Index(refs, ref)
	if i < 0 {
		return s
	}
	return s.updateProject(id, func(info *ProjectInfo) {
		info.AnalyzerReferences = slices.Delete(slices.Clone(refs), i, i+1)
	})
}

func documentListOf(info *ProjectInfo, kind DocumentKind) *[]DocumentInfo {
	switch kind {
	case KindAdditional:
		return &info.AdditionalDocuments
	case KindAnalyzerConfig:
		return &info.AnalyzerConfigDocuments
	default:
		return &info.Documents
	}
}
