package workspace

import "slices"

// ProjectInfo is the full description of a project, used to add it to a
// Solution.
type ProjectInfo struct {
	ID                 ProjectID
	Name               string
	AssemblyName       string
	Language           string
	FilePath           string
	OutputFilePath     string
	OutputRefFilePath  string
	CompilationOptions CompilationOptions
	ParseOptions       ParseOptions

	Documents               []DocumentInfo
	AdditionalDocuments     []DocumentInfo
	AnalyzerConfigDocuments []DocumentInfo
	MetadataReferences      []MetadataReference
	ProjectReferences       []ProjectReference
	AnalyzerReferences      []AnalyzerReference
}

// ProjectState is the immutable state of one project inside a Solution.
//
// Slices returned by the accessors are copies; modifying them has no effect
// on the state.
type ProjectState struct {
	info ProjectInfo
}

func newProjectState(info ProjectInfo) *ProjectState {
	info.Documents = cloneDocuments(info.Documents, KindSource)
	info.AdditionalDocuments = cloneDocuments(info.AdditionalDocuments, KindAdditional)
	info.AnalyzerConfigDocuments = cloneDocuments(info.AnalyzerConfigDocuments, KindAnalyzerConfig)
	info.MetadataReferences = slices.Clone(info.MetadataReferences)
	info.ProjectReferences = slices.Clone(info.ProjectReferences)
	info.AnalyzerReferences = slices.Clone(info.AnalyzerReferences)
	info.ParseOptions = info.ParseOptions.clone()
	return &ProjectState{info: info}
}

func cloneDocuments(docs []DocumentInfo, kind DocumentKind) []DocumentInfo {
	out := make([]DocumentInfo, len(docs))
	for i, d := range docs {
		d = d.clone()
		d.Kind = kind
		out[i] = d
	}
	return out
}

func (p *ProjectState) ID() ProjectID                          { return p.info.ID }
func (p *ProjectState) Name() string                           { return p.info.Name }
func (p *ProjectState) AssemblyName() string                   { return p.info.AssemblyName }
func (p *ProjectState) Language() string                       { return p.info.Language }
func (p *ProjectState) FilePath() string                       { return p.info.FilePath }
func (p *ProjectState) OutputFilePath() string                 { return p.info.OutputFilePath }
func (p *ProjectState) OutputRefFilePath() string              { return p.info.OutputRefFilePath }
func (p *ProjectState) CompilationOptions() CompilationOptions { return p.info.CompilationOptions }
func (p *ProjectState) ParseOptions() ParseOptions             { return p.info.ParseOptions.clone() }

// Documents returns the documents of the given kind in project order.
func (p *ProjectState) Documents(kind DocumentKind) []DocumentInfo {
	return slices.Clone(*p.documentList(kind))
}

// DocumentIDs returns the ids of the documents of the given kind in order.
func (p *ProjectState) DocumentIDs(kind DocumentKind) []DocumentID {
	docs := *p.documentList(kind)
	ids := make([]DocumentID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

// Document looks up a document of any kind.
func (p *ProjectState) Document(id DocumentID) (DocumentInfo, bool) {
	for _, kind := range []DocumentKind{KindSource, KindAdditional, KindAnalyzerConfig} {
		for _, d := range *p.documentList(kind) {
			if d.ID == id {
				return d.clone(), true
			}
		}
	}
	return DocumentInfo{}, false
}

func (p *ProjectState) MetadataReferences() []MetadataReference {
	return slices.Clone(p.info.MetadataReferences)
}

func (p *ProjectState) ProjectReferences() []ProjectReference {
	return slices.Clone(p.info.ProjectReferences)
}

func (p *ProjectState) AnalyzerReferences() []AnalyzerReference {
	return slices.Clone(p.info.AnalyzerReferences)
}

// ContainsProjectReference reports whether ref is one of the project's
// project references.
func (p *ProjectState) ContainsProjectReference(ref ProjectReference) bool {
	return slices.ContainsFunc(p.info.ProjectReferences, ref.Equal)
}

// Info returns a deep copy of the project's description.
func (p *ProjectState) Info() ProjectInfo {
	return newProjectState(p.info).info
}

func (p *ProjectState) documentList(kind DocumentKind) *[]DocumentInfo {
	return documentListOf(&p.info, kind)
}

// with returns a shallow copy of p whose slices may be replaced, never
// appended to in place.
func (p *ProjectState) with(update func(info *ProjectInfo)) *ProjectState {
	info := p.info
	update(&info)
	return &ProjectState{info: info}
}
