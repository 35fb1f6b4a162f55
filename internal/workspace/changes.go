package workspace

// ChangeKind classifies a committed change to the Solution. The zero value
// means nothing changed.
type ChangeKind int

const (
	NoChange ChangeKind = iota
	SolutionChanged
	ProjectAdded
	ProjectRemoved
	ProjectChanged
	DocumentAdded
	DocumentRemoved
	DocumentChanged
	AdditionalDocumentAdded
	AdditionalDocumentRemoved
	AdditionalDocumentChanged
	AnalyzerConfigDocumentAdded
	AnalyzerConfigDocumentRemoved
	AnalyzerConfigDocumentChanged
)

var changeKindNames = map[ChangeKind]string{
	NoChange:                      "none",
	SolutionChanged:               "solution_changed",
	ProjectAdded:                  "project_added",
	ProjectRemoved:                "project_removed",
	ProjectChanged:                "project_changed",
	DocumentAdded:                 "document_added",
	DocumentRemoved:               "document_removed",
	DocumentChanged:               "document_changed",
	AdditionalDocumentAdded:       "additional_document_added",
	AdditionalDocumentRemoved:     "additional_document_removed",
	AdditionalDocumentChanged:     "additional_document_changed",
	AnalyzerConfigDocumentAdded:   "analyzer_config_document_added",
	AnalyzerConfigDocumentRemoved: "analyzer_config_document_removed",
	AnalyzerConfigDocumentChanged: "analyzer_config_document_changed",
}

func (k ChangeKind) String() string {
	if name, ok := changeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsDocumentLevel reports whether k describes a change to a single document.
func (k ChangeKind) IsDocumentLevel() bool {
	return k >= DocumentAdded
}

// DocumentAddedKind returns the "added" change kind for documents of kind.
func DocumentAddedKind(kind DocumentKind) ChangeKind {
	switch kind {
	case KindAdditional:
		return AdditionalDocumentAdded
	case KindAnalyzerConfig:
		return AnalyzerConfigDocumentAdded
	default:
		return DocumentAdded
	}
}

// DocumentRemovedKind returns the "removed" change kind for documents of kind.
func DocumentRemovedKind(kind DocumentKind) ChangeKind {
	switch kind {
	case KindAdditional:
		return AdditionalDocumentRemoved
	case KindAnalyzerConfig:
		return AnalyzerConfigDocumentRemoved
	default:
		return DocumentRemoved
	}
}

// DocumentChangedKind returns the "changed" change kind for documents of kind.
func DocumentChangedKind(kind DocumentKind) ChangeKind {
	switch kind {
	case KindAdditional:
		return AdditionalDocumentChanged
	case KindAnalyzerConfig:
		return AnalyzerConfigDocumentChanged
	default:
		return DocumentChanged
	}
}

// ChangeEvent is delivered to Store subscribers after every commit.
//
// ProjectID is set for project- and document-level kinds; DocumentID only for
// document-level kinds.
type ChangeEvent struct {
	Kind        ChangeKind
	OldSolution *Solution
	NewSolution *Solution
	ProjectID   ProjectID
	DocumentID  DocumentID
}
