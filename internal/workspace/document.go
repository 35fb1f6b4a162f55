package workspace

import "slices"

// DocumentKind separates the three document lists a project carries.
type DocumentKind int

const (
	// KindSource is a compiled source file.
	KindSource DocumentKind = iota
	// KindAdditional is a non-source file handed to analyzers.
	KindAdditional
	// KindAnalyzerConfig is an .editorconfig or .globalconfig file.
	KindAnalyzerConfig
)

// String returns a human-readable name for the kind.
func (k DocumentKind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindAdditional:
		return "additional"
	case KindAnalyzerConfig:
		return "analyzer-config"
	default:
		return "unknown"
	}
}

// SourceCodeKind tells the parser how to treat a source document.
type SourceCodeKind int

const (
	SourceCodeRegular SourceCodeKind = iota
	SourceCodeScript
)

// DocumentInfo describes a document as it is stored in a Solution.
type DocumentInfo struct {
	ID             DocumentID
	Kind           DocumentKind
	Name           string
	FilePath       string
	Folders        []string
	SourceCodeKind SourceCodeKind

	// IsGenerated marks documents produced by a dynamic file provider.
	IsGenerated bool

	// Text is the last text handed to the model. The engine treats it as
	// opaque.
	Text string

	// Version increases every time Text is replaced.
	Version int
}

func (d DocumentInfo) clone() DocumentInfo {
	d.Folders = slices.Clone(d.Folders)
	return d
}
