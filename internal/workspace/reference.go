package workspace

import (
	"slices"
	"strings"
)

// MetadataReferenceProperties are the properties that distinguish two
// references to the same file.
type MetadataReferenceProperties struct {
	// Aliases are the extern aliases the reference is imported under.
	// A nil and an empty slice are equivalent.
	Aliases []string

	// EmbedInteropTypes embeds interop types from the referenced assembly.
	EmbedInteropTypes bool
}

// Equal reports whether p and o have the same aliases, in order, and the same
// interop embedding.
func (p MetadataReferenceProperties) Equal(o MetadataReferenceProperties) bool {
	return p.EmbedInteropTypes == o.EmbedInteropTypes && slices.Equal(p.Aliases, o.Aliases)
}

// Key returns a canonical string for p, suitable as a map key.
func (p MetadataReferenceProperties) Key() string {
	var b strings.Builder
	b.WriteString(strings.Join(p.Aliases, ","))
	if p.EmbedInteropTypes {
		b.WriteString("|embed")
	}
	return b.String()
}

func (p MetadataReferenceProperties) clone() MetadataReferenceProperties {
	return MetadataReferenceProperties{
		Aliases:           slices.Clone(p.Aliases),
		EmbedInteropTypes: p.EmbedInteropTypes,
	}
}

// MetadataReference is a reference to a compiled binary on disk.
//
// References are values: two references with the same path, properties and
// generation are interchangeable. Generation is bumped each time the file
// changes on disk, so a refreshed reference never compares equal to the one it
// replaces.
type MetadataReference struct {
	FilePath   string
	Properties MetadataReferenceProperties
	Generation int
}

// NewMetadataReference returns a first-generation reference to path.
func NewMetadataReference(path string, properties MetadataReferenceProperties) MetadataReference {
	return MetadataReference{FilePath: path, Properties: properties.clone()}
}

// Equal reports whether r and o are the same reference.
func (r MetadataReference) Equal(o MetadataReference) bool {
	return r.FilePath == o.FilePath && r.Generation == o.Generation && r.Properties.Equal(o.Properties)
}

// Refreshed returns a reference to the same file with the next generation.
func (r MetadataReference) Refreshed() MetadataReference {
	return MetadataReference{
		FilePath:   r.FilePath,
		Properties: r.Properties.clone(),
		Generation: r.Generation + 1,
	}
}

// ProjectReference is a reference to another project's in-memory model.
type ProjectReference struct {
	ProjectID         ProjectID
	Aliases           []string
	EmbedInteropTypes bool
}

// NewProjectReference returns a reference to projectID carrying properties.
func NewProjectReference(projectID ProjectID, properties MetadataReferenceProperties) ProjectReference {
	return ProjectReference{
		ProjectID:         projectID,
		Aliases:           slices.Clone(properties.Aliases),
		EmbedInteropTypes: properties.EmbedInteropTypes,
	}
}

// Equal reports whether r and o reference the same project with the same
// properties.
func (r ProjectReference) Equal(o ProjectReference) bool {
	return r.ProjectID == o.ProjectID && r.EmbedInteropTypes == o.EmbedInteropTypes && slices.Equal(r.Aliases, o.Aliases)
}

// Properties returns the alias and interop properties of r.
func (r ProjectReference) Properties() MetadataReferenceProperties {
	return MetadataReferenceProperties{
		Aliases:           slices.Clone(r.Aliases),
		EmbedInteropTypes: r.EmbedInteropTypes,
	}
}

// AnalyzerReference is a reference to an analyzer assembly.
type AnalyzerReference struct {
	FullPath string
}
