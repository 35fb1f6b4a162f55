package workspace

import "github.com/google/uuid"

// ProjectID identifies a project for as long as it is part of a Store.
type ProjectID uuid.UUID

// NewProjectID returns a fresh, globally unique project id.
func NewProjectID() ProjectID {
	return ProjectID(uuid.New())
}

// String returns the canonical UUID form of the id.
func (id ProjectID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero value.
func (id ProjectID) IsZero() bool {
	return id == ProjectID{}
}

// DocumentID identifies a document within its owning project.
type DocumentID struct {
	ProjectID ProjectID
	ID        uuid.UUID
}

// NewDocumentID returns a fresh document id owned by projectID.
func NewDocumentID(projectID ProjectID) DocumentID {
	return DocumentID{ProjectID: projectID, ID: uuid.New()}
}

// String returns "<project>/<document>".
func (id DocumentID) String() string {
	return id.ProjectID.String() + "/" + id.ID.String()
}

// IsZero reports whether id is the zero value.
func (id DocumentID) IsZero() bool {
	return id == DocumentID{}
}
