package projectsystem

import "errors"

// Contract violations. These are returned before any state is modified.
var (
	// ErrAlreadyAdded is returned when adding a file or reference that the
	// project already has.
	ErrAlreadyAdded = errors.New("already added to project")

	// ErrNotFound is returned when removing a file or reference that the
	// project does not have.
	ErrNotFound = errors.New("not found in project")

	// ErrInvalidPath is returned for empty or relative paths.
	ErrInvalidPath = errors.New("path must be absolute")

	// ErrInvalidProperty is returned for a build property without a name.
	ErrInvalidProperty = errors.New("invalid build property")

	// ErrSelfReference is returned when a project is made to reference itself.
	ErrSelfReference = errors.New("project cannot reference itself")

	// ErrCircularReference is returned when a project reference would make
	// the referenced project depend on the referencing one.
	ErrCircularReference = errors.New("project reference would create a cycle")

	// ErrUnknownLanguage is returned when creating a project in a language the
	// store does not know.
	ErrUnknownLanguage = errors.New("unknown language")

	// ErrProjectRemoved is returned by every operation on a project after it
	// has been removed from the workspace.
	ErrProjectRemoved = errors.New("project has been removed from the workspace")

	// ErrScopeClosed is returned when a batch scope is closed twice.
	ErrScopeClosed = errors.New("batch scope already closed")

	// ErrInvalidOrder is returned when a reorder does not name exactly the
	// project's current source files.
	ErrInvalidOrder = errors.New("reorder must name every source file exactly once")
)

var contractViolations = []error{
	ErrAlreadyAdded,
	ErrNotFound,
	ErrInvalidPath,
	ErrInvalidProperty,
	ErrSelfReference,
	ErrCircularReference,
	ErrUnknownLanguage,
	ErrProjectRemoved,
	ErrScopeClosed,
	ErrInvalidOrder,
}

// IsContractViolation reports whether err was caused by invalid caller input.
// Such errors are not retryable and left no partial change behind.
func IsContractViolation(err error) bool {
	for _, target := range contractViolations {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
