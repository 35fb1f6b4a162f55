package filewatch

import "errors"

var (
	// ErrNotWatched is returned when releasing an identity that holds no watch.
	ErrNotWatched = errors.New("identity is not being watched")

	// ErrPathMismatch is returned when an identity is started again for a
	// different path.
	ErrPathMismatch = errors.New("identity is already watching a different path")

	// ErrInvalidPath is returned for empty or relative paths.
	ErrInvalidPath = errors.New("watch path must be absolute")

	// ErrClosed is returned after the registry or watcher has been closed.
	ErrClosed = errors.New("file watch registry is closed")
)
