package store

import "errors"

var (
	// ErrProjectNotFound indicates the requested project does not exist
	ErrProjectNotFound = errors.New("project not found")

	// ErrProjectExists indicates a create collided with an existing project id
	ErrProjectExists = errors.New("project already exists")

	// ErrVersionConflict indicates a script commit with a stale version number
	ErrVersionConflict = errors.New("script version conflict")
)
