package session

import "errors"

// Registry failure taxonomy. All are values surfaced to the dispatch layer;
// none are fatal to the process.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRole     = errors.New("invalid role")
	ErrRoleTaken       = errors.New("role already taken")
	ErrInvalidLiftType = errors.New("invalid lift type")
	ErrEmptyName       = errors.New("session name cannot be empty")
)
