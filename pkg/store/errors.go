package store

import "errors"

var (
	// ErrFormationNotFound means no formation row with that id
	ErrFormationNotFound = errors.New("formation not found")

	// ErrFormationExists means the formation id is already taken
	ErrFormationExists = errors.New("formation already exists")

	// ErrNodeNotFound means no node row with that id or address
	ErrNodeNotFound = errors.New("node not found")

	// ErrNodeExists means a node row with that address is already registered
	ErrNodeExists = errors.New("node already registered")
)
