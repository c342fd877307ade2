package types

import "errors"

var (
	// ErrNotFound is returned when a point-read finds no document for the key.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned when a write-once document is written twice.
	ErrAlreadyExists = errors.New("document already exists")
)
