package storage

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	// ErrVersionConflict means the record changed since it was loaded.
	ErrVersionConflict = errors.New("account version conflict")
)
