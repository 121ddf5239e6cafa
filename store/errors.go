package store

import "errors"

// Sentinel errors returned by Store operations. A lost version race is not
// represented as a sentinel error: UpdateStatus reports it via its claimed
// bool return instead, and callers treat that as a normal no-op rather than
// a failure to handle.
var (
	ErrNotFound = errors.New("store: task not found")
	ErrExists   = errors.New("store: task already exists")
)
