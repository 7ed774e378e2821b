package domain

import "errors"

// ErrNotFound is returned when an entity referenced by ID does not exist.
var ErrNotFound = errors.New("not found")
