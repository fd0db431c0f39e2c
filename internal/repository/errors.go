// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as the
// checkout services to distinguish between different failure scenarios
// without inspecting driver errors themselves.
package repository

import "errors"

// ErrNotFound is returned when the referenced row (event, catalog item,
// order) does not exist.  Services translate it into a 404.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when a user insert collides with the unique
// email index.  During a membership signup this means another request
// registered the same address concurrently.
var ErrEmailExists = errors.New("email already exists")
