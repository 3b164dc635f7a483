package store

import "errors"

var (
	// ErrNotFound is returned when a row doesn't exist or is deleted (has TTL <= now).
	ErrNotFound = errors.New("unnest: row not found")

	// ErrHasChildren is returned when attempting to delete a row with active children.
	ErrHasChildren = errors.New("unnest: row has active children")

	// ErrUnprocessed is returned when batch writes are still unprocessed after all retries.
	ErrUnprocessed = errors.New("unnest: batch write left unprocessed items")

	// ErrInvalidRow is returned when a row cannot be stored.
	ErrInvalidRow = errors.New("unnest: invalid row")
)
