package store

import "errors"

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrDuplicateKey      = errors.New("already exists")
	ErrConcurrentUpdate  = errors.New("row changed concurrently")
	ErrInvalidTransition = errors.New("invalid status transition")
)
