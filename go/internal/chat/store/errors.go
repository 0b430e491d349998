package store

import "errors"

// ErrUnknownMessage is returned when an operation names a message the log does not hold
var ErrUnknownMessage = errors.New("unknown message")

// ErrAlreadyDeleted is returned when a patch targets a deleted message
var ErrAlreadyDeleted = errors.New("message already deleted")

// ErrInvalidPatch is returned for a deletion without a valid attribution
var ErrInvalidPatch = errors.New("invalid patch")

// ErrNotFailed is returned when retrying or discarding a message that has not failed
var ErrNotFailed = errors.New("message has not failed")
