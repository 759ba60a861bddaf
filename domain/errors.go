package domain

import "errors"

var (
	// ErrInternalServerError will throw if any the Internal Server Error happen
	ErrInternalServerError = errors.New("internal server error")
	// ErrNotFound will throw if the requested item is not exists
	ErrNotFound = errors.New("your requested item is not found")
	// ErrConflict will throw if the requested toggle is a no-op for the current state
	ErrConflict = errors.New("your item already exist")
	// ErrBadParamInput will throw if the given request-body or params is not valid
	ErrBadParamInput = errors.New("given param is not valid")
	// ErrCacheMiss means the backing store holds no value for the key
	ErrCacheMiss = errors.New("cache miss")

	ErrAlreadyLiked = &conflictError{msg: "user already liked this item"}
	ErrNotLiked     = &conflictError{msg: "user has not liked this item"}

	// ErrBackingStoreUnavailable wraps any key-value store failure other than a miss
	ErrBackingStoreUnavailable = errors.New("backing store unavailable")
	// ErrBrokerUnavailable wraps publish/receive failures of the message broker
	ErrBrokerUnavailable = errors.New("message broker unavailable")
	// ErrPoisonMessage marks an event that cannot be decoded or applied
	ErrPoisonMessage = errors.New("poison message")
	// ErrSliceBusy is returned when another flush holds the slice lock
	ErrSliceBusy = errors.New("time slice is being flushed by another worker")
)

// conflictError is a distinguishable redundant-toggle error that still
// matches ErrConflict through errors.Is.
type conflictError struct {
	msg string
}

func (e *conflictError) Error() string { return e.msg }

func (e *conflictError) Is(target error) bool { return target == ErrConflict }
