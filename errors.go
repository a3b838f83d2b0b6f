package cachez

import "errors"

var (
	// ErrOwnerUnavailable is returned when an instance-scoped wrapper is called without an owner.
	ErrOwnerUnavailable = errors.New("cachez: owner not available")

	// ErrUnhashableArgument is returned when a call argument cannot be part of a cache key.
	ErrUnhashableArgument = errors.New("cachez: unhashable argument")

	// ErrNilFunc is returned by wrappers built around a nil function.
	ErrNilFunc = errors.New("cachez: wrapped function is nil")
)
