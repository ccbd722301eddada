package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStorageWrite    = errors.New("storage write failed")
	ErrStorageRead     = errors.New("storage read failed")

	// ErrCreation and ErrUpdate wrap failures in the multi-step create and update sequences.
	ErrCreation = errors.New("could not create station")
	ErrUpdate   = errors.New("could not update station")
)

// ErrImageMissing is returned when a requested image does not exist.
// It matches ErrNotFound with errors.Is.
var ErrImageMissing = &imageMissingError{}

type imageMissingError struct{}

func (*imageMissingError) Error() string { return "image missing" }

func (*imageMissingError) Unwrap() error { return ErrNotFound }
