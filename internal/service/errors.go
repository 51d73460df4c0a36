package service

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned by Run when the attempt was cancelled by the caller.
	ErrCancelled = errors.New("enrollment cancelled")
	// ErrCaptureLost is returned when the camera keeps failing to produce frames.
	ErrCaptureLost = errors.New("camera stopped producing frames")
	// ErrInvalidTransition is returned for a state change the machine does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrAlreadyStarted is returned by a second Run on the same Manager.
	ErrAlreadyStarted = errors.New("enrollment already started")
)

// AcquisitionError means the camera could not be opened.
type AcquisitionError struct {
	Device int
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("camera %d unavailable: %v", e.Device, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// ConnectionError means the collector channel could not be established.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("collector %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
