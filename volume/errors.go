package volume

import (
	"errors"
	"fmt"
)

var (
	ErrDegenerateMesh = errors.New("volume: mesh has no triangles")
	ErrZeroRadius     = errors.New("volume: mesh bound has zero radius")
	ErrNoRayTracing   = errors.New("volume: device does not support ray tracing")
	ErrNoPrograms     = errors.New("volume: no program loader configured")
	ErrBadFrameCount  = errors.New("volume: frame count must be 2 or 3")
	ErrAlreadyInit    = errors.New("volume: Init may only be called once")
	ErrBadFrameIndex  = errors.New("volume: frame index out of range")
)

// InitError is returned by Init; Step names the initialization step that
// failed. Once Init fails the volume is permanently unusable.
type InitError struct {
	Step string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("volume: init failed while trying to %s: %v", e.Step, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
