package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad is returned for short or malformed frame data and for reads
	// from a store whose last load failed.
	ErrLoad = errors.New("frame load failed")

	// ErrShapeMismatch is returned when two frames of different geometry are combined.
	ErrShapeMismatch = errors.New("frame shape mismatch")

	// ErrIndexOutOfRange is returned for raw access outside the frame geometry.
	ErrIndexOutOfRange = errors.New("frame index out of range")
)

// LoadError describes why a file or buffer could not be loaded.
type LoadError struct {
	Path   string
	Reason string
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %s", ErrLoad, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrLoad, e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error { return ErrLoad }

// IndexError records the coordinates of an out-of-range access.
type IndexError struct {
	Foil, Timechannel, X, Y int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%v: foil %d, time channel %d, pixel (%d,%d)",
		ErrIndexOutOfRange, e.Foil, e.Timechannel, e.X, e.Y)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }
