package domain

import (
	"errors"
	"fmt"
)

// Pipeline errors. None of them is fatal; each degrades or skips a single unit.
var (
	// ErrMalformedFrame indicates a buffer too short for its kind, or declared sizes exceeding the buffer.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownMessageKind indicates a header nibble with no decoder.
	ErrUnknownMessageKind = errors.New("unknown message kind")

	// ErrInvalidIdentity indicates a candidate identity that failed shape validation.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrInvalidCoordinate indicates a latitude/longitude out of range or exactly (0,0).
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrStaleAddressMapping indicates an address lookup miss after eviction.
	ErrStaleAddressMapping = errors.New("stale address mapping")
)

// FrameError wraps a decode failure with the kind and sizes involved.
type FrameError struct {
	Kind MessageKind
	Need int
	Have int
	Err  error
}

func (e *FrameError) Error() string {
	if e.Need > 0 {
		return fmt.Sprintf("decode %s: need %d bytes, have %d: %v", e.Kind, e.Need, e.Have, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
