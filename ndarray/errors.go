package ndarray

import "errors"

var (
	// ErrInvalidDType is returned for unknown element types.
	ErrInvalidDType = errors.New("ndarray: invalid dtype")
	// ErrInvalidShape is returned for negative dimensions or data whose length
	// does not match the shape.
	ErrInvalidShape = errors.New("ndarray: invalid shape")
	// ErrDTypeMismatch is returned when a typed accessor does not match the
	// array's dtype.
	ErrDTypeMismatch = errors.New("ndarray: dtype mismatch")
	// ErrIndexOutOfRange is returned by Index for out-of-range positions.
	ErrIndexOutOfRange = errors.New("ndarray: index out of range")
)
