package container

import "errors"

var (
	// ErrCorrupted is returned when a checksum or structural check fails.
	ErrCorrupted = errors.New("container: corrupted")
	// ErrInvalidMagic is returned when the file is not a container.
	ErrInvalidMagic = errors.New("container: invalid magic number")
	// ErrInvalidVersion is returned for unsupported format versions.
	ErrInvalidVersion = errors.New("container: unsupported version")
	// ErrClosed is returned when operating on a closed container.
	ErrClosed = errors.New("container: closed")
	// ErrReadOnly is returned when mutating a read-only container.
	ErrReadOnly = errors.New("container: read-only")
	// ErrObjectExists is returned when creating an object whose name is taken.
	ErrObjectExists = errors.New("container: object already exists")
	// ErrMissingObject is returned when a named object does not exist.
	ErrMissingObject = errors.New("container: object not found")
	// ErrWrongKind is returned when an object is opened as the wrong kind.
	ErrWrongKind = errors.New("container: object has a different kind")
	// ErrShapeMismatch is returned when an item's dtype or shape differs
	// from the array's item descriptor.
	ErrShapeMismatch = errors.New("container: shape mismatch")
	// ErrOutOfRange is returned for item indices outside [0, Len).
	ErrOutOfRange = errors.New("container: index out of range")
	// ErrTooManyObjects is returned when the object id space is exhausted.
	ErrTooManyObjects = errors.New("container: too many objects")
)
