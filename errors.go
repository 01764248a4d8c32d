package imagestack

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/imagestack/container"
	"github.com/hupe1980/imagestack/metadata"
	"github.com/hupe1980/imagestack/ndarray"
)

var (
	// ErrNotFound is returned when the backing file does not exist. Errors
	// wrapping it also match os.ErrNotExist.
	ErrNotFound = errors.New("imagestack: file not found")

	// ErrMissingObject is returned when an existing file has no image array.
	ErrMissingObject = errors.New("imagestack: file has no image array")

	// ErrOutOfBounds is returned for image or row indices outside the stack.
	ErrOutOfBounds = errors.New("imagestack: index out of bounds")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("imagestack: stack is closed")

	// ErrReadOnly is returned when appending to a stack opened read-only.
	ErrReadOnly = errors.New("imagestack: stack is read-only")

	// ErrNoMetadata is returned when reading metadata from a stack without a table.
	ErrNoMetadata = errors.New("imagestack: stack has no metadata table")

	// ErrMetadataRequired is returned under AlignStrict when an image is
	// appended without metadata to a stack that has a metadata table.
	ErrMetadataRequired = errors.New("imagestack: metadata required")

	// ErrNoMetadataTable is returned under AlignStrict when metadata is
	// supplied to a stack without a metadata table.
	ErrNoMetadataTable = errors.New("imagestack: metadata given but stack has no metadata table")

	// ErrTemplateRequired is returned when a new file is requested without
	// a template image.
	ErrTemplateRequired = errors.New("imagestack: template image required")

	// ErrCorrupted is returned when stored data fails verification.
	ErrCorrupted = container.ErrCorrupted
)

// ShapeMismatchError indicates an image whose dtype or shape differs from the
// stack's item descriptor. Nothing is written when it is returned.
//
// The original underlying error can be accessed via errors.Unwrap.
type ShapeMismatchError struct {
	ExpectedDType ndarray.DType
	ExpectedShape []int
	ActualDType   ndarray.DType
	ActualShape   []int
	cause         error
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("imagestack: shape mismatch: expected %s%v, got %s%v",
		e.ExpectedDType, e.ExpectedShape, e.ActualDType, e.ActualShape)
}

func (e *ShapeMismatchError) Unwrap() error { return e.cause }

// SchemaMismatchError indicates metadata that does not fit the table schema.
// Neither the image nor the row is written when it is returned.
//
// The original underlying error can be accessed via errors.Unwrap.
type SchemaMismatchError struct {
	Field  string
	Reason string
	cause  error
}

func (e *SchemaMismatchError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("imagestack: schema mismatch: %v", e.cause)
	}
	return fmt.Sprintf("imagestack: schema mismatch: field %q: %s", e.Field, e.Reason)
}

func (e *SchemaMismatchError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, container.ErrMissingObject) {
		return fmt.Errorf("%w: %w", ErrMissingObject, err)
	}
	if errors.Is(err, container.ErrOutOfRange) {
		return fmt.Errorf("%w: %w", ErrOutOfBounds, err)
	}
	if errors.Is(err, container.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, container.ErrReadOnly) {
		return fmt.Errorf("%w: %w", ErrReadOnly, err)
	}

	var fe *metadata.FieldError
	if errors.As(err, &fe) {
		return &SchemaMismatchError{Field: fe.Field, Reason: fe.Reason, cause: err}
	}
	if errors.Is(err, metadata.ErrSchemaMismatch) {
		return &SchemaMismatchError{cause: err}
	}
	if errors.Is(err, container.ErrShapeMismatch) {
		return &ShapeMismatchError{cause: err}
	}

	return err
}
