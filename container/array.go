package container

import (
	"fmt"
	"slices"

	"github.com/hupe1980/imagestack/ndarray"
)

// Array is a growable N-D array object with a fixed item shape and dtype.
// Its shape is (Len(), *ItemShape()).
type Array struct {
	c *File
	o *object
}

// Name returns the object name.
func (a *Array) Name() string { return a.o.name }

// DType returns the element type of every item.
func (a *Array) DType() ndarray.DType { return a.o.dtype }

// ItemShape returns the shape of one item.
func (a *Array) ItemShape() []int { return slices.Clone(a.o.itemShape) }

// Len returns the number of items, including unflushed ones.
func (a *Array) Len() int { return a.o.length() }

// Shape returns (Len(), *ItemShape()).
func (a *Array) Shape() []int {
	return append([]int{a.o.length()}, a.o.itemShape...)
}

// Check reports whether img matches the item descriptor. The error wraps
// ErrShapeMismatch.
func (a *Array) Check(img *ndarray.Array) error {
	if img == nil {
		return fmt.Errorf("%w: nil item", ErrShapeMismatch)
	}
	if img.DType() != a.o.dtype || !slices.Equal(img.Shape(), a.o.itemShape) {
		return fmt.Errorf("%w: got %s%v, want %s%v",
			ErrShapeMismatch, img.DType(), img.Shape(), a.o.dtype, a.o.itemShape)
	}
	return nil
}

// Append adds one item. It is not durable until the container is flushed.
func (a *Array) Append(img *ndarray.Array) error {
	b := a.c.NewBatch()
	if err := b.AppendArray(a, img); err != nil {
		return err
	}
	return b.Commit()
}

// At returns a copy of item i.
func (a *Array) At(i int) (*ndarray.Array, error) {
	raw, err := a.c.item(a.o, i)
	if err != nil {
		return nil, err
	}
	return ndarray.New(a.o.dtype, a.o.itemShape, slices.Clone(raw))
}

// Slice returns items [start, stop) stacked along a new leading axis.
func (a *Array) Slice(start, stop int) (*ndarray.Array, error) {
	if start < 0 || stop < start || stop > a.o.length() {
		return nil, fmt.Errorf("%w: [%d, %d) not within [0, %d)", ErrOutOfRange, start, stop, a.o.length())
	}
	indices := make([]int, 0, stop-start)
	for i := start; i < stop; i++ {
		indices = append(indices, i)
	}
	return a.Take(indices)
}

// Take returns the given items, in order, stacked along a new leading axis.
// Duplicates are allowed.
func (a *Array) Take(indices []int) (*ndarray.Array, error) {
	if a.c.closed {
		return nil, ErrClosed
	}
	for _, i := range indices {
		if i < 0 || i >= a.o.length() {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, a.o.length())
		}
	}
	data := make([]byte, 0, len(indices)*a.o.itemSize)
	for _, i := range indices {
		raw, err := a.c.item(a.o, i)
		if err != nil {
			return nil, err
		}
		data = append(data, raw...)
	}
	return ndarray.New(a.o.dtype, append([]int{len(indices)}, a.o.itemShape...), data)
}
