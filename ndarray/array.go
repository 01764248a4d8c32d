package ndarray

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// Array is a dense, C-ordered N-dimensional array of a single dtype.
//
// Elements are held as little-endian bytes, which is also their on-disk
// representation inside a container. A zero-dimensional array (empty shape)
// holds exactly one element.
type Array struct {
	shape []int
	dtype DType
	data  []byte
}

// New wraps raw little-endian element bytes. data is retained, not copied.
func New(dtype DType, shape []int, data []byte) (*Array, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDType, uint8(dtype))
	}
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n*dtype.Size() {
		return nil, fmt.Errorf("%w: shape %v of %s needs %d bytes, got %d",
			ErrInvalidShape, shape, dtype, n*dtype.Size(), len(data))
	}
	return &Array{shape: slices.Clone(shape), dtype: dtype, data: data}, nil
}

// Zeros returns a zero-filled array.
func Zeros(dtype DType, shape ...int) (*Array, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	return New(dtype, shape, make([]byte, n*dtype.Size()))
}

// FromSlice builds an array from Go values. The shape defaults to a 1-D
// array of len(values).
func FromSlice[T Element](values []T, shape ...int) (*Array, error) {
	if len(shape) == 0 {
		shape = []int{len(values)}
	}
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(values) {
		return nil, fmt.Errorf("%w: shape %v holds %d elements, got %d", ErrInvalidShape, shape, n, len(values))
	}
	data, err := binary.Append(make([]byte, 0, n*DTypeOf[T]().Size()), binary.LittleEndian, values)
	if err != nil {
		return nil, err
	}
	return New(DTypeOf[T](), shape, data)
}

// MustFromSlice is like FromSlice but panics on error.
func MustFromSlice[T Element](values []T, shape ...int) *Array {
	a, err := FromSlice(values, shape...)
	if err != nil {
		panic(err)
	}
	return a
}

// Values decodes the elements of a as a flat []T. T must match the dtype.
func Values[T Element](a *Array) ([]T, error) {
	if want := DTypeOf[T](); a.dtype != want {
		return nil, fmt.Errorf("%w: array is %s, requested %s", ErrDTypeMismatch, a.dtype, want)
	}
	out := make([]T, a.Size())
	if _, err := binary.Decode(a.data, binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Shape returns a copy of the array's dimensions.
func (a *Array) Shape() []int { return slices.Clone(a.shape) }

// Ndim returns the number of dimensions.
func (a *Array) Ndim() int { return len(a.shape) }

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Size returns the number of elements.
func (a *Array) Size() int { return len(a.data) / a.dtype.Size() }

// NBytes returns the size of the element data in bytes.
func (a *Array) NBytes() int { return len(a.data) }

// Bytes returns the raw little-endian element data. The slice aliases the
// array and must be treated as read-only.
func (a *Array) Bytes() []byte { return a.data }

// Len returns the length of the leading axis (0 for a scalar).
func (a *Array) Len() int {
	if len(a.shape) == 0 {
		return 0
	}
	return a.shape[0]
}

// Index returns the i-th sub-array along the leading axis. Negative i counts
// from the end. The result aliases a.
func (a *Array) Index(i int) (*Array, error) {
	n := a.Len()
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("%w: %d with length %d", ErrIndexOutOfRange, i, n)
	}
	stride := len(a.data) / n
	return &Array{
		shape: slices.Clone(a.shape[1:]),
		dtype: a.dtype,
		data:  a.data[i*stride : (i+1)*stride : (i+1)*stride],
	}, nil
}

// Float64s converts every element to float64 regardless of dtype.
func (a *Array) Float64s() []float64 {
	size := a.dtype.Size()
	out := make([]float64, a.Size())
	le := binary.LittleEndian
	for i := range out {
		b := a.data[i*size:]
		switch a.dtype {
		case Bool, Uint8:
			out[i] = float64(b[0])
		case Int8:
			out[i] = float64(int8(b[0]))
		case Int16:
			out[i] = float64(int16(le.Uint16(b)))
		case Uint16:
			out[i] = float64(le.Uint16(b))
		case Int32:
			out[i] = float64(int32(le.Uint32(b)))
		case Uint32:
			out[i] = float64(le.Uint32(b))
		case Int64:
			out[i] = float64(int64(le.Uint64(b)))
		case Uint64:
			out[i] = float64(le.Uint64(b))
		case Float32:
			out[i] = float64(math.Float32frombits(le.Uint32(b)))
		case Float64:
			out[i] = math.Float64frombits(le.Uint64(b))
		}
	}
	return out
}

// Sum returns the sum of all elements as float64.
func (a *Array) Sum() float64 {
	var s float64
	for _, v := range a.Float64s() {
		s += v
	}
	return s
}

// Equal reports whether a and b have the same shape, dtype and elements.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.dtype == b.dtype && slices.Equal(a.shape, b.shape) && bytes.Equal(a.data, b.data)
}

// String implements fmt.Stringer.
func (a *Array) String() string {
	return fmt.Sprintf("ndarray(shape=%v, dtype=%s)", a.shape, a.dtype)
}

// Stack joins arrays of identical shape and dtype along a new leading axis.
// Stacking zero arrays needs the item shape and dtype, so use StackInto for
// possibly empty inputs.
func Stack(items []*Array) (*Array, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: nothing to stack", ErrInvalidShape)
	}
	return StackInto(items[0].dtype, items[0].shape, items)
}

// StackInto is like Stack but takes the item shape and dtype explicitly, so
// an empty input yields an array of shape (0, *itemShape).
func StackInto(dtype DType, itemShape []int, items []*Array) (*Array, error) {
	itemBytes, err := numElements(itemShape)
	if err != nil {
		return nil, err
	}
	itemBytes *= dtype.Size()
	data := make([]byte, 0, len(items)*itemBytes)
	for i, it := range items {
		if it.dtype != dtype || !slices.Equal(it.shape, itemShape) {
			return nil, fmt.Errorf("%w: item %d is %v %s, want %v %s",
				ErrInvalidShape, i, it.shape, it.dtype, itemShape, dtype)
		}
		data = append(data, it.data...)
	}
	return New(dtype, append([]int{len(items)}, itemShape...), data)
}

// NumElements returns the product of shape, validating every dimension.
func NumElements(shape []int) (int, error) { return numElements(shape) }

func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in %v", ErrInvalidShape, shape)
		}
		n *= d
	}
	return n, nil
}
