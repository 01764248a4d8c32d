package ndarray

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDType(t *testing.T) {
	tests := []struct {
		dtype DType
		name  string
		size  int
	}{
		{Bool, "bool", 1},
		{Int8, "int8", 1},
		{Int16, "int16", 2},
		{Int32, "int32", 4},
		{Int64, "int64", 8},
		{Uint8, "uint8", 1},
		{Uint16, "uint16", 2},
		{Uint32, "uint32", 4},
		{Uint64, "uint64", 8},
		{Float32, "float32", 4},
		{Float64, "float64", 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.dtype.String())
			assert.Equal(t, tt.size, tt.dtype.Size())

			parsed, err := ParseDType(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.dtype, parsed)

			text, err := tt.dtype.MarshalText()
			require.NoError(t, err)
			var back DType
			require.NoError(t, back.UnmarshalText(text))
			assert.Equal(t, tt.dtype, back)
		})
	}

	_, err := ParseDType("complex128")
	assert.ErrorIs(t, err, ErrInvalidDType)
	_, err = Invalid.MarshalText()
	assert.ErrorIs(t, err, ErrInvalidDType)
	assert.Equal(t, "dtype(42)", DType(42).String())
}

func TestDTypeOf(t *testing.T) {
	assert.Equal(t, Float64, DTypeOf[float64]())
	assert.Equal(t, Uint16, DTypeOf[uint16]())
	assert.Equal(t, Bool, DTypeOf[bool]())
}

func TestFromSliceValues(t *testing.T) {
	a, err := FromSlice([]int16{1, -2, 3, -4, 5, -6}, 2, 3)
	require.NoError(t, err)

	if diff := cmp.Diff([]int{2, 3}, a.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Int16, a.DType())
	assert.Equal(t, 6, a.Size())
	assert.Equal(t, 12, a.NBytes())
	assert.Equal(t, 2, a.Ndim())

	vals, err := Values[int16](a)
	require.NoError(t, err)
	if diff := cmp.Diff([]int16{1, -2, 3, -4, 5, -6}, vals); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	_, err = Values[float32](a)
	assert.ErrorIs(t, err, ErrDTypeMismatch)

	_, err = FromSlice([]float64{1, 2, 3}, 2, 2)
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = FromSlice([]float64{}, -1)
	assert.ErrorIs(t, err, ErrInvalidShape)

	flat := MustFromSlice([]bool{true, false, true})
	assert.Equal(t, []int{3}, flat.Shape())
	assert.Equal(t, 2.0, flat.Sum())
}

func TestNew(t *testing.T) {
	_, err := New(Float32, []int{2, 2}, make([]byte, 15))
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = New(Invalid, []int{1}, make([]byte, 1))
	assert.ErrorIs(t, err, ErrInvalidDType)

	// Shape is copied.
	shape := []int{2, 2}
	a, err := New(Float32, shape, make([]byte, 16))
	require.NoError(t, err)
	shape[0] = 9
	assert.Equal(t, []int{2, 2}, a.Shape())

	scalar, err := Zeros(Float64)
	require.NoError(t, err)
	assert.Equal(t, 1, scalar.Size())
	assert.Equal(t, 0, scalar.Len())
}

func TestIndex(t *testing.T) {
	a := MustFromSlice([]uint8{1, 2, 3, 4, 5, 6}, 3, 2)

	row, err := a.Index(1)
	require.NoError(t, err)
	assert.True(t, row.Equal(MustFromSlice([]uint8{3, 4})))

	last, err := a.Index(-1)
	require.NoError(t, err)
	assert.True(t, last.Equal(MustFromSlice([]uint8{5, 6})))

	_, err = a.Index(3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = a.Index(-4)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestFloat64s(t *testing.T) {
	tests := []struct {
		name string
		arr  *Array
		want []float64
	}{
		{"int8", MustFromSlice([]int8{-1, 2}), []float64{-1, 2}},
		{"uint16", MustFromSlice([]uint16{65535, 0}), []float64{65535, 0}},
		{"int32", MustFromSlice([]int32{-70000, 1}), []float64{-70000, 1}},
		{"uint32", MustFromSlice([]uint32{4000000000}), []float64{4000000000}},
		{"int64", MustFromSlice([]int64{-5}), []float64{-5}},
		{"uint64", MustFromSlice([]uint64{7}), []float64{7}},
		{"float32", MustFromSlice([]float32{1.5, -0.25}), []float64{1.5, -0.25}},
		{"float64", MustFromSlice([]float64{3.25}), []float64{3.25}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.arr.Float64s())
		})
	}
}

func TestStack(t *testing.T) {
	a := MustFromSlice([]float32{1, 2}, 2)
	b := MustFromSlice([]float32{3, 4}, 2)

	s, err := Stack([]*Array{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, s.Shape())
	assert.True(t, s.Equal(MustFromSlice([]float32{1, 2, 3, 4}, 2, 2)))

	empty, err := StackInto(Float32, []int{3, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 3}, empty.Shape())

	_, err = Stack(nil)
	assert.ErrorIs(t, err, ErrInvalidShape)

	_, err = Stack([]*Array{a, MustFromSlice([]float64{3, 4})})
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestEqual(t *testing.T) {
	a := MustFromSlice([]float64{1, 2, 3, 4}, 2, 2)
	assert.True(t, a.Equal(MustFromSlice([]float64{1, 2, 3, 4}, 2, 2)))
	assert.False(t, a.Equal(MustFromSlice([]float64{1, 2, 3, 4}, 4)))
	assert.False(t, a.Equal(MustFromSlice([]float32{1, 2, 3, 4}, 2, 2)))
	assert.False(t, a.Equal(nil))
	assert.Equal(t, "ndarray(shape=[2 2], dtype=float64)", a.String())
}
