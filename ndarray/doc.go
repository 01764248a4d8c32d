// Package ndarray provides the dense N-dimensional arrays stored in an image
// stack.
//
// An [Array] is a shape, a [DType] and the little-endian element bytes. Typed
// access goes through the generic helpers:
//
//	img, _ := ndarray.FromSlice([]float64{1, 2, 3, 4}, 2, 2)
//	vals, _ := ndarray.Values[float64](img)
//
// Stacked reads (slices, fancy indexing) return arrays of shape
// (n, *itemShape) built with [StackInto].
package ndarray
