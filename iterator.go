package imagestack

import (
	"iter"

	"github.com/hupe1980/imagestack/ndarray"
)

// All returns an iterator over (index, image) pairs in append order. The
// length is read once when iteration starts, so images appended during
// iteration are not visited. Iteration stops at the first read error; use
// Iter to observe it.
func (s *ImageStack) All() iter.Seq2[int, *ndarray.Array] {
	return func(yield func(int, *ndarray.Array) bool) {
		it := s.Iter()
		for it.Next() {
			if !yield(it.Index(), it.Image()) {
				return
			}
		}
	}
}

// Iterator walks the images of a stack in append order.
//
//	it := s.Iter()
//	for it.Next() {
//	    img := it.Image()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	s   *ImageStack
	n   int
	i   int
	img *ndarray.Array
	err error
}

// Iter returns an Iterator positioned before the first image. The length
// is fixed when Iter is called.
func (s *ImageStack) Iter() *Iterator {
	it := &Iterator{s: s, i: -1}
	if err := s.checkOpen(); err != nil {
		it.err = err
		return it
	}
	it.n = s.images.Len()
	return it
}

// Next advances to the next image and reports whether there is one.
func (it *Iterator) Next() bool {
	if it.err != nil || it.i+1 >= it.n {
		it.img = nil
		return false
	}
	it.i++
	img, err := it.s.At(it.i)
	if err != nil {
		it.err = err
		it.img = nil
		return false
	}
	it.img = img
	return true
}

// Index returns the index of the current image.
func (it *Iterator) Index() int { return it.i }

// Image returns the current image.
func (it *Iterator) Image() *ndarray.Array { return it.img }

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error { return it.err }
