package container

import (
	"fmt"
	"slices"

	"github.com/hupe1980/imagestack/metadata"
	"github.com/hupe1980/imagestack/ndarray"
)

// Kind is the kind of a stored object.
type Kind string

const (
	// KindArray is a growable N-D array with a fixed item shape.
	KindArray Kind = "array"
	// KindTable is a growable table of fixed-width records.
	KindTable Kind = "table"
)

// directory is the object table written at the end of every flush.
type directory struct {
	Objects []objectEntry `json:"objects"`
}

type objectEntry struct {
	ID        uint8            `json:"id"`
	Name      string           `json:"name"`
	Kind      Kind             `json:"kind"`
	DType     string           `json:"dtype,omitempty"`
	ItemShape []int            `json:"item_shape,omitempty"`
	Schema    *metadata.Schema `json:"schema,omitempty"`
	Length    int              `json:"length"`
	Chunks    []chunkRef       `json:"chunks"`
}

// chunkRef locates one chunk frame holding items [First, First+Count).
type chunkRef struct {
	Offset int64 `json:"offset"`
	First  int   `json:"first"`
	Count  int   `json:"count"`
}

func (e *objectEntry) validate() error {
	switch e.Kind {
	case KindArray:
		if _, err := ndarray.ParseDType(e.DType); err != nil {
			return err
		}
		if n, err := ndarray.NumElements(e.ItemShape); err != nil || n == 0 {
			return fmt.Errorf("object %q has invalid item shape %v", e.Name, e.ItemShape)
		}
	case KindTable:
		if e.Schema == nil {
			return fmt.Errorf("table %q has no schema", e.Name)
		}
	default:
		return fmt.Errorf("object %q has unknown kind %q", e.Name, e.Kind)
	}

	next := 0
	for _, c := range e.Chunks {
		if c.First != next || c.Count <= 0 || c.Offset < SuperblockSize {
			return fmt.Errorf("object %q has inconsistent chunk list", e.Name)
		}
		next += c.Count
	}
	if next != e.Length {
		return fmt.Errorf("object %q: chunks hold %d items, length is %d", e.Name, next, e.Length)
	}
	return nil
}

// findChunk returns the index of the chunk holding item i.
func findChunk(chunks []chunkRef, i int) int {
	idx, found := slices.BinarySearchFunc(chunks, i, func(c chunkRef, target int) int {
		switch {
		case target < c.First:
			return 1
		case target >= c.First+c.Count:
			return -1
		default:
			return 0
		}
	})
	if !found {
		return -1
	}
	return idx
}
