package container

import (
	"fmt"

	"github.com/hupe1980/imagestack/metadata"
	"github.com/hupe1980/imagestack/ndarray"
)

// Batch stages at most one item per object and appends them together, so
// objects that must stay aligned grow in lock step.
type Batch struct {
	c     *File
	items []staged
}

// NewBatch starts an empty batch.
func (c *File) NewBatch() *Batch {
	return &Batch{c: c}
}

func (b *Batch) stage(o *object, data []byte) error {
	for _, s := range b.items {
		if s.o == o {
			return fmt.Errorf("container: %q staged twice in one batch", o.name)
		}
	}
	b.items = append(b.items, staged{o: o, data: data})
	return nil
}

// AppendArray stages img for a. Shape and dtype are checked immediately.
func (b *Batch) AppendArray(a *Array, img *ndarray.Array) error {
	if err := a.Check(img); err != nil {
		return err
	}
	return b.stage(a.o, img.Bytes())
}

// AppendTable stages rec for t. The record is validated and encoded
// immediately; the error wraps metadata.ErrSchemaMismatch.
func (b *Batch) AppendTable(t *Table, rec metadata.Record) error {
	row, err := t.o.schema.Encode(nil, rec)
	if err != nil {
		return err
	}
	return b.stage(t.o, row)
}

// Commit appends every staged item. On error no object changes length.
func (b *Batch) Commit() error {
	if len(b.items) == 0 {
		return nil
	}
	return b.c.commit(b.items)
}
