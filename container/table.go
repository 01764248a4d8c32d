package container

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/imagestack/metadata"
)

// Table is a growable table of fixed-width records laid out by a
// metadata.Schema.
type Table struct {
	c *File
	o *object
}

// Name returns the object name.
func (t *Table) Name() string { return t.o.name }

// Schema returns the row schema.
func (t *Table) Schema() *metadata.Schema { return t.o.schema }

// Len returns the number of rows, including unflushed ones.
func (t *Table) Len() int { return t.o.length() }

// Append adds one row. It is not durable until the container is flushed.
func (t *Table) Append(rec metadata.Record) error {
	b := t.c.NewBatch()
	if err := b.AppendTable(t, rec); err != nil {
		return err
	}
	return b.Commit()
}

// Row decodes row i.
func (t *Table) Row(i int) (metadata.Record, error) {
	raw, err := t.c.item(t.o, i)
	if err != nil {
		return nil, err
	}
	return t.o.schema.Decode(raw)
}

// Rows decodes rows [start, stop).
func (t *Table) Rows(start, stop int) ([]metadata.Record, error) {
	if start < 0 || stop < start || stop > t.o.length() {
		return nil, fmt.Errorf("%w: [%d, %d) not within [0, %d)", ErrOutOfRange, start, stop, t.o.length())
	}
	out := make([]metadata.Record, 0, stop-start)
	for i := start; i < stop; i++ {
		rec, err := t.Row(i)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Where returns the indices of all rows matching fs. A nil set matches
// every row.
func (t *Table) Where(fs *metadata.FilterSet) (*roaring.Bitmap, error) {
	bm := roaring.New()
	for i := range t.o.length() {
		rec, err := t.Row(i)
		if err != nil {
			return nil, err
		}
		if fs.Matches(rec) {
			bm.Add(uint32(i))
		}
	}
	return bm, nil
}
