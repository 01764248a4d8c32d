package imagestack

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/imagestack/container"
	"github.com/hupe1980/imagestack/metadata"
	"github.com/hupe1980/imagestack/ndarray"
)

const (
	// ImageArrayName is the object holding the images.
	ImageArrayName = "img_stack"
	// MetadataTableName is the optional object holding one record per image.
	MetadataTableName = "metadata"
)

// ImageStack is a growable stack of same-shaped images stored in a single
// file, optionally paired with one metadata record per image.
//
// An ImageStack is not safe for concurrent use.
type ImageStack struct {
	filename string
	mode     Mode
	opts     options
	logger   *Logger

	c      *container.File
	images *container.Array
	table  *container.Table // nil when the stack has no metadata

	closed  bool
	cleanup runtime.Cleanup
}

// New creates a stack when template is non-nil and opens an existing one
// otherwise.
func New(filename string, template *ndarray.Array, optFns ...Option) (*ImageStack, error) {
	if template != nil {
		return Create(filename, template, optFns...)
	}
	return Open(filename, optFns...)
}

// Create creates a new stack at filename, overwriting any existing file.
// The item shape and dtype are taken from template; its pixels are not
// stored. WithSchema adds an empty metadata table.
func Create(filename string, template *ndarray.Array, optFns ...Option) (*ImageStack, error) {
	o := applyOptions(optFns)
	logger := o.logger.WithFile(filename)

	if template == nil {
		logger.LogOpen(ModeWriteNew, 0, false, ErrTemplateRequired)
		return nil, ErrTemplateRequired
	}
	if o.modeSet && o.mode != ModeWriteNew {
		logger.Warn("template given, forcing write-new mode", "requested", o.mode.String())
	}
	o.mode = ModeWriteNew

	c, err := container.Open(filename, o.containerOptions())
	if err != nil {
		err = translateError(err)
		logger.LogOpen(o.mode, 0, false, err)
		return nil, err
	}

	s := &ImageStack{filename: filename, mode: o.mode, opts: o, logger: logger, c: c}

	if err := s.create(template); err != nil {
		_ = c.Close()
		err = translateError(err)
		logger.LogOpen(o.mode, 0, false, err)
		return nil, err
	}

	s.track()
	logger.LogOpen(s.mode, 0, s.table != nil, nil)
	return s, nil
}

func (s *ImageStack) create(template *ndarray.Array) error {
	images, err := s.c.CreateArray(ImageArrayName, template.DType(), template.Shape())
	if err != nil {
		return err
	}
	s.images = images

	if s.opts.schema != nil {
		table, err := s.c.CreateTable(MetadataTableName, s.opts.schema)
		if err != nil {
			return err
		}
		s.table = table
	}
	return s.c.Flush()
}

// Open opens the existing stack at filename. The mode defaults to
// ModeReadOnly. A missing metadata table is not an error.
func Open(filename string, optFns ...Option) (*ImageStack, error) {
	o := applyOptions(optFns)
	logger := o.logger.WithFile(filename)

	if o.mode == ModeWriteNew {
		logger.LogOpen(o.mode, 0, false, ErrTemplateRequired)
		return nil, ErrTemplateRequired
	}

	c, err := container.Open(filename, o.containerOptions())
	if err != nil {
		err = translateError(err)
		logger.LogOpen(o.mode, 0, false, err)
		return nil, err
	}

	s := &ImageStack{filename: filename, mode: o.mode, opts: o, logger: logger, c: c}

	if err := s.attach(); err != nil {
		_ = c.Abort()
		err = translateError(err)
		logger.LogOpen(o.mode, 0, false, err)
		return nil, err
	}

	if c.Recovered() {
		logger.Warn("opened from previous directory, unflushed appends were lost")
	}
	if s.table != nil && s.table.Len() != s.images.Len() {
		logger.Warn("metadata table is not aligned with images",
			"images", s.images.Len(),
			"rows", s.table.Len(),
		)
	}

	s.track()
	logger.LogOpen(s.mode, s.images.Len(), s.table != nil, nil)
	return s, nil
}

func (s *ImageStack) attach() error {
	images, err := s.c.Array(ImageArrayName)
	if err != nil {
		return err
	}
	s.images = images

	table, err := s.c.Table(MetadataTableName)
	switch {
	case errors.Is(err, container.ErrMissingObject):
		return nil
	case err != nil:
		return err
	}
	s.table = table
	return nil
}

func (s *ImageStack) checkOpen() error {
	if s == nil || s.closed {
		return ErrClosed
	}
	return nil
}

// The accessors below do not fail. After Close they keep reporting the
// state the stack had when it was closed.

// Filename returns the path of the backing file.
func (s *ImageStack) Filename() string { return s.filename }

// Mode returns the access mode in effect.
func (s *ImageStack) Mode() Mode { return s.mode }

// Shape returns (Len(), *ItemShape()). It reflects appends immediately.
func (s *ImageStack) Shape() []int { return s.images.Shape() }

// Len returns the number of images.
func (s *ImageStack) Len() int { return s.images.Len() }

// ItemShape returns the shape of one image.
func (s *ImageStack) ItemShape() []int { return s.images.ItemShape() }

// DType returns the element type of the images.
func (s *ImageStack) DType() ndarray.DType { return s.images.DType() }

// HasMetadata reports whether a metadata table is attached.
func (s *ImageStack) HasMetadata() bool { return s.table != nil }

// Schema returns the metadata schema, or nil when there is no table.
func (s *ImageStack) Schema() *metadata.Schema {
	if s.table == nil {
		return nil
	}
	return s.table.Schema()
}

// MetadataLen returns the number of metadata rows, or 0 without a table.
func (s *ImageStack) MetadataLen() int {
	if s.table == nil {
		return 0
	}
	return s.table.Len()
}

// Stats returns a description of the backing container.
func (s *ImageStack) Stats() container.Stats { return s.c.Stats() }

// AddImage appends img, and a metadata row built from md when the stack has
// a metadata table. Fields missing from md are stored as zero values.
//
// Shape, dtype and schema are checked before anything is written: on error
// the stack keeps its previous length. How a nil md on a stack with a table,
// or a non-nil md on a stack without one, is handled depends on the
// alignment policy (see WithAlignment).
//
// Appends are durable after Flush or Close.
func (s *ImageStack) AddImage(img *ndarray.Array, md metadata.Record) (err error) {
	if err := s.checkOpen(); err != nil {
		return err
	}

	start := time.Now()
	index := -1
	withRow := false
	defer func() {
		s.opts.metricsCollector.RecordAppend(time.Since(start), err)
		s.logger.LogAppend(index, withRow, err)
	}()

	if !s.mode.Writable() {
		return ErrReadOnly
	}
	index = s.images.Len()

	if err := s.images.Check(img); err != nil {
		mismatch := &ShapeMismatchError{
			ExpectedDType: s.images.DType(),
			ExpectedShape: s.images.ItemShape(),
			cause:         err,
		}
		if img != nil {
			mismatch.ActualDType = img.DType()
			mismatch.ActualShape = img.Shape()
		}
		return mismatch
	}

	var misaligned Misalignment
	switch {
	case s.table != nil && md != nil:
		withRow = true
	case s.table != nil:
		if s.opts.alignment == AlignStrict {
			return ErrMetadataRequired
		}
		misaligned = MisalignmentMissing
	case md != nil:
		if s.opts.alignment == AlignStrict {
			return ErrNoMetadataTable
		}
		misaligned = MisalignmentDropped
	}

	b := s.c.NewBatch()
	if err := b.AppendArray(s.images, img); err != nil {
		return translateError(err)
	}
	if withRow {
		if err := b.AppendTable(s.table, md); err != nil {
			return translateError(err)
		}
	}
	if err := b.Commit(); err != nil {
		return translateError(err)
	}

	if misaligned != "" {
		s.logger.LogMisalignment(index, misaligned)
		s.opts.metricsCollector.RecordMisalignment(misaligned)
	}
	return nil
}

// AddImageMap is AddImage with an untyped metadata map, e.g. decoded JSON.
// A nil map means no metadata.
func (s *ImageStack) AddImageMap(img *ndarray.Array, md map[string]any) error {
	rec, err := metadata.RecordFromAny(md)
	if err != nil {
		return &SchemaMismatchError{Reason: err.Error(), cause: fmt.Errorf("%w: %w", metadata.ErrSchemaMismatch, err)}
	}
	return s.AddImage(img, rec)
}

// Metadata returns the metadata record of image i. Negative indices count
// from the end of the table.
func (s *ImageStack) Metadata(i int) (rec metadata.Record, err error) {
	start := time.Now()
	defer func() { s.recordRead(len(rec), start, err) }()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.table == nil {
		return nil, ErrNoMetadata
	}
	n := s.table.Len()
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("%w: metadata row %d of %d", ErrOutOfBounds, i, n)
	}
	rec, err = s.table.Row(i)
	return rec, translateError(err)
}

// Where returns the indices of the images whose metadata matches fs.
func (s *ImageStack) Where(fs *metadata.FilterSet) (*roaring.Bitmap, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.table == nil {
		return nil, ErrNoMetadata
	}
	bm, err := s.table.Where(fs)
	return bm, translateError(err)
}

func (s *ImageStack) recordRead(count int, start time.Time, err error) {
	if s == nil {
		return
	}
	s.opts.metricsCollector.RecordRead(count, time.Since(start), err)
}

// normalize maps a possibly negative index into [0, n).
func normalize(i, n int) (int, error) {
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("%w: index %d with length %d", ErrOutOfBounds, i, n)
	}
	return i, nil
}

// At returns image i. Negative indices count from the end.
func (s *ImageStack) At(i int) (img *ndarray.Array, err error) {
	start := time.Now()
	defer func() { s.recordRead(1, start, err) }()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	idx, err := normalize(i, s.images.Len())
	if err != nil {
		return nil, err
	}
	img, err = s.images.At(idx)
	return img, translateError(err)
}

// Slice returns images [start, stop) stacked along a new leading axis.
// Bounds follow slicing rules: negative values count from the end and
// out-of-range values are clamped, so the result may be empty.
func (s *ImageStack) Slice(start, stop int) (out *ndarray.Array, err error) {
	began := time.Now()
	count := 0
	defer func() { s.recordRead(count, began, err) }()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	n := s.images.Len()
	start, stop = clampBound(start, n), clampBound(stop, n)
	stop = max(stop, start)
	count = stop - start
	out, err = s.images.Slice(start, stop)
	return out, translateError(err)
}

func clampBound(i, n int) int {
	if i < 0 {
		i += n
	}
	return min(max(i, 0), n)
}

// Take returns the given images, in order, stacked along a new leading
// axis. Duplicates are allowed and negative indices count from the end.
func (s *ImageStack) Take(indices ...int) (out *ndarray.Array, err error) {
	start := time.Now()
	defer func() { s.recordRead(len(indices), start, err) }()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	n := s.images.Len()
	resolved := make([]int, len(indices))
	for k, i := range indices {
		idx, err := normalize(i, n)
		if err != nil {
			return nil, err
		}
		resolved[k] = idx
	}
	out, err = s.images.Take(resolved)
	return out, translateError(err)
}

// Mask returns the images whose index is set in sel, in ascending order.
// A nil bitmap selects nothing.
func (s *ImageStack) Mask(sel *roaring.Bitmap) (*ndarray.Array, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var indices []int
	if sel != nil {
		if n := s.images.Len(); !sel.IsEmpty() && int(sel.Maximum()) >= n {
			return nil, fmt.Errorf("%w: mask selects %d with length %d", ErrOutOfBounds, sel.Maximum(), n)
		}
		indices = make([]int, 0, sel.GetCardinality())
		it := sel.Iterator()
		for it.HasNext() {
			indices = append(indices, int(it.Next()))
		}
	}
	return s.Take(indices...)
}

// Flush makes all appended images and rows durable.
func (s *ImageStack) Flush() (err error) {
	if err := s.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		s.opts.metricsCollector.RecordFlush(time.Since(start), err)
		s.logger.LogFlush(s.images.Len(), err)
	}()
	return translateError(s.c.Flush())
}

// Images returns a copy of every image, in order. Intended for small stacks.
func (s *ImageStack) Images() ([]*ndarray.Array, error) {
	out := make([]*ndarray.Array, 0, s.Len())
	it := s.Iter()
	for it.Next() {
		out = append(out, it.Image())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return slices.Clip(out), nil
}
