package container

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/hupe1980/imagestack/codec"
	"github.com/hupe1980/imagestack/internal/cache"
	"github.com/hupe1980/imagestack/internal/conv"
	"github.com/hupe1980/imagestack/internal/fs"
	"github.com/hupe1980/imagestack/internal/mmap"
	"github.com/hupe1980/imagestack/metadata"
	"github.com/hupe1980/imagestack/ndarray"
)

// Mode selects how a container file is opened.
type Mode uint8

const (
	// ModeReadOnly opens an existing file without mutation.
	ModeReadOnly Mode = iota
	// ModeWriteNew creates the file, truncating any existing content.
	ModeWriteNew
	// ModeAppend opens an existing file for appending, creating it if missing.
	ModeAppend
)

func (m Mode) String() string {
	switch m {
	case ModeReadOnly:
		return "r"
	case ModeWriteNew:
		return "w"
	case ModeAppend:
		return "a"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Writable reports whether the mode permits appends.
func (m Mode) Writable() bool { return m == ModeWriteNew || m == ModeAppend }

const (
	// DefaultChunkSize is the target decoded size of one chunk frame.
	DefaultChunkSize = 1 << 20
	// DefaultCacheSize bounds the decoded chunk cache.
	DefaultCacheSize = 64 << 20

	maxObjects = 255
)

// Options configures Open.
type Options struct {
	Mode Mode

	// Compression applies to chunks written by this handle. Existing
	// chunks keep the compression they were written with.
	Compression Compression

	// CompressionSet makes Compression replace the one recorded in an
	// existing file. Otherwise appends continue with the recorded one.
	CompressionSet bool

	// ChunkSize is the target number of decoded bytes per chunk. A chunk
	// always holds at least one item.
	ChunkSize int

	// CacheSize bounds the decoded chunk cache in bytes. Zero or negative
	// disables caching.
	CacheSize int64

	// Codec encodes the directory of new files. Existing files keep the
	// codec recorded in their superblock.
	Codec codec.Codec

	// FileSystem is the file system used for all I/O.
	FileSystem fs.FileSystem

	// Mmap maps read-only containers into memory when the local file
	// system is in use.
	Mmap bool

	Logger *slog.Logger
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		Mode:        ModeReadOnly,
		Compression: CompressionNone,
		ChunkSize:   DefaultChunkSize,
		CacheSize:   DefaultCacheSize,
		Codec:       codec.Default,
		FileSystem:  fs.Default,
		Mmap:        true,
		Logger:      slog.New(slog.DiscardHandler),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ChunkSize <= 0 {
		o.ChunkSize = def.ChunkSize
	}
	if o.Codec == nil {
		o.Codec = def.Codec
	}
	if o.FileSystem == nil {
		o.FileSystem = def.FileSystem
	}
	if o.Logger == nil {
		o.Logger = def.Logger
	}
	return o
}

// File is an open container: a set of named, append-only objects stored in
// a single file.
//
// A File is not safe for concurrent use.
type File struct {
	path    string
	opts    Options
	f       fs.File
	mapping *mmap.Mapping
	codec   codec.Codec
	cache   *cache.LRUBlockCache

	sb      superblock
	objects []*object
	byName  map[string]*object

	end       int64 // next append offset
	dirty     bool
	created   bool
	blank     bool // an existing empty file was initialized by Open
	recovered bool
	closed    bool
}

type object struct {
	id        uint8
	name      string
	kind      Kind
	dtype     ndarray.DType
	itemShape []int
	schema    *metadata.Schema
	itemSize  int

	chunks  []chunkRef
	chunked int

	// Items not yet written to a chunk frame.
	pending      []byte
	pendingCount int
}

func (o *object) length() int { return o.chunked + o.pendingCount }

func (o *object) entry() objectEntry {
	e := objectEntry{
		ID:     o.id,
		Name:   o.name,
		Kind:   o.kind,
		Schema: o.schema,
		Length: o.chunked,
		Chunks: slices.Clone(o.chunks),
	}
	if o.kind == KindArray {
		e.DType = o.dtype.String()
		e.ItemShape = slices.Clone(o.itemShape)
	}
	if e.Chunks == nil {
		e.Chunks = []chunkRef{}
	}
	return e
}

// Open opens or creates the container at path according to opts.Mode.
//
// A missing file in ModeReadOnly yields an error wrapping os.ErrNotExist.
// If Open fails after creating the file, the file is removed again.
func Open(path string, opts Options) (*File, error) {
	opts = opts.withDefaults()
	fsys := opts.FileSystem

	var flag int
	switch opts.Mode {
	case ModeReadOnly:
		flag = os.O_RDONLY
	case ModeWriteNew:
		flag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case ModeAppend:
		flag = os.O_RDWR | os.O_CREATE
	default:
		return nil, fmt.Errorf("container: invalid mode %v", opts.Mode)
	}

	existed := true
	if opts.Mode == ModeAppend {
		if _, err := fsys.Stat(path); errors.Is(err, os.ErrNotExist) {
			existed = false
		}
	}

	f, err := fsys.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("container: open %s: %w", path, err)
	}

	c := &File{
		path:   path,
		opts:   opts,
		f:      f,
		cache:  cache.NewLRUBlockCache(opts.CacheSize),
		byName: make(map[string]*object),
	}

	if err := c.init(existed); err != nil {
		_ = c.Abort()
		return nil, err
	}
	return c, nil
}

// Abort releases the file without flushing and undoes what Open did to
// it: a file Open created is removed, and an empty file it initialized is
// truncated back to zero bytes. Use it when a caller rejects a container
// it just opened.
func (c *File) Abort() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	c.cache.Invalidate(func(cache.Key) bool { return true })

	var errs []error
	if c.mapping != nil {
		errs = append(errs, c.mapping.Close())
	}
	if c.blank && !c.created {
		errs = append(errs, c.f.Truncate(0))
	}
	errs = append(errs, c.f.Close())
	if c.created && c.opts.Mode == ModeAppend {
		errs = append(errs, c.opts.FileSystem.Remove(c.path))
	}
	return errors.Join(errs...)
}

func (c *File) init(existed bool) error {
	fi, err := c.f.Stat()
	if err != nil {
		return fmt.Errorf("container: stat %s: %w", c.path, err)
	}

	if c.opts.Mode == ModeWriteNew || (c.opts.Mode == ModeAppend && fi.Size() == 0) {
		c.created = c.opts.Mode == ModeWriteNew || !existed
		c.blank = c.opts.Mode == ModeAppend && existed
		c.codec = c.opts.Codec
		c.sb = superblock{Version: Version, Compression: c.opts.Compression, Codec: c.codec.Name()}
		c.end = SuperblockSize
		c.dirty = true
		return c.Flush()
	}

	if err := c.load(fi.Size()); err != nil {
		return fmt.Errorf("container: open %s: %w", c.path, err)
	}
	if !c.opts.CompressionSet {
		c.opts.Compression = c.sb.Compression
	}

	if c.opts.Mode == ModeReadOnly && c.opts.Mmap {
		if _, local := c.opts.FileSystem.(fs.LocalFS); local {
			m, err := mmap.Open(c.path)
			if err != nil {
				c.opts.Logger.Debug("mmap unavailable, using pread", "path", c.path, "error", err)
			} else {
				_ = m.Advise(mmap.AccessRandom)
				c.mapping = m
			}
		}
	}
	return nil
}

func (c *File) load(size int64) error {
	if size < SuperblockSize {
		return fmt.Errorf("%w: file is %d bytes", ErrCorrupted, size)
	}
	c.end = size

	head := make([]byte, SuperblockSize)
	if err := c.readFull(head, 0); err != nil {
		return err
	}
	sb, err := decodeSuperblock(head)
	if err != nil {
		return err
	}
	cd, ok := codec.ByName(sb.Codec)
	if !ok {
		return fmt.Errorf("%w: unknown directory codec %q", ErrCorrupted, sb.Codec)
	}
	c.codec = cd

	dir, end, err := c.readDirectory(sb.DirOffset, sb.DirSize, sb.DirCRC)
	if err != nil {
		if sb.PrevSize == 0 {
			return err
		}
		c.opts.Logger.Warn("directory unreadable, falling back to previous",
			"path", c.path, "offset", sb.DirOffset, "error", err)
		dir, end, err = c.readDirectory(sb.PrevOffset, sb.PrevSize, 0)
		if err != nil {
			return err
		}
		sb.DirOffset, sb.DirSize = sb.PrevOffset, sb.PrevSize
		sb.PrevOffset, sb.PrevSize = 0, 0
		c.recovered = true
	}

	for _, e := range dir.Objects {
		if err := e.validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
		if _, dup := c.byName[e.Name]; dup {
			return fmt.Errorf("%w: duplicate object %q", ErrCorrupted, e.Name)
		}
		o := &object{
			id:      e.ID,
			name:    e.Name,
			kind:    e.Kind,
			schema:  e.Schema,
			chunks:  e.Chunks,
			chunked: e.Length,
		}
		if e.Kind == KindArray {
			o.dtype, _ = ndarray.ParseDType(e.DType)
			o.itemShape = e.ItemShape
			n, _ := ndarray.NumElements(e.ItemShape)
			o.itemSize = n * o.dtype.Size()
		} else {
			o.itemSize = e.Schema.RowSize()
		}
		c.objects = append(c.objects, o)
		c.byName[o.name] = o
	}

	c.sb = *sb
	c.end = end
	return nil
}

func (c *File) readDirectory(off int64, size, crc uint32) (*directory, int64, error) {
	if off < SuperblockSize || size < FrameHeaderSize || off+int64(size) > c.end {
		return nil, 0, fmt.Errorf("%w: directory at %d+%d outside file", ErrCorrupted, off, size)
	}
	h, raw, err := c.readFrame(off)
	if err != nil {
		return nil, 0, err
	}
	if h.Kind != frameDirectory || FrameHeaderSize+int64(h.StoredLen) != int64(size) {
		return nil, 0, fmt.Errorf("%w: no directory frame at %d", ErrCorrupted, off)
	}
	if crc != 0 && h.CRC != crc {
		return nil, 0, fmt.Errorf("%w: directory checksum does not match superblock", ErrCorrupted)
	}
	var dir directory
	if err := c.codec.Unmarshal(raw, &dir); err != nil {
		return nil, 0, fmt.Errorf("%w: decode directory: %v", ErrCorrupted, err)
	}
	return &dir, off + int64(size), nil
}

func (c *File) readFull(p []byte, off int64) error {
	if c.mapping != nil {
		if _, err := c.mapping.ReadAt(p, off); err != nil {
			return fmt.Errorf("%w: read %d bytes at %d: %v", ErrCorrupted, len(p), off, err)
		}
		return nil
	}
	if _, err := c.f.ReadAt(p, off); err != nil {
		return fmt.Errorf("%w: read %d bytes at %d: %v", ErrCorrupted, len(p), off, err)
	}
	return nil
}

// readFrame reads, verifies and decodes the frame at off.
func (c *File) readFrame(off int64) (frameHeader, []byte, error) {
	var hb [FrameHeaderSize]byte
	if err := c.readFull(hb[:], off); err != nil {
		return frameHeader{}, nil, err
	}
	h := decodeFrameHeader(hb[:])
	if off+FrameHeaderSize+int64(h.StoredLen) > c.end {
		return h, nil, fmt.Errorf("%w: frame at %d overruns file", ErrCorrupted, off)
	}

	var stored []byte
	if c.mapping != nil {
		start := off + FrameHeaderSize
		stored = c.mapping.Bytes()[start : start+int64(h.StoredLen)]
	} else {
		stored = make([]byte, h.StoredLen)
		if err := c.readFull(stored, off+FrameHeaderSize); err != nil {
			return h, nil, err
		}
	}

	if got := frameCRC(hb[:16], stored); got != h.CRC {
		return h, nil, fmt.Errorf("%w: frame at %d checksum %08x != %08x", ErrCorrupted, off, got, h.CRC)
	}
	rawLen, err := conv.Uint32ToInt(h.RawLen)
	if err != nil {
		return h, nil, fmt.Errorf("%w: frame at %d: %v", ErrCorrupted, off, err)
	}
	raw, err := decompressBlock(stored, h.Compression, rawLen)
	if err != nil {
		return h, nil, fmt.Errorf("%w: frame at %d: %v", ErrCorrupted, off, err)
	}
	return h, raw, nil
}

// chunk returns the decoded payload of chunk ci of o.
func (c *File) chunk(o *object, ci int) ([]byte, error) {
	ref := o.chunks[ci]
	key := cache.Key{Object: o.id, Offset: ref.Offset}
	if b, ok := c.cache.Get(key); ok {
		return b, nil
	}
	h, raw, err := c.readFrame(ref.Offset)
	if err != nil {
		return nil, err
	}
	if h.Kind != frameChunk || h.Object != o.id || int(h.Count) != ref.Count || len(raw) != ref.Count*o.itemSize {
		return nil, fmt.Errorf("%w: chunk at %d does not belong to %q", ErrCorrupted, ref.Offset, o.name)
	}
	c.cache.Set(key, raw)
	return raw, nil
}

// item returns the encoded bytes of item i. The result must not be modified.
func (c *File) item(o *object, i int) ([]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if i < 0 || i >= o.length() {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, o.length())
	}
	if i >= o.chunked {
		off := (i - o.chunked) * o.itemSize
		return o.pending[off : off+o.itemSize], nil
	}
	ci := findChunk(o.chunks, i)
	if ci < 0 {
		return nil, fmt.Errorf("%w: no chunk holds item %d of %q", ErrCorrupted, i, o.name)
	}
	data, err := c.chunk(o, ci)
	if err != nil {
		return nil, err
	}
	off := (i - o.chunks[ci].First) * o.itemSize
	return data[off : off+o.itemSize], nil
}

func (c *File) checkWritable() error {
	if c.closed {
		return ErrClosed
	}
	if !c.opts.Mode.Writable() {
		return ErrReadOnly
	}
	return nil
}

func (c *File) chunkBytes(o *object) int {
	return max(c.opts.ChunkSize/o.itemSize, 1) * o.itemSize
}

// spill writes the pending items of objs as chunk frames. Chunk refs are
// committed only once every frame is written; on failure the end offset is
// reset and no object changes.
func (c *File) spill(objs []*object) error {
	mark := c.end
	refs := make([]chunkRef, len(objs))
	for i, o := range objs {
		frame, err := encodeFrame(frameChunk, o.id, o.pendingCount, o.pending, c.opts.Compression)
		if err != nil {
			c.end = mark
			return fmt.Errorf("container: encode chunk of %q: %w", o.name, err)
		}
		if _, err := c.f.WriteAt(frame, c.end); err != nil {
			c.end = mark
			return fmt.Errorf("container: write chunk of %q: %w", o.name, err)
		}
		refs[i] = chunkRef{Offset: c.end, First: o.chunked, Count: o.pendingCount}
		c.end += int64(len(frame))
	}
	for i, o := range objs {
		o.chunks = append(o.chunks, refs[i])
		o.chunked += o.pendingCount
		o.pending = o.pending[:0]
		o.pendingCount = 0
	}
	return nil
}

type staged struct {
	o    *object
	data []byte
}

// commit appends one item to each staged object as a unit: either every
// object grows by one or none does.
func (c *File) commit(items []staged) error {
	if err := c.checkWritable(); err != nil {
		return err
	}

	for _, s := range items {
		s.o.pending = append(s.o.pending, s.data...)
		s.o.pendingCount++
	}

	var full []*object
	for _, s := range items {
		if len(s.o.pending) >= c.chunkBytes(s.o) {
			full = append(full, s.o)
		}
	}
	if len(full) > 0 {
		if err := c.spill(full); err != nil {
			for _, s := range items {
				s.o.pending = s.o.pending[:len(s.o.pending)-len(s.data)]
				s.o.pendingCount--
			}
			return err
		}
	}

	c.dirty = true
	return nil
}

// Flush writes pending items, then a new directory, then the superblock
// pointing at it. Each step is synced before the next.
func (c *File) Flush() error {
	if c.closed {
		return ErrClosed
	}
	if !c.opts.Mode.Writable() || !c.dirty {
		return nil
	}

	var partial []*object
	for _, o := range c.objects {
		if o.pendingCount > 0 {
			partial = append(partial, o)
		}
	}
	if len(partial) > 0 {
		if err := c.spill(partial); err != nil {
			return err
		}
	}

	dir := directory{Objects: make([]objectEntry, 0, len(c.objects))}
	for _, o := range c.objects {
		dir.Objects = append(dir.Objects, o.entry())
	}
	payload, err := c.codec.Marshal(&dir)
	if err != nil {
		return fmt.Errorf("container: encode directory: %w", err)
	}
	frame, err := encodeFrame(frameDirectory, 0, len(dir.Objects), payload, CompressionNone)
	if err != nil {
		return err
	}

	off := c.end
	if _, err := c.f.WriteAt(frame, off); err != nil {
		return fmt.Errorf("container: write directory: %w", err)
	}
	if err := c.f.Sync(); err != nil {
		return fmt.Errorf("container: sync directory: %w", err)
	}

	sb := c.sb
	sb.PrevOffset, sb.PrevSize = c.sb.DirOffset, c.sb.DirSize
	sb.DirOffset = off
	sb.DirSize = uint32(len(frame))
	sb.DirCRC = decodeFrameHeader(frame).CRC
	sb.Compression = c.opts.Compression
	if _, err := c.f.WriteAt(sb.encode(), 0); err != nil {
		return fmt.Errorf("container: write superblock: %w", err)
	}
	if err := c.f.Sync(); err != nil {
		return fmt.Errorf("container: sync superblock: %w", err)
	}

	c.sb = sb
	c.end = off + int64(len(frame))
	c.dirty = false
	return nil
}

// Close flushes a writable container and releases the file. Close is
// idempotent and safe on a nil receiver.
func (c *File) Close() error {
	if c == nil || c.closed {
		return nil
	}

	var errs []error
	if c.opts.Mode.Writable() {
		if err := c.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closed = true
	c.cache.Invalidate(func(cache.Key) bool { return true })
	if c.mapping != nil {
		if err := c.mapping.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.f.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Path returns the file name the container was opened with.
func (c *File) Path() string { return c.path }

// Mode returns the mode the container was opened with.
func (c *File) Mode() Mode { return c.opts.Mode }

// Created reports whether Open created the file.
func (c *File) Created() bool { return c.created }

// Recovered reports whether Open had to fall back to the previous directory.
func (c *File) Recovered() bool { return c.recovered }

// Compression returns the compression applied to new chunks.
func (c *File) Compression() Compression { return c.opts.Compression }

// Codec returns the codec of the directory.
func (c *File) Codec() codec.Codec { return c.codec }

// Has reports whether an object named name exists.
func (c *File) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

func (c *File) lookup(name string, kind Kind) (*object, error) {
	if c.closed {
		return nil, ErrClosed
	}
	o, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingObject, name)
	}
	if o.kind != kind {
		return nil, fmt.Errorf("%w: %q is a %s", ErrWrongKind, name, o.kind)
	}
	return o, nil
}

func (c *File) addObject(o *object) error {
	if err := c.checkWritable(); err != nil {
		return err
	}
	if _, ok := c.byName[o.name]; ok {
		return fmt.Errorf("%w: %q", ErrObjectExists, o.name)
	}
	if len(c.objects) >= maxObjects {
		return ErrTooManyObjects
	}
	o.id = uint8(len(c.objects))
	c.objects = append(c.objects, o)
	c.byName[o.name] = o
	c.dirty = true
	return nil
}

// CreateArray adds an empty array object with the given item descriptor.
func (c *File) CreateArray(name string, dtype ndarray.DType, itemShape []int) (*Array, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: %v", ndarray.ErrInvalidDType, dtype)
	}
	n, err := ndarray.NumElements(itemShape)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: empty item shape %v", ndarray.ErrInvalidShape, itemShape)
	}
	o := &object{
		name:      name,
		kind:      KindArray,
		dtype:     dtype,
		itemShape: slices.Clone(itemShape),
		itemSize:  n * dtype.Size(),
	}
	if err := c.addObject(o); err != nil {
		return nil, err
	}
	return &Array{c: c, o: o}, nil
}

// Array attaches the existing array object name.
func (c *File) Array(name string) (*Array, error) {
	o, err := c.lookup(name, KindArray)
	if err != nil {
		return nil, err
	}
	return &Array{c: c, o: o}, nil
}

// CreateTable adds an empty table object with the given schema.
func (c *File) CreateTable(name string, schema *metadata.Schema) (*Table, error) {
	if schema == nil {
		return nil, fmt.Errorf("%w: nil schema", metadata.ErrInvalidColumn)
	}
	o := &object{
		name:     name,
		kind:     KindTable,
		schema:   schema,
		itemSize: schema.RowSize(),
	}
	if err := c.addObject(o); err != nil {
		return nil, err
	}
	return &Table{c: c, o: o}, nil
}

// Table attaches the existing table object name.
func (c *File) Table(name string) (*Table, error) {
	o, err := c.lookup(name, KindTable)
	if err != nil {
		return nil, err
	}
	return &Table{c: c, o: o}, nil
}

// ObjectInfo summarises one stored object.
type ObjectInfo struct {
	Name      string
	Kind      Kind
	Length    int
	Chunks    int
	DType     ndarray.DType
	ItemShape []int
	Schema    *metadata.Schema
}

// Stats describes a container.
type Stats struct {
	Path        string
	Size        int64
	Compression Compression
	Codec       string
	Recovered   bool
	Objects     []ObjectInfo
	CacheHits   int64
	CacheMisses int64
}

// Stats returns a snapshot of the container layout.
func (c *File) Stats() Stats {
	hits, misses := c.cache.Stats()
	st := Stats{
		Path:        c.path,
		Size:        c.end,
		Compression: c.opts.Compression,
		Recovered:   c.recovered,
		CacheHits:   hits,
		CacheMisses: misses,
	}
	if !c.opts.Mode.Writable() {
		st.Compression = c.sb.Compression
	}
	if c.codec != nil {
		st.Codec = c.codec.Name()
	}
	for _, o := range c.objects {
		st.Objects = append(st.Objects, ObjectInfo{
			Name:      o.name,
			Kind:      o.kind,
			Length:    o.length(),
			Chunks:    len(o.chunks),
			DType:     o.dtype,
			ItemShape: slices.Clone(o.itemShape),
			Schema:    o.schema,
		})
	}
	return st
}
