package imagestack

import (
	"log/slog"

	"github.com/hupe1980/imagestack/codec"
	"github.com/hupe1980/imagestack/container"
	"github.com/hupe1980/imagestack/internal/fs"
	"github.com/hupe1980/imagestack/metadata"
)

// Mode is the access mode a stack is opened with.
type Mode = container.Mode

const (
	// ModeReadOnly opens an existing file without mutation.
	ModeReadOnly = container.ModeReadOnly
	// ModeWriteNew creates a fresh file, overwriting any existing one.
	ModeWriteNew = container.ModeWriteNew
	// ModeAppend opens an existing file for further appends, creating it if missing.
	ModeAppend = container.ModeAppend
)

// Compression selects the codec applied to stored chunks.
type Compression = container.Compression

const (
	CompressionNone = container.CompressionNone
	CompressionLZ4  = container.CompressionLZ4
	CompressionZSTD = container.CompressionZSTD
)

// Alignment controls how AddImage treats metadata whose presence disagrees
// with whether the stack has a metadata table.
type Alignment uint8

const (
	// AlignStrict rejects such calls with ErrMetadataRequired or
	// ErrNoMetadataTable.
	AlignStrict Alignment = iota
	// AlignLenient accepts them: metadata without a table is dropped, and an
	// image without metadata leaves the table short. Every occurrence is
	// logged at warn level and reported to the metrics collector.
	AlignLenient
)

func (a Alignment) String() string {
	if a == AlignLenient {
		return "lenient"
	}
	return "strict"
}

type options struct {
	mode             Mode
	modeSet          bool
	schema           *metadata.Schema
	alignment        Alignment
	logger           *Logger
	metricsCollector MetricsCollector
	compression      Compression
	compressionSet   bool
	chunkSize        int
	cacheSize        int64
	codec            codec.Codec
	fsys             fs.FileSystem
	mmap             bool

	compactionBuffer  int64
	compactionIOLimit int64
}

// Option configures Create, Open, New and Compact.
type Option func(*options)

// WithMode sets the requested access mode. Open defaults to ModeReadOnly;
// Create always uses ModeWriteNew.
func WithMode(mode Mode) Option {
	return func(o *options) {
		o.mode = mode
		o.modeSet = true
	}
}

// WithSchema creates a metadata table with the given schema. Only
// meaningful when creating a stack.
//
// Example:
//
//	schema := metadata.MustNewSchema(map[string]metadata.Column{
//	    "exp_time":    metadata.Int32Col(),
//	    "some_string": metadata.StringCol(20),
//	})
//	s, _ := imagestack.Create("stack.isk", template, imagestack.WithSchema(schema))
func WithSchema(schema *metadata.Schema) Option {
	return func(o *options) {
		o.schema = schema
	}
}

// WithAlignment sets the alignment policy. The default is AlignStrict.
func WithAlignment(a Alignment) Option {
	return func(o *options) {
		o.alignment = a
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := imagestack.NewJSONLogger(slog.LevelInfo)
//	s, _ := imagestack.Open("stack.isk", imagestack.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &imagestack.BasicMetricsCollector{}
//	s, _ := imagestack.Create("stack.isk", template, imagestack.WithMetricsCollector(metrics))
//	// ... use s ...
//	stats := metrics.GetStats()
//	fmt.Printf("Appends: %d, Misaligned: %d\n", stats.AppendCount, stats.Misalignments)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithCompression sets the compression applied to chunks written by this
// handle and records it in the file. Chunks already in the file keep their
// compression. Without it, appends to an existing file continue with the
// compression recorded there.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
		o.compressionSet = true
	}
}

// WithChunkSize sets the target number of bytes per stored chunk.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithCacheSize bounds the decoded chunk cache in bytes. Zero disables it.
func WithCacheSize(n int64) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithCodec configures the codec used for the container directory of new
// files.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithFileSystem replaces the file system used for all I/O.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys == nil {
			fsys = fs.Default
		}
		o.fsys = fsys
	}
}

// WithMmap enables or disables memory-mapping of read-only stacks.
// Enabled by default.
func WithMmap(enabled bool) Option {
	return func(o *options) {
		o.mmap = enabled
	}
}

// WithCompactionBuffer bounds the bytes of images Compact holds in memory
// ahead of the writer. Zero removes the bound.
func WithCompactionBuffer(bytes int64) Option {
	return func(o *options) {
		o.compactionBuffer = max(bytes, 0)
	}
}

// WithCompactionIOLimit throttles Compact to roughly bytesPerSec of image
// and row data. Zero, the default, is unlimited.
func WithCompactionIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.compactionIOLimit = max(bytesPerSec, 0)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		mode:             ModeReadOnly,
		alignment:        AlignStrict,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		compression:      CompressionNone,
		chunkSize:        container.DefaultChunkSize,
		cacheSize:        container.DefaultCacheSize,
		codec:            codec.Default,
		fsys:             fs.Default,
		mmap:             true,
		compactionBuffer: DefaultCompactionBuffer,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o *options) containerOptions() container.Options {
	return container.Options{
		Mode:           o.mode,
		Compression:    o.compression,
		CompressionSet: o.compressionSet,
		ChunkSize:      o.chunkSize,
		CacheSize:      o.cacheSize,
		Codec:          o.codec,
		FileSystem:     o.fsys,
		Mmap:           o.mmap,
		Logger:         o.logger.Logger,
	}
}
