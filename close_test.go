package imagestack

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imagestack/metadata"
	"github.com/hupe1980/imagestack/ndarray"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func leakStack(t *testing.T, path string, logger *Logger) {
	t.Helper()
	template, err := ndarray.Zeros(ndarray.Uint8, 4, 4)
	require.NoError(t, err)
	s, err := Create(path, template, WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, s.AddImage(template, nil))
}

func TestCleanupClosesLeakedStack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leaked.isk")
	out := &syncBuffer{}
	logger := NewLogger(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelWarn}))

	leakStack(t, path, logger)

	require.Eventually(t, func() bool {
		runtime.GC()
		s, err := Open(path, WithMmap(false))
		if err != nil {
			return false
		}
		defer s.Close()
		return s.Len() == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Contains(t, out.String(), "garbage collected without Close")
}

func TestCloseStopsCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.isk")
	out := &syncBuffer{}
	logger := NewLogger(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelWarn}))

	func() {
		template, err := ndarray.Zeros(ndarray.Uint8, 4, 4)
		require.NoError(t, err)
		s, err := Create(path, template, WithLogger(logger))
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}()

	for range 3 {
		runtime.GC()
	}
	time.Sleep(50 * time.Millisecond)
	assert.NotContains(t, out.String(), "garbage collected")
}

func TestLoggingAndMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logged.isk")
	out := &syncBuffer{}
	logger := NewLogger(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	metrics := &BasicMetricsCollector{}

	template, err := ndarray.Zeros(ndarray.Float32, 2, 2)
	require.NoError(t, err)
	schema := metadata.MustNewSchema(map[string]metadata.Column{"n": metadata.Int16Col()})

	s, err := Create(path, template,
		WithMode(ModeAppend),
		WithSchema(schema),
		WithAlignment(AlignLenient),
		WithLogger(logger),
		WithMetricsCollector(metrics),
	)
	require.NoError(t, err)

	require.NoError(t, s.AddImage(template, metadata.Record{"n": metadata.Int(1)}))
	require.NoError(t, s.AddImage(template, nil))
	_, err = s.At(0)
	require.NoError(t, err)
	_, err = s.Take(0, 1, 1)
	require.NoError(t, err)
	_, err = s.At(9)
	require.ErrorIs(t, err, ErrOutOfBounds)
	require.NoError(t, s.Close())

	logs := out.String()
	assert.Contains(t, logs, `"msg":"template given, forcing write-new mode"`)
	assert.Contains(t, logs, `"msg":"stack opened"`)
	assert.Contains(t, logs, `"reason":"metadata_missing"`)
	assert.Contains(t, logs, `"msg":"stack closed"`)
	assert.Contains(t, logs, `"filename":"`+path+`"`)

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.AppendCount)
	assert.Equal(t, int64(1), stats.Missing)
	assert.Equal(t, int64(3), stats.ReadCount)
	assert.Equal(t, int64(1), stats.ReadErrors)
	assert.Equal(t, int64(1), stats.FlushCount)
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil))

	err := translateError(&metadata.FieldError{Field: "x", Reason: "not in schema"})
	var mismatch *SchemaMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "x", mismatch.Field)
	assert.ErrorIs(t, err, metadata.ErrSchemaMismatch)
	assert.Equal(t, `imagestack: schema mismatch: field "x": not in schema`, err.Error())
}

func TestAlignmentString(t *testing.T) {
	assert.Equal(t, "strict", AlignStrict.String())
	assert.Equal(t, "lenient", AlignLenient.String())
}
