package cli

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imagestack"
)

func run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Run(context.Background(), &out, &errOut, append([]string{"imagestack"}, args...))
	return out.String(), errOut.String(), code
}

const schemaJSONC = `{
  // exposure in seconds
  "exp_time": "int32",
  "some_string": "string(20)",
}`

func writeSchema(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "schema.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(schemaJSONC), 0o644))
	return path
}

func TestUsage(t *testing.T) {
	out, _, code := run(t)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "create <file> [flags]")
	assert.Contains(t, out, "compact <file> [flags]")

	_, errOut, code := run(t, "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown command: frobnicate")

	out, _, code = run(t, "dump", "--help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "--where")
}

func TestCreateInfoDump(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stack.isk")

	out, errOut, code := run(t, "create", path, "--shape", "10x20", "-n", "6", "--schema", writeSchema(t, dir), "--compression", "lz4")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "6 images of float64[10 20]")

	out, errOut, code = run(t, "info", path, "--json")
	require.Equal(t, 0, code, errOut)
	var info infoOutput
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, []int{6, 10, 20}, info.Shape)
	assert.True(t, info.Metadata)
	assert.Equal(t, 6, info.Rows)
	assert.Equal(t, "lz4", info.Compression)

	out, errOut, code = run(t, "dump", path, "-i", "1", "-i", "-1")
	require.Equal(t, 0, code, errOut)
	lines := nonEmptyLines(out)
	require.Len(t, lines, 2)

	var first dumpLine
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &first))
	assert.Equal(t, 5, first.Index)
	assert.Contains(t, first.Metadata, "exp_time")
	assert.Greater(t, first.Sum, 0.0)

	s, err := imagestack.Open(path)
	require.NoError(t, err)
	defer s.Close()
	img, err := s.At(5)
	require.NoError(t, err)
	assert.InDelta(t, img.Sum(), first.Sum, 1e-9)
}

func TestDumpWhere(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stack.isk")
	_, errOut, code := run(t, "create", path, "--shape", "2x2", "-n", "20", "--schema", writeSchema(t, dir))
	require.Equal(t, 0, code, errOut)

	s, err := imagestack.Open(path)
	require.NoError(t, err)
	var want []int
	for i := range s.Len() {
		rec, err := s.Metadata(i)
		require.NoError(t, err)
		if v, _ := rec["exp_time"].AsInt64(); v >= 1000 {
			want = append(want, i)
		}
	}
	require.NoError(t, s.Close())

	out, errOut, code := run(t, "dump", path, "--where", "exp_time>=1000")
	require.Equal(t, 0, code, errOut)

	var got []int
	for _, line := range nonEmptyLines(out) {
		var l dumpLine
		require.NoError(t, json.Unmarshal([]byte(line), &l))
		got = append(got, l.Index)
	}
	assert.Equal(t, want, got)

	_, errOut, code = run(t, "dump", path, "--where", "exp_time")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid filter expression")
}

func TestCreateAppendAndCompact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.isk")
	_, errOut, code := run(t, "create", path, "--shape", "4x4", "--dtype", "uint16", "-n", "3")
	require.Equal(t, 0, code, errOut)
	out, errOut, code := run(t, "create", path, "--append", "-n", "2", "--seed", "9")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "5 images of uint16[4 4]")

	out, errOut, code = run(t, "compact", path, "--compression", "zstd", "--buffer", "1KiB", "--io-limit", "10MB")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "bytes)")

	out, errOut, code = run(t, "info", path)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "shape:       [5 4 4]")
	assert.Contains(t, out, "metadata:    none")
	assert.Contains(t, out, "compression: zstd")
}

func TestCommandErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing file arg", []string{"info"}, "file argument is required"},
		{"missing file", []string{"info", filepath.Join(dir, "nope.isk")}, "file not found"},
		{"bad shape", []string{"create", filepath.Join(dir, "a.isk"), "--shape", "4xq"}, "invalid shape"},
		{"bad dtype", []string{"create", filepath.Join(dir, "b.isk"), "--dtype", "complex128"}, "complex128"},
		{"bad compression", []string{"create", filepath.Join(dir, "c.isk"), "--compression", "brotli"}, "unknown compression"},
		{"bad flag", []string{"info", "--nope"}, "unknown flag"},
		{"bad buffer", []string{"compact", filepath.Join(dir, "d.isk"), "--buffer", "lots"}, "invalid --buffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut, code := run(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, errOut, tt.want)
		})
	}
}

func TestParseBytes(t *testing.T) {
	n, err := parseBytes("buffer", "64MiB")
	require.NoError(t, err)
	assert.Equal(t, int64(64<<20), n)

	n, err = parseBytes("io-limit", "0")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = parseBytes("buffer", "-1")
	assert.ErrorContains(t, err, "invalid --buffer")
}

func TestParseShape(t *testing.T) {
	dims, err := parseShape("100x200")
	require.NoError(t, err)
	assert.Equal(t, []int{100, 200}, dims)

	dims, err = parseShape("3,4,5")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, dims)

	for _, bad := range []string{"", "x", "0x3", "-1x2"} {
		_, err := parseShape(bad)
		assert.ErrorIs(t, err, errInvalidShape, bad)
	}
}

func TestLoadSchema(t *testing.T) {
	schema, err := loadSchema(writeSchema(t, t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, []string{"exp_time", "some_string"}, schema.Names())

	bad := filepath.Join(t.TempDir(), "bad.jsonc")
	require.NoError(t, os.WriteFile(bad, []byte(`{"a": "int128"}`), 0o644))
	_, err = loadSchema(bad)
	assert.Error(t, err)
}

func nonEmptyLines(s string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out
}
