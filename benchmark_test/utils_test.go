package benchmark_test

import (
	"path/filepath"
	"testing"

	"github.com/hupe1980/imagestack"
	"github.com/hupe1980/imagestack/metadata"
	"github.com/hupe1980/imagestack/ndarray"
	"github.com/hupe1980/imagestack/testutil"
)

const side = 64

func benchSchema() *metadata.Schema {
	return metadata.MustNewSchema(map[string]metadata.Column{
		"exp_time":    metadata.Int32Col(),
		"gain":        metadata.Float64Col(),
		"some_string": metadata.StringCol(20),
	})
}

// populate writes n random images with metadata and returns the path.
func populate(b *testing.B, n int, optFns ...imagestack.Option) string {
	b.Helper()
	path := filepath.Join(b.TempDir(), "bench.isk")

	template, err := ndarray.Zeros(ndarray.Float32, side, side)
	if err != nil {
		b.Fatal(err)
	}
	schema := benchSchema()
	s, err := imagestack.Create(path, template, append(optFns, imagestack.WithSchema(schema))...)
	if err != nil {
		b.Fatal(err)
	}

	rng := testutil.NewRNG(1)
	for range n {
		if err := s.AddImage(rng.Image(ndarray.Float32, side, side), rng.Record(schema)); err != nil {
			b.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		b.Fatal(err)
	}
	return path
}

func openStack(b *testing.B, path string, optFns ...imagestack.Option) *imagestack.ImageStack {
	b.Helper()
	s, err := imagestack.Open(path, optFns...)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = s.Close() })
	return s
}
