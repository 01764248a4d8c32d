package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imagestack/metadata"
	"github.com/hupe1980/imagestack/ndarray"
)

func TestImage(t *testing.T) {
	rng := NewRNG(4711)

	for _, dt := range []ndarray.DType{ndarray.Float64, ndarray.Float32, ndarray.Uint16, ndarray.Bool} {
		img := rng.Image(dt, 4, 5)
		assert.Equal(t, dt, img.DType())
		assert.Equal(t, []int{4, 5}, img.Shape())
	}

	img := rng.Image(ndarray.Float64, 8)
	for _, v := range img.Float64s() {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

func TestImages(t *testing.T) {
	rng := NewRNG(4711)

	imgs := rng.Images(3, ndarray.Uint8, 2, 2)

	assert.Len(t, imgs, 3)
	assert.False(t, imgs[0].Equal(imgs[1]))
}

func TestRecordFitsSchema(t *testing.T) {
	rng := NewRNG(4711)
	schema := metadata.MustNewSchema(map[string]metadata.Column{
		"exp_time":    metadata.Int32Col(),
		"some_string": metadata.StringCol(20),
		"gain":        metadata.Float32Col(),
		"dark":        metadata.BoolCol(),
		"bin":         metadata.Uint8Col(),
	})

	for _, rec := range rng.Records(50, schema) {
		require.NoError(t, schema.Validate(rec))
		assert.Len(t, rec, 5)
	}
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.Image(ndarray.Float64, 10)

	rng.Reset()
	v2 := rng.Image(ndarray.Float64, 10)

	assert.True(t, v1.Equal(v2))
	assert.Equal(t, int64(4711), rng.Seed())
}
