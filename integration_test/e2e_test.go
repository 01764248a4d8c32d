package integration_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/imagestack"
	"github.com/hupe1980/imagestack/metadata"
	"github.com/hupe1980/imagestack/ndarray"
	"github.com/hupe1980/imagestack/testutil"
)

func schema() *metadata.Schema {
	return metadata.MustNewSchema(map[string]metadata.Column{
		"exp_time": metadata.Int32Col(),
		"session":  metadata.Uint8Col(),
		"target":   metadata.StringCol(16),
	})
}

func record(session, i int) metadata.Record {
	return metadata.Record{
		"exp_time": metadata.Int(int64(i)),
		"session":  metadata.Int(int64(session)),
		"target":   metadata.String("m31"),
	}
}

func TestE2E_SessionsAndRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.isk")
	rng := testutil.NewRNG(11)
	var want []*ndarray.Array

	// 1. Create with the first session
	template, err := ndarray.Zeros(ndarray.Uint16, 16, 16)
	require.NoError(t, err)
	s, err := imagestack.Create(path, template, imagestack.WithSchema(schema()))
	require.NoError(t, err)
	for i := range 5 {
		img := rng.Image(ndarray.Uint16, 16, 16)
		want = append(want, img)
		require.NoError(t, s.AddImage(img, record(0, i)))
	}
	require.NoError(t, s.Close())

	// 2. Append more sessions, each reopening the file
	for session := 1; session <= 3; session++ {
		s, err := imagestack.Open(path,
			imagestack.WithMode(imagestack.ModeAppend),
			imagestack.WithCompression(imagestack.CompressionLZ4),
		)
		require.NoError(t, err)
		require.Equal(t, len(want), s.Len())
		for i := range 5 {
			img := rng.Image(ndarray.Uint16, 16, 16)
			want = append(want, img)
			require.NoError(t, s.AddImage(img, record(session, i)))
		}
		require.NoError(t, s.Close())
	}

	// 3. Reopen read-only and verify everything
	r, err := imagestack.Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, 20, r.Len())
	require.Equal(t, 20, r.MetadataLen())
	for i, img := range r.All() {
		assert.True(t, want[i].Equal(img), "image %d", i)
	}

	sel, err := r.Where(metadata.NewFilterSet(metadata.Eq("session", metadata.Int(2))))
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 11, 12, 13, 14}, sel.ToArray())

	imgs, err := r.Mask(sel)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 16, 16}, imgs.Shape())
}

func TestE2E_TornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.isk")
	template, err := ndarray.Zeros(ndarray.Float32, 4)
	require.NoError(t, err)

	s, err := imagestack.Create(path, template)
	require.NoError(t, err)
	for range 3 {
		require.NoError(t, s.AddImage(testutil.NewRNG(1).Image(ndarray.Float32, 4), nil))
	}
	require.NoError(t, s.Close())

	// Simulate a crash in the middle of writing a frame
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x01, 0x00, 0x00, 0x00, 0x07})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	a, err := imagestack.Open(path, imagestack.WithMode(imagestack.ModeAppend))
	require.NoError(t, err)
	assert.Equal(t, 3, a.Len())
	require.NoError(t, a.AddImage(testutil.NewRNG(2).Image(ndarray.Float32, 4), nil))
	require.NoError(t, a.Close())

	r, err := imagestack.Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 4, r.Len())
}

func TestE2E_ConcurrentReaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.isk")
	rng := testutil.NewRNG(5)
	images := rng.Images(40, ndarray.Int32, 8, 8)

	template, err := ndarray.Zeros(ndarray.Int32, 8, 8)
	require.NoError(t, err)
	s, err := imagestack.Create(path, template, imagestack.WithChunkSize(1024))
	require.NoError(t, err)
	for _, img := range images {
		require.NoError(t, s.AddImage(img, nil))
	}
	require.NoError(t, s.Close())

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := imagestack.Open(path, imagestack.WithMmap(w%2 == 0))
			if !assert.NoError(t, err) {
				return
			}
			defer r.Close()
			for i := range images {
				img, err := r.At(-1 - i)
				if !assert.NoError(t, err) {
					return
				}
				assert.True(t, images[len(images)-1-i].Equal(img))
			}
		}()
	}
	wg.Wait()
}

func TestE2E_CompactAfterSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.isk")
	template, err := ndarray.Zeros(ndarray.Uint8, 32, 32)
	require.NoError(t, err)

	s, err := imagestack.Create(path, template, imagestack.WithSchema(schema()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	rng := testutil.NewRNG(9)
	for session := range 10 {
		s, err := imagestack.Open(path, imagestack.WithMode(imagestack.ModeAppend))
		require.NoError(t, err)
		require.NoError(t, s.AddImage(rng.Image(ndarray.Uint8, 32, 32), record(session, 0)))
		require.NoError(t, s.Close())
	}

	before, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, imagestack.Compact(path))
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, after.Size(), before.Size())

	r, err := imagestack.Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 10, r.Len())
	assert.Equal(t, 10, r.MetadataLen())
	for i := range 10 {
		rec, err := r.Metadata(i)
		require.NoError(t, err)
		assert.Equal(t, int64(i), rec["session"].I64)
	}
}
