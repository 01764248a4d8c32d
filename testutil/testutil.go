package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/imagestack/metadata"
	"github.com/hupe1980/imagestack/ndarray"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// FillUniform fills dst with random values in range [0, 1).
// Locks only once per call (preferred over calling Float64 in a loop).
func (r *RNG) FillUniform(dst []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float64()
	}
}

// Image returns a random image of the given dtype and shape. Float images
// hold values in [0, 1); integer images hold uniformly random bytes; bool
// images hold 0 or 1.
func (r *RNG) Image(dtype ndarray.DType, shape ...int) *ndarray.Array {
	n, err := ndarray.NumElements(shape)
	if err != nil {
		panic(err)
	}

	var img *ndarray.Array
	switch dtype {
	case ndarray.Float64:
		vals := make([]float64, n)
		r.FillUniform(vals)
		img, err = ndarray.FromSlice(vals, shape...)
	case ndarray.Float32:
		vals := make([]float32, n)
		r.mu.Lock()
		for i := range vals {
			vals[i] = r.rand.Float32()
		}
		r.mu.Unlock()
		img, err = ndarray.FromSlice(vals, shape...)
	case ndarray.Bool:
		data := make([]byte, n)
		r.mu.Lock()
		for i := range data {
			data[i] = byte(r.rand.Intn(2))
		}
		r.mu.Unlock()
		img, err = ndarray.New(dtype, shape, data)
	default:
		data := make([]byte, n*dtype.Size())
		r.mu.Lock()
		_, _ = r.rand.Read(data)
		r.mu.Unlock()
		img, err = ndarray.New(dtype, shape, data)
	}
	if err != nil {
		panic(err)
	}
	return img
}

// Images returns num random images of the same dtype and shape.
func (r *RNG) Images(num int, dtype ndarray.DType, shape ...int) []*ndarray.Array {
	out := make([]*ndarray.Array, num)
	for i := range out {
		out[i] = r.Image(dtype, shape...)
	}
	return out
}

const letters = "abcdefghijklmnopqrstuvwxyz"

// Record returns a random record that fits schema. Integers stay within
// the column range and strings within the column size.
func (r *RNG) Record(schema *metadata.Schema) metadata.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := make(metadata.Record, schema.Len())
	for _, f := range schema.Fields() {
		rec[f.Name] = r.valueLocked(f.Column)
	}
	return rec
}

// Records returns num random records that fit schema.
func (r *RNG) Records(num int, schema *metadata.Schema) []metadata.Record {
	out := make([]metadata.Record, num)
	for i := range out {
		out[i] = r.Record(schema)
	}
	return out
}

func (r *RNG) valueLocked(c metadata.Column) metadata.Value {
	switch c.Type {
	case metadata.ColBool:
		return metadata.Bool(r.rand.Intn(2) == 1)
	case metadata.ColInt8, metadata.ColUint8:
		return metadata.Int(int64(r.rand.Intn(100)))
	case metadata.ColFloat32, metadata.ColFloat64:
		return metadata.Float(float64(r.rand.Float32()))
	case metadata.ColString:
		b := make([]byte, r.rand.Intn(c.Size+1))
		for i := range b {
			b[i] = letters[r.rand.Intn(len(letters))]
		}
		return metadata.String(string(b))
	default:
		return metadata.Int(int64(r.rand.Intn(1 << 15)))
	}
}
