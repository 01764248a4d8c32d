// Package testutil provides testing utilities for imagestack.
//
// This package is intended for use in tests and benchmarks only.
// It provides deterministic generators for images and metadata records.
//
//	rng := testutil.NewRNG(seed)
//	img := rng.Image(ndarray.Float64, 100, 200)
//	rec := rng.Record(schema)
package testutil
