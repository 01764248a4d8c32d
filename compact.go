package imagestack

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/imagestack/internal/resource"
	"github.com/hupe1980/imagestack/ndarray"
)

// DefaultCompactionBuffer bounds the bytes of images read ahead of the
// writer during compaction.
const DefaultCompactionBuffer = 64 << 20

// Compact is CompactContext with a background context.
func Compact(filename string, optFns ...Option) error {
	return CompactContext(context.Background(), filename, optFns...)
}

// CompactContext rewrites the stack at filename without superseded
// directories, packing every image and metadata row into full chunks. The
// result replaces the original atomically; on failure or cancellation the
// original is untouched.
//
// WithCompression re-encodes all chunks; otherwise the compression of the
// source file is kept. WithCompactionBuffer and WithCompactionIOLimit bound
// the memory and bandwidth the rewrite uses. The stack must not be open for
// writing elsewhere.
func CompactContext(ctx context.Context, filename string, optFns ...Option) (err error) {
	o := applyOptions(optFns)
	logger := o.logger.WithFile(filename)

	src, err := Open(filename, slices.Concat(optFns, []Option{WithMode(ModeReadOnly)})...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, src.Close())
	}()

	template, err := ndarray.Zeros(src.DType(), src.ItemShape()...)
	if err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(filename), "."+filepath.Base(filename)+".compact")
	createOpts := slices.Concat(optFns, []Option{WithSchema(src.Schema())})
	if !o.compressionSet {
		createOpts = append(createOpts, WithCompression(src.Stats().Compression))
	}

	dst, err := Create(tmp, template, createOpts...)
	if err != nil {
		return err
	}

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   o.compactionBuffer,
		IOLimitBytesPerSec: o.compactionIOLimit,
	})
	if err := copyStack(ctx, rc, dst, src); err != nil {
		_ = dst.Close()
		_ = o.fsys.Remove(tmp)
		return fmt.Errorf("compact %s: %w", filename, err)
	}
	if err := dst.Close(); err != nil {
		_ = o.fsys.Remove(tmp)
		return fmt.Errorf("compact %s: %w", filename, err)
	}

	if err := atomic.ReplaceFile(tmp, filename); err != nil {
		_ = o.fsys.Remove(tmp)
		return fmt.Errorf("compact %s: %w", filename, err)
	}

	logger.Info("stack compacted", "length", src.Len(), "rows", src.MetadataLen())
	return nil
}

// copyStack copies images and rows object by object so that a short
// metadata table stays short. Images are read ahead of the writer while
// the controller has memory to spare.
func copyStack(ctx context.Context, rc *resource.Controller, dst, src *ImageStack) error {
	g, gctx := errgroup.WithContext(ctx)
	pending := make(chan *ndarray.Array, 16)

	g.Go(func() error {
		defer close(pending)
		for i := range src.Len() {
			img, err := src.images.At(i)
			if err != nil {
				return translateError(err)
			}
			n := int64(img.NBytes())
			if err := rc.AcquireMemory(gctx, n); err != nil {
				return err
			}
			if err := rc.AcquireIO(gctx, img.NBytes()); err != nil {
				rc.ReleaseMemory(n)
				return err
			}
			select {
			case pending <- img:
			case <-gctx.Done():
				rc.ReleaseMemory(n)
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for img := range pending {
			err := dst.images.Append(img)
			rc.ReleaseMemory(int64(img.NBytes()))
			if err != nil {
				return translateError(err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if src.table == nil {
		return nil
	}

	rowSize := src.table.Schema().RowSize()
	for i := range src.table.Len() {
		row, err := src.table.Row(i)
		if err != nil {
			return translateError(err)
		}
		if err := rc.AcquireIO(ctx, rowSize); err != nil {
			return err
		}
		if err := dst.table.Append(row); err != nil {
			return translateError(err)
		}
	}
	return nil
}
