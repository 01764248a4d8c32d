// Package resource bounds the memory and IO bandwidth of background jobs
// such as compaction.
//
//   - Memory: a weighted semaphore caps the bytes held in flight, for
//     example images read ahead of the writer.
//   - IO: a token bucket throttles bytes moved per second so a rewrite does
//     not starve foreground readers.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   64 << 20,
//	    IOLimitBytesPerSec: 100 << 20,
//	})
//
//	if err := rc.AcquireMemory(ctx, n); err != nil {
//	    return err
//	}
//	defer rc.ReleaseMemory(n)
//
// All methods are safe for concurrent use and treat a nil Controller as
// unlimited.
package resource
