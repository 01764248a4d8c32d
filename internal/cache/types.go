package cache

// Key identifies a decoded chunk: the object it belongs to and the file
// offset of its frame. Frames are immutable once written, so the offset is a
// stable identity for the lifetime of a container.
type Key struct {
	Object uint8
	Offset int64
}

// BlockCache is a byte-oriented cache for immutable decoded chunks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(key Key) (b []byte, ok bool)
	// Set caches a block. Implementations retain b; callers must not modify it.
	Set(key Key, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}
