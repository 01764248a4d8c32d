// Package container implements the single-file storage engine behind an
// image stack.
//
// A container holds named, append-only objects: arrays of fixed-shape items
// and tables of fixed-width records. Items are buffered in memory and
// written in chunk frames of roughly Options.ChunkSize bytes, optionally
// compressed with LZ4 or ZSTD. Every frame carries a CRC32C.
//
// # File Layout
//
//	[superblock 64B][frame]...[directory frame]
//
// Flush appends a new directory frame describing every object and its chunks,
// syncs it, and then rewrites the superblock to point at it. Older directory
// frames stay in the file until compaction. The superblock also remembers the
// previous directory, which is used when the current one fails verification.
//
// # Alignment
//
// A Batch appends one item to several objects as a unit. Frames for every
// object that needs spilling are written first, and chunk references are
// only committed once all writes succeed, so a failed append leaves every
// object at its previous length.
//
// # Read Path
//
// Read-only containers on the local file system are memory-mapped. Decoded
// chunks are kept in a byte-bounded LRU cache.
package container
