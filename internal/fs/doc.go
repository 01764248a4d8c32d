// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open container file with positional read/write and sync
//   - [FileSystem]: open, remove, rename and stat
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// Production code uses fs.Default (which is [LocalFS]). Tests inject
// [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".store", fs.Fault{FailAfterBytes: 1024})
//
// # Design Notes
//
// This package does NOT include context.Context parameters. Local file
// operations are non-interruptible at the syscall level.
package fs
