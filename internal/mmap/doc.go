// Package mmap provides read-only memory-mapped file access.
//
// Read-only image stacks map their container file so that chunk frames are
// decoded straight from the page cache without an extra copy through a read
// buffer.
//
//	m, err := mmap.Open("stack.store")
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes()
//	_ = m.Advise(mmap.AccessSequential)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with madvise(2) for access hints
//   - Windows: CreateFileMapping/MapViewOfFile (Advise is a no-op)
//
// Close is idempotent. Callers must not use slices returned by Bytes after
// Close returns.
package mmap
