// Package hash provides the checksums used by the container format.
//
// Every frame payload and the superblock carry a CRC32-Castagnoli checksum.
// CRC32C is hardware accelerated on x86 (SSE4.2) and ARM (CRC extension) and
// detects all single-bit, double-bit and odd-bit errors, plus burst errors up
// to 32 bits.
//
// For one-shot checksums:
//
//	checksum := hash.CRC32C(data)
//
// For streaming checksums:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
package hash
