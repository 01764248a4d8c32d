package container

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/imagestack/internal/conv"
	"github.com/hupe1980/imagestack/internal/hash"
)

const (
	// Magic identifies an imagestack container ("ISK1").
	Magic = "ISK1"
	// Version is the on-disk format version.
	Version = 1

	// SuperblockSize is the fixed size of the file header.
	SuperblockSize = 64
	// FrameHeaderSize is the size of the header preceding every frame payload.
	FrameHeaderSize = 24

	maxCodecName = 16
)

type frameKind uint8

const (
	frameChunk     frameKind = 1
	frameDirectory frameKind = 2
)

// superblock is the fixed-size header at offset 0. It points at the current
// directory frame and at the one it replaced.
//
// Layout:
//
//	[0:4]   magic
//	[4:6]   version
//	[6:8]   flags
//	[8]     default compression
//	[9]     codec name length
//	[10:26] codec name
//	[32:40] directory offset
//	[40:44] directory frame size
//	[44:48] directory crc32c
//	[48:56] previous directory offset
//	[56:60] previous directory frame size
//	[60:64] header crc32c over [0:60]
type superblock struct {
	Version     uint16
	Flags       uint16
	Compression Compression
	Codec       string
	DirOffset   int64
	DirSize     uint32
	DirCRC      uint32
	PrevOffset  int64
	PrevSize    uint32
}

func (sb *superblock) encode() []byte {
	buf := make([]byte, SuperblockSize)
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:], sb.Version)
	binary.LittleEndian.PutUint16(buf[6:], sb.Flags)
	buf[8] = byte(sb.Compression)
	buf[9] = byte(copy(buf[10:10+maxCodecName], sb.Codec))
	binary.LittleEndian.PutUint64(buf[32:], uint64(sb.DirOffset))
	binary.LittleEndian.PutUint32(buf[40:], sb.DirSize)
	binary.LittleEndian.PutUint32(buf[44:], sb.DirCRC)
	binary.LittleEndian.PutUint64(buf[48:], uint64(sb.PrevOffset))
	binary.LittleEndian.PutUint32(buf[56:], sb.PrevSize)
	binary.LittleEndian.PutUint32(buf[60:], hash.CRC32C(buf[:60]))
	return buf
}

func decodeSuperblock(buf []byte) (*superblock, error) {
	if len(buf) < SuperblockSize {
		return nil, fmt.Errorf("%w: short superblock (%d bytes)", ErrCorrupted, len(buf))
	}
	if string(buf[0:4]) != Magic {
		return nil, ErrInvalidMagic
	}
	if got, want := hash.CRC32C(buf[:60]), binary.LittleEndian.Uint32(buf[60:]); got != want {
		return nil, fmt.Errorf("%w: superblock checksum %08x != %08x", ErrCorrupted, got, want)
	}
	sb := &superblock{
		Version:     binary.LittleEndian.Uint16(buf[4:]),
		Flags:       binary.LittleEndian.Uint16(buf[6:]),
		Compression: Compression(buf[8]),
		DirSize:     binary.LittleEndian.Uint32(buf[40:]),
		DirCRC:      binary.LittleEndian.Uint32(buf[44:]),
		PrevSize:    binary.LittleEndian.Uint32(buf[56:]),
	}
	var err error
	if sb.DirOffset, err = conv.Uint64ToInt64(binary.LittleEndian.Uint64(buf[32:])); err != nil {
		return nil, fmt.Errorf("%w: directory offset: %v", ErrCorrupted, err)
	}
	if sb.PrevOffset, err = conv.Uint64ToInt64(binary.LittleEndian.Uint64(buf[48:])); err != nil {
		return nil, fmt.Errorf("%w: previous directory offset: %v", ErrCorrupted, err)
	}
	if sb.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, sb.Version)
	}
	n := int(buf[9])
	if n > maxCodecName {
		return nil, fmt.Errorf("%w: codec name length %d", ErrCorrupted, n)
	}
	sb.Codec = string(buf[10 : 10+n])
	return sb, nil
}

// frameHeader precedes every payload written to the file.
//
// Layout:
//
//	[0]     kind
//	[1]     object id
//	[2]     compression
//	[3]     reserved
//	[4:8]   item count
//	[8:12]  raw (decoded) length
//	[12:16] stored length
//	[16:20] crc32c over [0:16] and the stored payload
//	[20:24] reserved
type frameHeader struct {
	Kind        frameKind
	Object      uint8
	Compression Compression
	Count       uint32
	RawLen      uint32
	StoredLen   uint32
	CRC         uint32
}

func (h *frameHeader) put(buf []byte) {
	clear(buf[:FrameHeaderSize])
	buf[0] = byte(h.Kind)
	buf[1] = h.Object
	buf[2] = byte(h.Compression)
	binary.LittleEndian.PutUint32(buf[4:], h.Count)
	binary.LittleEndian.PutUint32(buf[8:], h.RawLen)
	binary.LittleEndian.PutUint32(buf[12:], h.StoredLen)
	binary.LittleEndian.PutUint32(buf[16:], h.CRC)
}

func decodeFrameHeader(buf []byte) frameHeader {
	return frameHeader{
		Kind:        frameKind(buf[0]),
		Object:      buf[1],
		Compression: Compression(buf[2]),
		Count:       binary.LittleEndian.Uint32(buf[4:]),
		RawLen:      binary.LittleEndian.Uint32(buf[8:]),
		StoredLen:   binary.LittleEndian.Uint32(buf[12:]),
		CRC:         binary.LittleEndian.Uint32(buf[16:]),
	}
}

// encodeFrame compresses raw and returns the complete frame bytes.
func encodeFrame(kind frameKind, object uint8, count int, raw []byte, c Compression) ([]byte, error) {
	stored, used, err := compressBlock(raw, c)
	if err != nil {
		return nil, err
	}
	n, err := conv.IntToUint32(count)
	if err != nil {
		return nil, err
	}
	rawLen, err := conv.IntToUint32(len(raw))
	if err != nil {
		return nil, err
	}
	storedLen, err := conv.IntToUint32(len(stored))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, FrameHeaderSize+len(stored))
	h := frameHeader{
		Kind:        kind,
		Object:      object,
		Compression: used,
		Count:       n,
		RawLen:      rawLen,
		StoredLen:   storedLen,
	}
	h.put(buf)
	copy(buf[FrameHeaderSize:], stored)
	h.CRC = frameCRC(buf[:16], stored)
	binary.LittleEndian.PutUint32(buf[16:], h.CRC)
	return buf, nil
}

func frameCRC(head, payload []byte) uint32 {
	return hash.UpdateCRC32C(hash.CRC32C(head), payload)
}
