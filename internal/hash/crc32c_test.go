package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C(t *testing.T) {
	// Known answer from RFC 3720 (iSCSI), 32 bytes of zeros.
	zeros := make([]byte, 32)
	assert.Equal(t, uint32(0x8a9136aa), CRC32C(zeros))

	data := []byte("image stack frame payload")
	h := NewCRC32C()
	_, _ = h.Write(data[:5])
	_, _ = h.Write(data[5:])
	assert.Equal(t, CRC32C(data), h.Sum32())

	assert.Equal(t, CRC32C(data), UpdateCRC32C(CRC32C(data[:7]), data[7:]))
}
