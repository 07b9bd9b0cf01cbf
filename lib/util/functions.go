package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// GenerateSeed returns 64 random bits from crypto/rand.
// Memory servers use it for region access keys, so a key cannot be guessed
// from the region address.
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand is not supposed to fail, the clock is the last resort
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}
