// Package kbytes holds the pure byte/hex/int conversions shared by the
// codec, signer, and identifier layers. Nothing here is protocol-specific.
package kbytes

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// SHA256 returns the 32-byte SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// ToHex lowercases-encodes b as base-16.
func ToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// FromHex decodes an even-length lowercase (or mixed-case) hex string.
// It rejects odd-length input explicitly, matching the ingestion engine's
// first filter step.
func FromHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("kbytes: odd-length hex string (len=%d)", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("kbytes: invalid hex: %w", err)
	}
	return b, nil
}

// PutUint16LE writes v little-endian into a fresh 2-byte slice.
func PutUint16LE(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// Uint16LE reads a little-endian uint16 from the first 2 bytes of b.
func Uint16LE(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

// PadPrefix right-pads (or truncates) s to exactly 4 bytes with 0x00,
// the session façade's prefix-coercion rule.
func PadPrefix(s string) [4]byte {
	var out [4]byte
	copy(out[:], s)
	return out
}

// TrimTrailingZero strips trailing 0x00 bytes and decodes the remainder
// as ASCII, the inverse of PadPrefix used when reading a parsed payload.
func TrimTrailingZero(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}
