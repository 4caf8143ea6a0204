// Package payload implements the fixed 143-byte Kaspeak header record
// and its canonical signing preimage. This is the on-ledger wire format:
// everything above it (pipeline, ingestion, session) builds or consumes
// a Payload.
package payload

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"kaspeak/internal/kbytes"
	"kaspeak/internal/signer"
)

// HeaderSize is the fixed header length in bytes, before data.
const HeaderSize = 143

// marker is the literal 4-byte "KSPK" magic at offset 0.
var marker = [4]byte{0x4B, 0x53, 0x50, 0x4B}

const protocolVersion = 1

// maxDataLen is the largest data payload this implementation accepts.
// §9's open question on the dataLen/data.len() mismatch is resolved in
// favour of rejecting oversized data outright rather than silently
// truncating dataLen to its low 16 bits.
const maxDataLen = 0xFFFF

// Payload is the parsed 143-byte header plus trailing data.
type Payload struct {
	Prefix    [4]byte
	Type      uint16
	ID        [33]byte
	PublicKey [33]byte
	Signature [64]byte
	Data      []byte
}

// Build constructs a Payload with a zero signature. It checks that id
// and publicKey carry a compressed-point prefix byte (0x02 or 0x03) and
// rejects data longer than 65535 bytes; the type range and key lengths
// are fixed by the parameter types.
func Build(prefix [4]byte, msgType uint16, id, publicKey [33]byte, data []byte) (Payload, error) {
	if len(data) > maxDataLen {
		return Payload{}, fmt.Errorf("payload: data too long: %d bytes (max %d)", len(data), maxDataLen)
	}
	if publicKey[0] != 0x02 && publicKey[0] != 0x03 {
		return Payload{}, fmt.Errorf("payload: publicKey has bad compressed prefix 0x%02x", publicKey[0])
	}
	if id[0] != 0x02 && id[0] != 0x03 {
		return Payload{}, fmt.Errorf("payload: id has bad compressed prefix 0x%02x", id[0])
	}
	out := Payload{
		Prefix:    prefix,
		Type:      msgType,
		ID:        id,
		PublicKey: publicKey,
		Data:      append([]byte(nil), data...),
	}
	return out, nil
}

// ToBytes writes the fields at their fixed offsets, little-endian for
// type and dataLen.
func (p Payload) ToBytes() []byte {
	out := make([]byte, HeaderSize+len(p.Data))
	copy(out[0:4], marker[:])
	out[4] = protocolVersion
	copy(out[5:9], p.Prefix[:])
	binary.LittleEndian.PutUint16(out[9:11], p.Type)
	copy(out[11:44], p.ID[:])
	copy(out[44:77], p.PublicKey[:])
	copy(out[77:141], p.Signature[:])
	binary.LittleEndian.PutUint16(out[141:143], uint16(len(p.Data)))
	copy(out[143:], p.Data)
	return out
}

// FromBytes parses b strictly per the header invariants, returning an
// error describing the first violated one.
func FromBytes(b []byte) (Payload, error) {
	if len(b) < HeaderSize {
		return Payload{}, fmt.Errorf("payload: length %d < %d", len(b), HeaderSize)
	}
	if b[0] != marker[0] || b[1] != marker[1] || b[2] != marker[2] || b[3] != marker[3] {
		return Payload{}, fmt.Errorf("payload: marker mismatch")
	}
	if b[4] != protocolVersion {
		return Payload{}, fmt.Errorf("payload: unsupported version %d", b[4])
	}
	var p Payload
	copy(p.Prefix[:], b[5:9])
	p.Type = binary.LittleEndian.Uint16(b[9:11])
	copy(p.ID[:], b[11:44])
	if p.ID[0] != 0x02 && p.ID[0] != 0x03 {
		return Payload{}, fmt.Errorf("payload: id has bad compressed prefix 0x%02x", p.ID[0])
	}
	copy(p.PublicKey[:], b[44:77])
	if p.PublicKey[0] != 0x02 && p.PublicKey[0] != 0x03 {
		return Payload{}, fmt.Errorf("payload: publicKey has bad compressed prefix 0x%02x", p.PublicKey[0])
	}
	copy(p.Signature[:], b[77:141])
	dataLen := binary.LittleEndian.Uint16(b[141:143])
	rest := b[143:]
	if int(dataLen) != len(rest) {
		return Payload{}, fmt.Errorf("payload: dataLen=%d but %d bytes of data present", dataLen, len(rest))
	}
	p.Data = append([]byte(nil), rest...)
	return p, nil
}

// HexOut returns the lowercase hex encoding of ToBytes.
func (p Payload) HexOut() string {
	return kbytes.ToHex(p.ToBytes())
}

// FromHexIn parses a lowercase (or mixed-case) even-length hex string
// into a Payload.
func FromHexIn(s string) (Payload, error) {
	b, err := kbytes.FromHex(s)
	if err != nil {
		return Payload{}, fmt.Errorf("payload: %w", err)
	}
	return FromBytes(b)
}

// Preimage builds the canonical signing message: the lowercase hex
// concatenation of marker‖version‖prefix‖type(LE)‖id‖publicKey‖data,
// followed by outpointIds verbatim (already hex), then SHA256 of the
// resulting UTF-8 string. The signature field is never part of the
// preimage.
func (p Payload) Preimage(outpointIds string) [32]byte {
	var head [4 + 1 + 4 + 2 + 33 + 33]byte
	off := 0
	off += copy(head[off:], marker[:])
	head[off] = protocolVersion
	off++
	off += copy(head[off:], p.Prefix[:])
	binary.LittleEndian.PutUint16(head[off:off+2], p.Type)
	off += 2
	off += copy(head[off:], p.ID[:])
	off += copy(head[off:], p.PublicKey[:])

	var sb strings.Builder
	sb.WriteString(kbytes.ToHex(head[:]))
	sb.WriteString(kbytes.ToHex(p.Data))
	sb.WriteString(outpointIds)

	hash := kbytes.SHA256([]byte(sb.String()))
	var out [32]byte
	copy(out[:], hash)
	return out
}

// Sign computes the canonical preimage over outpointIds, signs it with
// priv via Schnorr, and stores the 64-byte result in Signature.
func (p *Payload) Sign(outpointIds string, priv *big.Int) error {
	hash := p.Preimage(outpointIds)
	sig, err := signer.SchnorrSign(hash, priv)
	if err != nil {
		return fmt.Errorf("payload: sign: %w", err)
	}
	p.Signature = sig
	return nil
}

// Verify recomputes the canonical preimage and checks Signature against
// the full 33-byte compressed PublicKey.
func (p Payload) Verify(outpointIds string) bool {
	hash := p.Preimage(outpointIds)
	return signer.SchnorrVerify(p.Signature, hash, p.PublicKey[:])
}

// TrimmedPrefix decodes Prefix by stripping trailing 0x00 bytes, the
// ingestion engine's prefix-extraction step.
func (p Payload) TrimmedPrefix() string {
	return kbytes.TrimTrailingZero(p.Prefix[:])
}

// CoercePrefix right-pads (or truncates) s to exactly 4 bytes with
// 0x00, §8 invariant 9's prefix coercion rule.
func CoercePrefix(s string) [4]byte {
	return kbytes.PadPrefix(s)
}

// HasMarker reports whether raw hex-decoded bytes begin with the 4-byte
// KSPK magic, the ledger marker filter used before a full parse.
func HasMarker(b []byte) bool {
	return len(b) >= 4 && b[0] == marker[0] && b[1] == marker[1] && b[2] == marker[2] && b[3] == marker[3]
}
