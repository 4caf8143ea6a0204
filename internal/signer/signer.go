// Package signer implements the two secp256k1 signature schemes §4.2
// requires: Schnorr (used for all payload authentication) and ECDSA
// (provided for completeness). Both share the same message-hash rule and
// emit fixed 64-byte signatures. Both verify against the full 33-byte
// compressed public key; neither uses an x-only key.
package signer

import (
	"fmt"
	"math/big"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"kaspeak/internal/kbytes"
)

// HashHexString implements §4.2's signed-value rule: SHA256 of the UTF-8
// bytes of msg if msg looks like it was produced as a hex string by the
// caller, or of the raw bytes otherwise. Since Go has no dynamic
// string/bytes union, callers pick the right entry point explicitly:
// HashHexString for the "string" case, HashBytes for the "bytes" case.
func HashHexString(hexStr string) [32]byte {
	sum := kbytes.SHA256([]byte(hexStr))
	var out [32]byte
	copy(out[:], sum)
	return out
}

// HashBytes hashes raw bytes directly, the non-string branch of §4.2's
// message rule.
func HashBytes(b []byte) [32]byte {
	sum := kbytes.SHA256(b)
	var out [32]byte
	copy(out[:], sum)
	return out
}

func privFromScalar(priv *big.Int) *secp256k1.PrivateKey {
	var s secp256k1.ModNScalar
	s.SetByteSlice(leftPad32(priv))
	return secp256k1.NewPrivateKey(&s)
}

func leftPad32(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// SchnorrSign signs a 32-byte message hash with priv, returning the
// 64-byte BIP-340-style signature.
func SchnorrSign(hash [32]byte, priv *big.Int) ([64]byte, error) {
	key := privFromScalar(priv)
	sig, err := schnorr.Sign(key, hash[:])
	if err != nil {
		return [64]byte{}, fmt.Errorf("signer: schnorr sign: %w", err)
	}
	var out [64]byte
	copy(out[:], sig.Serialize())
	return out, nil
}

// SchnorrVerify reports whether sig is a valid Schnorr signature of hash
// under pubKeyCompressed (33-byte compressed form). The whole key is
// parsed, prefix byte included, so the y parity it selects takes part in
// verification; this is not x-only verification. It never returns an
// error: malformed input simply verifies as false.
func SchnorrVerify(sig [64]byte, hash [32]byte, pubKeyCompressed []byte) bool {
	if len(pubKeyCompressed) != 33 {
		return false
	}
	pub, err := secp256k1.ParsePubKey(pubKeyCompressed)
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return false
	}
	return parsed.Verify(hash[:], pub)
}

// SchnorrVerifyBytes is SchnorrVerify for a caller holding the 64-byte
// signature as a plain slice rather than an array (e.g. straight off the
// wire, before the fixed-size invariant has been checked).
func SchnorrVerifyBytes(sig []byte, hash [32]byte, pubKeyCompressed []byte) bool {
	if len(sig) != 64 {
		return false
	}
	var fixed [64]byte
	copy(fixed[:], sig)
	return SchnorrVerify(fixed, hash, pubKeyCompressed)
}

// ECDSASign signs hash with priv and returns the flat 64-byte r‖s
// encoding §4.2 requires. decred's ecdsa.Signature only exposes DER via
// Serialize, so the result is reduced to raw fixed-width r and s here.
func ECDSASign(hash [32]byte, priv *big.Int) ([64]byte, error) {
	key := privFromScalar(priv)
	sig := ecdsa.Sign(key, hash[:])
	return rsFromSignature(sig)
}

// ECDSAVerify reports whether sig (64-byte r‖s) is a valid ECDSA
// signature of hash under pubKeyCompressed. Malformed input verifies as
// false rather than erroring.
func ECDSAVerify(sig [64]byte, hash [32]byte, pubKeyCompressed []byte) bool {
	pub, err := secp256k1.ParsePubKey(pubKeyCompressed)
	if err != nil {
		return false
	}
	var r, s secp256k1.ModNScalar
	r.SetByteSlice(sig[:32])
	s.SetByteSlice(sig[32:])
	parsed := ecdsa.NewSignature(&r, &s)
	return parsed.Verify(hash[:], pub)
}

// rsFromSignature strips sig's DER envelope down to the flat 32-byte r
// and 32-byte s integers the wire format wants.
func rsFromSignature(sig *ecdsa.Signature) ([64]byte, error) {
	der := sig.Serialize()
	r, s, err := parseDER(der)
	if err != nil {
		return [64]byte{}, fmt.Errorf("signer: ecdsa sign: %w", err)
	}
	var out [64]byte
	copy(out[0:32], leftPad32(r))
	copy(out[32:64], leftPad32(s))
	return out, nil
}

// parseDER decodes a minimal DER ECDSA signature
// (0x30 len 0x02 rlen r 0x02 slen s) into its two integers. decred's
// Serialize always emits this exact shape, so the parser need not handle
// the full ASN.1 grammar — only the two-INTEGER SEQUENCE it produces.
func parseDER(b []byte) (r, s *big.Int, err error) {
	if len(b) < 8 || b[0] != 0x30 {
		return nil, nil, fmt.Errorf("malformed DER signature")
	}
	seqLen := int(b[1])
	if len(b) != seqLen+2 {
		return nil, nil, fmt.Errorf("malformed DER signature length")
	}
	off := 2
	rVal, n, err := parseDERInt(b, off)
	if err != nil {
		return nil, nil, err
	}
	off += n
	sVal, _, err := parseDERInt(b, off)
	if err != nil {
		return nil, nil, err
	}
	return rVal, sVal, nil
}

func parseDERInt(b []byte, off int) (*big.Int, int, error) {
	if off+2 > len(b) || b[off] != 0x02 {
		return nil, 0, fmt.Errorf("malformed DER integer")
	}
	l := int(b[off+1])
	if off+2+l > len(b) {
		return nil, 0, fmt.Errorf("malformed DER integer length")
	}
	v := new(big.Int).SetBytes(b[off+2 : off+2+l])
	return v, 2 + l, nil
}
