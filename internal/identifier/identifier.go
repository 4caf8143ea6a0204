// Package identifier implements the chain-key-driven public-point
// identifiers that label messages without revealing which conversation
// they belong to: §4.3's from_chain_key/next/prev algebra plus the
// secret-holding SecretIdentifier that can sign.
package identifier

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"kaspeak/internal/curve"
	"kaspeak/internal/signer"
)

// Identifier is an immutable 33-byte compressed secp256k1 public point
// used as an opaque, chain-movable message label. next/prev return new
// instances; there is no in-place mutation.
type Identifier struct {
	point curve.Point
}

// FromChainKey computes ID_i = PK · (k^i mod n) for i >= 1. i < 1 fails,
// matching the reference point ID_0 never being materialised.
func FromChainKey(k *big.Int, i int64, pk Identifier) (Identifier, error) {
	if i < 1 {
		return Identifier{}, fmt.Errorf("identifier: index must be >= 1, got %d", i)
	}
	exp, err := curve.PowModWindow4(k, big.NewInt(i), curve.N)
	if err != nil {
		return Identifier{}, fmt.Errorf("identifier: from_chain_key: %w", err)
	}
	p, err := curve.ScalarMul(pk.point, exp)
	if err != nil {
		return Identifier{}, fmt.Errorf("identifier: from_chain_key: %w", err)
	}
	return Identifier{point: p}, nil
}

// FromBytes parses a 33-byte compressed public point as an Identifier.
func FromBytes(b []byte) (Identifier, error) {
	p, err := curve.PointFromBytes(b)
	if err != nil {
		return Identifier{}, fmt.Errorf("identifier: %w", err)
	}
	return Identifier{point: p}, nil
}

// Bytes returns the 33-byte compressed encoding.
func (id Identifier) Bytes() [33]byte {
	return id.point.ToCompressed()
}

// Hex returns the lowercase hex encoding of Bytes.
func (id Identifier) Hex() string {
	b := id.point.ToCompressed()
	return fmt.Sprintf("%x", b[:])
}

// Equal is lexicographic equality of the two 33-byte compressed
// encodings, §4.3's equality rule.
func (id Identifier) Equal(other Identifier) bool {
	return id.point.Equal(other.point)
}

// Next returns ID_i · k^c (c defaults to 1 via NextN).
func (id Identifier) Next(k *big.Int) (Identifier, error) {
	return id.NextN(k, 1)
}

// NextN returns ID_i · k^c for an explicit step count c.
func (id Identifier) NextN(k *big.Int, c int64) (Identifier, error) {
	exp, err := curve.PowModWindow4(k, big.NewInt(c), curve.N)
	if err != nil {
		return Identifier{}, fmt.Errorf("identifier: next: %w", err)
	}
	p, err := curve.ScalarMul(id.point, exp)
	if err != nil {
		return Identifier{}, fmt.Errorf("identifier: next: %w", err)
	}
	return Identifier{point: p}, nil
}

// Prev returns ID_i · (k^-1)^c (c defaults to 1 via PrevN).
func (id Identifier) Prev(k *big.Int) (Identifier, error) {
	return id.PrevN(k, 1)
}

// PrevN returns ID_i · (k^-1)^c for an explicit step count c.
func (id Identifier) PrevN(k *big.Int, c int64) (Identifier, error) {
	kInv, err := curve.ModInverse(k, curve.N)
	if err != nil {
		return Identifier{}, fmt.Errorf("identifier: prev: %w", err)
	}
	exp, err := curve.PowModWindow4(kInv, big.NewInt(c), curve.N)
	if err != nil {
		return Identifier{}, fmt.Errorf("identifier: prev: %w", err)
	}
	p, err := curve.ScalarMul(id.point, exp)
	if err != nil {
		return Identifier{}, fmt.Errorf("identifier: prev: %w", err)
	}
	return Identifier{point: p}, nil
}

// Verify delegates to Schnorr using the identifier point's full
// compressed encoding as the verification key.
func (id Identifier) Verify(sig [64]byte, hash [32]byte) bool {
	c := id.point.ToCompressed()
	return signer.SchnorrVerify(sig, hash, c[:])
}

// SecretIdentifier is an Identifier whose point is Q = G·s for a known
// secret scalar. Only this form can sign; its public-material factories
// (FromChainKey, FromBytes) are deliberately absent from this type.
type SecretIdentifier struct {
	scalar *big.Int
	point  curve.Point
}

// FromSecret reduces s mod n and rejects a zero result.
func FromSecret(s *big.Int) (SecretIdentifier, error) {
	red := new(big.Int).Mod(s, curve.N)
	if red.Sign() == 0 {
		return SecretIdentifier{}, fmt.Errorf("identifier: secret scalar reduces to zero")
	}
	p, err := curve.ScalarBaseMul(red)
	if err != nil {
		return SecretIdentifier{}, fmt.Errorf("identifier: from_secret: %w", err)
	}
	return SecretIdentifier{scalar: red, point: p}, nil
}

// Random draws 32 uniform bytes from the platform CSPRNG, reduces mod n,
// and retries on the zero outcome (probability ~2^-256).
func Random() (SecretIdentifier, error) {
	for {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return SecretIdentifier{}, fmt.Errorf("identifier: random: %w", err)
		}
		s := new(big.Int).SetBytes(buf)
		si, err := FromSecret(s)
		if err != nil {
			continue
		}
		return si, nil
	}
}

// Scalar returns the held secret scalar.
func (s SecretIdentifier) Scalar() *big.Int {
	return new(big.Int).Set(s.scalar)
}

// Public returns the public Identifier view of s, usable anywhere a
// plain Identifier is required (e.g. as a chain's reference point).
func (s SecretIdentifier) Public() Identifier {
	return Identifier{point: s.point}
}

// Bytes returns the 33-byte compressed public point.
func (s SecretIdentifier) Bytes() [33]byte {
	return s.point.ToCompressed()
}

// Hex returns the lowercase hex encoding of Bytes.
func (s SecretIdentifier) Hex() string {
	return s.Public().Hex()
}

// Sign produces a 64-byte Schnorr signature of hash under the stored
// scalar.
func (s SecretIdentifier) Sign(hash [32]byte) ([64]byte, error) {
	return signer.SchnorrSign(hash, s.scalar)
}
