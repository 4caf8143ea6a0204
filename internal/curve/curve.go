// Package curve wraps secp256k1 point arithmetic behind the flat,
// allocation-light API the rest of the module consumes. Besides this
// package, only internal/signer imports github.com/decred/dcrd/dcrec/secp256k1/v4
// (for its schnorr and ecdsa packages); identifier and payload go
// through here and signer for point and signature work.
package curve

import (
	"fmt"
	"math/big"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"

	"kaspeak/internal/kbytes"
)

func leftPad32(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// N is the order of the secp256k1 base point group.
var N = secp256k1.S256().Params().N

// P is the secp256k1 field prime.
var P = secp256k1.S256().Params().P

// Point is an immutable compressed secp256k1 public point.
type Point struct {
	pub *secp256k1.PublicKey
}

// PointFromBytes accepts 33-byte compressed (0x02/0x03 prefix, x) or
// 65-byte uncompressed (0x04, x, y) encodings. It fails when the prefix
// byte is invalid or x has no curve point (non-residue).
func PointFromBytes(b []byte) (Point, error) {
	switch len(b) {
	case 33:
		if b[0] != 0x02 && b[0] != 0x03 {
			return Point{}, fmt.Errorf("curve: bad compressed prefix 0x%02x", b[0])
		}
	case 65:
		if b[0] != 0x04 {
			return Point{}, fmt.Errorf("curve: bad uncompressed prefix 0x%02x", b[0])
		}
	default:
		return Point{}, fmt.Errorf("curve: point must be 33 or 65 bytes, got %d", len(b))
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return Point{}, fmt.Errorf("curve: parse point: %w", err)
	}
	return Point{pub: pub}, nil
}

// ToCompressed returns the 33-byte compressed encoding of p.
func (p Point) ToCompressed() [33]byte {
	var out [33]byte
	copy(out[:], p.pub.SerializeCompressed())
	return out
}

// IsZero reports whether p is the zero-value Point (no curve point set).
func (p Point) IsZero() bool {
	return p.pub == nil
}

// Equal reports lexicographic equality of the two points' compressed
// encodings, per §4.3's equality rule for identifiers.
func (p Point) Equal(other Point) bool {
	if p.IsZero() || other.IsZero() {
		return p.IsZero() == other.IsZero()
	}
	a, b := p.ToCompressed(), other.ToCompressed()
	return a == b
}

// BasePoint returns the secp256k1 base point G.
func BasePoint() Point {
	_, pub := scalarBaseMult(big.NewInt(1))
	return pub
}

// ScalarMul computes s·P with s reduced mod N. s == 0 yields the
// zero-value Point (point at infinity has no valid compressed encoding).
func ScalarMul(p Point, s *big.Int) (Point, error) {
	if p.IsZero() {
		return Point{}, fmt.Errorf("curve: scalar_mul on zero point")
	}
	red := new(big.Int).Mod(s, N)
	if red.Sign() == 0 {
		return Point{}, nil
	}
	var k secp256k1.ModNScalar
	k.SetByteSlice(leftPad32(red))

	var affine, result secp256k1.JacobianPoint
	p.pub.AsJacobian(&affine)
	secp256k1.ScalarMultNonConst(&k, &affine, &result)
	result.ToAffine()
	if result.X.IsZero() && result.Y.IsZero() {
		return Point{}, nil
	}
	pub := secp256k1.NewPublicKey(&result.X, &result.Y)
	return Point{pub: pub}, nil
}

// ScalarBaseMul computes s·G with s reduced mod N.
func ScalarBaseMul(s *big.Int) (Point, error) {
	red := new(big.Int).Mod(s, N)
	if red.Sign() == 0 {
		return Point{}, fmt.Errorf("curve: scalar_base_mul with zero scalar")
	}
	_, pt := scalarBaseMult(red)
	return pt, nil
}

func scalarBaseMult(s *big.Int) (*secp256k1.ModNScalar, Point) {
	var k secp256k1.ModNScalar
	k.SetByteSlice(leftPad32(s))
	var result secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&k, &result)
	result.ToAffine()
	pub := secp256k1.NewPublicKey(&result.X, &result.Y)
	return &k, Point{pub: pub}
}

// SharedSecret computes SHA256(SHA256(compressed(privA · pubB))), the
// ECDH-derived 32-byte value §4.1 specifies.
func SharedSecret(privA *big.Int, pubB Point) ([32]byte, error) {
	shared, err := ScalarMul(pubB, privA)
	if err != nil {
		return [32]byte{}, err
	}
	if shared.IsZero() {
		return [32]byte{}, fmt.Errorf("curve: shared secret is point at infinity")
	}
	compressed := shared.ToCompressed()
	first := kbytes.SHA256(compressed[:])
	second := kbytes.SHA256(first)
	var out [32]byte
	copy(out[:], second)
	return out, nil
}

// ModInverse returns a^-1 mod m via the standard extended-Euclidean
// algorithm (math/big's GCD already implements Lehmer-style binary GCD
// internally); it fails when gcd(a, m) != 1.
func ModInverse(a, m *big.Int) (*big.Int, error) {
	if m.Sign() <= 0 {
		return nil, fmt.Errorf("curve: modulus must be positive")
	}
	aMod := new(big.Int).Mod(a, m)
	g := new(big.Int)
	x := new(big.Int)
	g.GCD(x, nil, aMod, m)
	if g.Cmp(big.NewInt(1)) != 0 {
		return nil, fmt.Errorf("curve: %s has no inverse mod %s (gcd=%s)", a, m, g)
	}
	return x.Mod(x, m), nil
}

// PowModWindow4 computes base^exp mod m using 4-bit windowed modular
// exponentiation, the algorithm §4.1/§4.3 names for k^i mod n.
func PowModWindow4(base, exp, m *big.Int) (*big.Int, error) {
	if m.Sign() <= 0 {
		return nil, fmt.Errorf("curve: modulus must be positive")
	}
	if exp.Sign() < 0 {
		return nil, fmt.Errorf("curve: negative exponent not supported")
	}
	b := new(big.Int).Mod(base, m)

	// Precompute the 16-entry window: table[i] = b^i mod m.
	var table [16]*big.Int
	table[0] = big.NewInt(1)
	for i := 1; i < 16; i++ {
		table[i] = new(big.Int).Mod(new(big.Int).Mul(table[i-1], b), m)
	}

	if exp.Sign() == 0 {
		return big.NewInt(1).Mod(big.NewInt(1), m), nil
	}

	result := big.NewInt(1)
	bits := exp.BitLen()
	// Process 4 bits at a time, most-significant window first.
	nibbles := (bits + 3) / 4
	for w := nibbles - 1; w >= 0; w-- {
		// result = result^16 mod m
		for j := 0; j < 4; j++ {
			result.Mod(result.Mul(result, result), m)
		}
		shift := uint(w * 4)
		nibble := new(big.Int).Rsh(exp, shift)
		nibble.And(nibble, big.NewInt(0xf))
		result.Mod(result.Mul(result, table[nibble.Int64()]), m)
	}
	return result, nil
}
