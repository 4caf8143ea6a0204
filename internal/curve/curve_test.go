package curve

import (
	"math/big"
	"testing"
)

func TestPointFromBytesRejectsBadPrefix(t *testing.T) {
	b := make([]byte, 33)
	b[0] = 0x01
	if _, err := PointFromBytes(b); err == nil {
		t.Fatalf("expected error for bad compressed prefix")
	}
}

func TestPointFromBytesRejectsBadLength(t *testing.T) {
	if _, err := PointFromBytes(make([]byte, 32)); err == nil {
		t.Fatalf("expected error for short input")
	}
}

func TestScalarMulRoundTrip(t *testing.T) {
	g := BasePoint()
	p, err := ScalarMul(g, big.NewInt(6))
	if err != nil {
		t.Fatalf("ScalarMul failed: %v", err)
	}
	q, err := ScalarBaseMul(big.NewInt(6))
	if err != nil {
		t.Fatalf("ScalarBaseMul failed: %v", err)
	}
	if !p.Equal(q) {
		t.Fatalf("G*6 via ScalarMul != G*6 via ScalarBaseMul")
	}
}

func TestScalarMulZeroIsInfinity(t *testing.T) {
	g := BasePoint()
	p, err := ScalarMul(g, big.NewInt(0))
	if err != nil {
		t.Fatalf("ScalarMul(0) failed: %v", err)
	}
	if !p.IsZero() {
		t.Fatalf("ScalarMul by zero must yield point at infinity")
	}
}

func TestModInverse(t *testing.T) {
	m := big.NewInt(97)
	a := big.NewInt(13)
	inv, err := ModInverse(a, m)
	if err != nil {
		t.Fatalf("ModInverse failed: %v", err)
	}
	prod := new(big.Int).Mod(new(big.Int).Mul(a, inv), m)
	if prod.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("a * a^-1 mod m = %s, want 1", prod)
	}
}

func TestModInverseNoInverse(t *testing.T) {
	// gcd(4, 8) = 4 != 1
	if _, err := ModInverse(big.NewInt(4), big.NewInt(8)); err == nil {
		t.Fatalf("expected error for non-invertible input")
	}
}

func TestPowModWindow4MatchesExpInt(t *testing.T) {
	base := big.NewInt(12345)
	exp := big.NewInt(6789)
	m := N
	got, err := PowModWindow4(base, exp, m)
	if err != nil {
		t.Fatalf("PowModWindow4 failed: %v", err)
	}
	want := new(big.Int).Exp(base, exp, m)
	if got.Cmp(want) != 0 {
		t.Fatalf("PowModWindow4 = %s, want %s", got, want)
	}
}

func TestPowModWindow4ZeroExponent(t *testing.T) {
	got, err := PowModWindow4(big.NewInt(5), big.NewInt(0), big.NewInt(97))
	if err != nil {
		t.Fatalf("PowModWindow4 failed: %v", err)
	}
	if got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("x^0 mod m = %s, want 1", got)
	}
}

func TestSharedSecretSymmetric(t *testing.T) {
	a := big.NewInt(6)
	b := big.NewInt(1337)
	pubA, err := ScalarBaseMul(a)
	if err != nil {
		t.Fatalf("ScalarBaseMul(a) failed: %v", err)
	}
	pubB, err := ScalarBaseMul(b)
	if err != nil {
		t.Fatalf("ScalarBaseMul(b) failed: %v", err)
	}
	ssA, err := SharedSecret(a, pubB)
	if err != nil {
		t.Fatalf("SharedSecret(a, pubB) failed: %v", err)
	}
	ssB, err := SharedSecret(b, pubA)
	if err != nil {
		t.Fatalf("SharedSecret(b, pubA) failed: %v", err)
	}
	if ssA != ssB {
		t.Fatalf("ECDH shared secret not symmetric")
	}
}
