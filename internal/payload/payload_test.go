package payload

import (
	"math/big"
	"strings"
	"testing"

	"kaspeak/internal/curve"
	"kaspeak/internal/testutil"
)

func compressedG(t *testing.T) [33]byte {
	t.Helper()
	g := curve.BasePoint()
	return g.ToCompressed()
}

// TestRoundTripFrame is S1: prefix="TEST", type=1,
// id=02·(31 zero bytes)·01, publicKey=compressed(G), data=[de,ad,be,ef]
// => to_bytes length=147; first 4 bytes 4B 53 50 4B; byte at offset 4
// = 0x01; bytes[141..143] = 04 00.
func TestRoundTripFrame(t *testing.T) {
	var id [33]byte
	id[0] = 0x02
	id[32] = 0x01
	pub := compressedG(t)
	data := []byte{0xde, 0xad, 0xbe, 0xef}

	p, err := Build(CoercePrefix("TEST"), 1, id, pub, data)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	b := p.ToBytes()
	if len(b) != 147 {
		t.Fatalf("ToBytes length = %d, want 147", len(b))
	}
	if b[0] != 0x4B || b[1] != 0x53 || b[2] != 0x50 || b[3] != 0x4B {
		t.Fatalf("marker mismatch: % x", b[0:4])
	}
	if b[4] != 0x01 {
		t.Fatalf("version byte = 0x%02x, want 0x01", b[4])
	}
	if b[141] != 0x04 || b[142] != 0x00 {
		t.Fatalf("dataLen bytes = % x, want 04 00", b[141:143])
	}

	parsed, err := FromBytes(b)
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}
	if parsed.Prefix != p.Prefix || parsed.Type != p.Type || parsed.ID != p.ID ||
		parsed.PublicKey != p.PublicKey || parsed.Signature != p.Signature ||
		string(parsed.Data) != string(p.Data) {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", parsed, p)
	}
}

func TestBuildRejectsOversizedData(t *testing.T) {
	var id, pub [33]byte
	id[0], pub[0] = 0x02, 0x02
	data := make([]byte, maxDataLen+1)
	if _, err := Build(CoercePrefix("TEST"), 1, id, pub, data); err == nil {
		t.Fatalf("expected error for data exceeding 65535 bytes")
	}
}

func TestBuildRejectsBadPrefixByte(t *testing.T) {
	var id, pub [33]byte
	id[0] = 0x04
	pub[0] = 0x02
	if _, err := Build(CoercePrefix("TEST"), 1, id, pub, nil); err == nil {
		t.Fatalf("expected error for bad id compressed prefix")
	}
}

func TestFromBytesRejectsShortInput(t *testing.T) {
	if _, err := FromBytes(make([]byte, 100)); err == nil {
		t.Fatalf("expected error for input shorter than header")
	}
}

func TestFromBytesRejectsMarkerMismatch(t *testing.T) {
	var id, pub [33]byte
	id[0], pub[0] = 0x02, 0x02
	p, err := Build(CoercePrefix("TEST"), 1, id, pub, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	b := p.ToBytes()
	b[0] = 0x00
	if _, err := FromBytes(b); err == nil {
		t.Fatalf("expected error for marker mismatch")
	}
}

func TestFromBytesRejectsDataLenMismatch(t *testing.T) {
	var id, pub [33]byte
	id[0], pub[0] = 0x02, 0x02
	p, err := Build(CoercePrefix("TEST"), 1, id, pub, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	b := p.ToBytes()
	b = append(b, 0xff) // extra trailing byte not reflected in dataLen
	if _, err := FromBytes(b); err == nil {
		t.Fatalf("expected error for dataLen/length mismatch")
	}
}

// TestSignVerify is S2: priv=6, publicKey=G·6, empty data,
// outpointIds="aa"*64: sign then verify == true; flipping any byte of
// publicKey => false.
func TestSignVerify(t *testing.T) {
	priv := big.NewInt(6)
	pub, err := curve.ScalarBaseMul(priv)
	if err != nil {
		t.Fatalf("ScalarBaseMul failed: %v", err)
	}
	pubC := pub.ToCompressed()
	var id [33]byte
	id[0] = 0x02
	id[32] = 0x01

	outpointIds := strings.Repeat("aa", 64)

	p, err := Build(CoercePrefix("TEST"), 1, id, pubC, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := p.Sign(outpointIds, priv); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !p.Verify(outpointIds) {
		t.Fatalf("Verify returned false for a just-signed payload")
	}

	tampered := p
	tampered.PublicKey[5] ^= 0xff
	if tampered.Verify(outpointIds) {
		t.Fatalf("Verify returned true after flipping a publicKey byte")
	}
}

func TestPreimageDeterministic(t *testing.T) {
	var id, pub [33]byte
	id[0], pub[0] = 0x02, 0x03
	p, err := Build(CoercePrefix("ABCD"), 42, id, pub, []byte("hello"))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	h1 := p.Preimage("deadbeef")
	h2 := p.Preimage("deadbeef")
	if h1 != h2 {
		t.Fatalf("preimage not deterministic for identical inputs")
	}
}

func TestTrimmedPrefixAndCoercion(t *testing.T) {
	if got := CoercePrefix("AB"); got != ([4]byte{'A', 'B', 0, 0}) {
		t.Fatalf("CoercePrefix(AB) = %v", got)
	}
	var id, pub [33]byte
	id[0], pub[0] = 0x02, 0x02
	p, err := Build(CoercePrefix("AB"), 1, id, pub, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := p.TrimmedPrefix(); got != "AB" {
		t.Fatalf("TrimmedPrefix() = %q, want AB", got)
	}
}

func TestHasMarker(t *testing.T) {
	if !HasMarker([]byte{0x4B, 0x53, 0x50, 0x4B, 0x01}) {
		t.Fatalf("HasMarker should accept the KSPK magic")
	}
	if HasMarker([]byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("HasMarker should reject non-matching bytes")
	}
}

func TestRoundTripWithRandomFuzzData(t *testing.T) {
	var id, pub [33]byte
	id[0], pub[0] = 0x02, 0x02
	testutil.WithTimeout(t, 0, func() {
		for i := 0; i < 20; i++ {
			data := testutil.RandomData(t, i*997)
			p, err := Build(CoercePrefix("FUZZ"), uint16(i), id, pub, data)
			if err != nil {
				t.Fatalf("Build failed at i=%d: %v", i, err)
			}
			parsed, err := FromBytes(p.ToBytes())
			if err != nil {
				t.Fatalf("FromBytes failed at i=%d: %v", i, err)
			}
			if string(parsed.Data) != string(p.Data) {
				t.Fatalf("round-trip data mismatch at i=%d", i)
			}
		}
	})
}

func TestHexInOutRoundTrip(t *testing.T) {
	var id, pub [33]byte
	id[0], pub[0] = 0x02, 0x02
	p, err := Build(CoercePrefix("TEST"), 7, id, pub, []byte{1, 2})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	hexOut := p.HexOut()
	parsed, err := FromHexIn(hexOut)
	if err != nil {
		t.Fatalf("FromHexIn failed: %v", err)
	}
	if parsed.HexOut() != hexOut {
		t.Fatalf("hex round-trip mismatch")
	}
}
