package ledgerclient

import (
	"bytes"
	"testing"
)

func TestEncodeFrameRejectsEmptyPayload(t *testing.T) {
	if _, err := EncodeFrame(nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"method":"get_utxos_by_addresses"}`)
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-trip mismatch: got %s, want %s", got, payload)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	// A length prefix claiming more than MaxFrameSize bytes follow.
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := ReadFrame(&buf); err == nil {
		t.Fatalf("expected error for an oversized frame length")
	}
}

func TestReadFrameRejectsTruncatedInput(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x00, 0x05})
	buf.WriteString("ab") // only 2 of the promised 5 bytes
	if _, err := ReadFrame(&buf); err == nil {
		t.Fatalf("expected error for truncated frame body")
	}
}
