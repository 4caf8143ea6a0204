// Package ledgerclient is a reference ledger.Client implementation that
// speaks a length-prefixed JSON RPC protocol over a QUIC connection,
// adapted from the teacher's internal/proto frame codec and
// internal/network QUIC dialing.
package ledgerclient

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single RPC frame, the same ceiling the teacher's
// frame codec enforces against a misbehaving peer.
const MaxFrameSize = 1 << 20

// EncodeFrame prefixes payload with its big-endian uint32 length.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("ledgerclient: empty frame payload")
	}
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("ledgerclient: frame payload too large (%d bytes)", len(payload))
	}
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out, nil
}

// WriteFrame writes payload to w as one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}
	total := 0
	for total < len(frame) {
		n, err := w.Write(frame[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > MaxFrameSize {
		return nil, fmt.Errorf("ledgerclient: invalid frame size %d", n)
	}
	payload := make([]byte, int(n))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
