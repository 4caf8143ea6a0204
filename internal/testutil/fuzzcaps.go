// Package testutil holds fuzz-style helpers used by the payload codec's
// tests: bounding adversarial input sizes and bounding how long a single
// case is allowed to run.
package testutil

import (
	"crypto/rand"
	"testing"
	"time"
)

const (
	// DefaultMaxFuzzBytes caps adversarial data length at the same
	// 65535-byte ceiling the payload codec itself enforces.
	DefaultMaxFuzzBytes = 1<<16 - 1
	DefaultFuzzTimeout  = 100 * time.Millisecond
)

// CapBytes truncates b to max bytes, a no-op when max <= 0 or b is
// already short enough.
func CapBytes(b []byte, max int) []byte {
	if max <= 0 {
		return b
	}
	if len(b) > max {
		return b[:max]
	}
	return b
}

// WithTimeout fails t if fn has not returned within d (DefaultFuzzTimeout
// when d <= 0).
func WithTimeout(t testing.TB, d time.Duration, fn func()) {
	t.Helper()
	if d <= 0 {
		d = DefaultFuzzTimeout
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("timeout after %s", d)
	}
}

// RandomData returns n uniform random bytes, capped at
// DefaultMaxFuzzBytes.
func RandomData(t testing.TB, n int) []byte {
	t.Helper()
	if n < 0 {
		n = 0
	}
	if n > DefaultMaxFuzzBytes {
		n = DefaultMaxFuzzBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("RandomData: %v", err)
	}
	return buf
}
