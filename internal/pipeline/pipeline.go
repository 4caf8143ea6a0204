// Package pipeline implements the message codec: typed value ->
// canonical CBOR -> Zstd -> optional XChaCha20-Poly1305, and its
// inverse. Encryption is adapted from the teacher's XSeal/XOpen helpers
// in internal/crypto/crypto.go.
package pipeline

import (
	"crypto/rand"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"

	"kaspeak/internal/klog"
	"kaspeak/internal/kmsg"
)

// KeySize and NonceSize are the XChaCha20-Poly1305 key and nonce sizes
// used whenever a message requires encryption.
const (
	KeySize   = chacha20poly1305.KeySize    // 32
	NonceSize = chacha20poly1305.NonceSizeX // 24
)

// zstdLevel is zstd level 16, which klauspost/compress exposes as its
// SpeedBestCompression encoder level.
const zstdLevel = zstd.SpeedBestCompression

var canonEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("pipeline: building canonical CBOR encoder: %v", err))
	}
	return mode
}()

// Encode runs a registered message through the pipeline. key is
// required iff msg.RequiresEncryption(); a key supplied for a
// non-encrypting message is accepted but ignored.
func Encode(msg kmsg.Message, key []byte) ([]byte, error) {
	if msg.RequiresEncryption() && len(key) == 0 {
		return nil, fmt.Errorf("pipeline: message requires an encryption key")
	}
	if !msg.RequiresEncryption() && len(key) != 0 {
		klog.L().Warn("pipeline: key supplied for a message that does not require encryption; ignoring it", zap.Uint16("type", msg.Type()))
	}

	raw, err := canonEncMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: cbor encode: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel))
	if err != nil {
		return nil, fmt.Errorf("pipeline: zstd writer: %w", err)
	}
	z := enc.EncodeAll(raw, nil)
	_ = enc.Close()

	if !msg.RequiresEncryption() {
		return z, nil
	}

	if len(key) != KeySize {
		return nil, fmt.Errorf("pipeline: encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("pipeline: aead init: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("pipeline: nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, z, nil)
	return append(nonce, ct...), nil
}

// Decode inverts Encode. It fails (returns a non-nil error) only when
// header.Type names no registered message type — every other failure is
// converted to an *kmsg.UnknownMessage result with a stable stage code,
// never propagated as an error.
func Decode(reg *kmsg.Registry, header kmsg.Header, data []byte, key []byte) (kmsg.Message, error) {
	instance, err := reg.Create(header.Type)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	decrypted := data
	if instance.RequiresEncryption() {
		if len(key) == 0 {
			return kmsg.NewUnknownMessage(data, "decryption key required but absent", kmsg.CodeDecryptInvalidKey), nil
		}
		decrypted, err = decryptPayload(key, data)
		if err != nil {
			return kmsg.NewUnknownMessage(data, fmt.Sprintf("decryption failed: invalid key: %v", err), kmsg.CodeDecryptInvalidKey), nil
		}
		if len(decrypted) == 0 {
			return kmsg.NewUnknownMessage(data, "decryption produced empty plaintext", kmsg.CodeDecryptEmpty), nil
		}
	}

	plain, err := zstdDecompress(decrypted)
	if err != nil {
		return kmsg.NewUnknownMessage(data, fmt.Sprintf("decompression failed: %v", err), kmsg.CodeDecompressFailed), nil
	}

	if err := cbor.Unmarshal(plain, instance); err != nil {
		return kmsg.NewUnknownMessage(data, fmt.Sprintf("cbor decode failed: %v", err), kmsg.CodeCBORDecodeFailed), nil
	}

	return instance, nil
}

func decryptPayload(key, data []byte) (_ []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during decrypt: %v", r)
		}
	}()
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(data) < NonceSize {
		return nil, fmt.Errorf("data shorter than nonce (%d bytes)", NonceSize)
	}
	nonce, ct := data[:NonceSize], data[NonceSize:]
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ct, nil)
}

func zstdDecompress(z []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	return dec.DecodeAll(z, nil)
}
