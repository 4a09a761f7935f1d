package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of a seal master key.
const KeySize = chacha20poly1305.KeySize

// sealInfo is the HKDF context for the payload key. Bump the version byte of
// sealed payloads together with it.
const sealInfo = "kdcode-seal-v1"

// ErrInvalidKeyLength is returned when the provided key length is invalid.
var ErrInvalidKeyLength = errors.New("invalid key length")

// generateRandomBytes returns length bytes from crypto/rand.
func generateRandomBytes(length int) ([]byte, error) {
	b := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateKey returns a fresh random master key.
func GenerateKey() ([]byte, error) {
	return generateRandomBytes(KeySize)
}

// ParseKeyHex decodes a hex master key, as stored in configuration.
func ParseKeyHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("seal key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidKeyLength, len(key), KeySize)
	}
	return key, nil
}

// deriveSealKey derives the AEAD key from the master key using HKDF-SHA256.
func deriveSealKey(master []byte) ([]byte, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidKeyLength, len(master), KeySize)
	}
	h := hkdf.New(sha256.New, master, nil, []byte(sealInfo))
	out := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

// wipe zeroes sensitive bytes.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
