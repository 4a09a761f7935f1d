// Package crypto seals short texts so they can travel inside a KD-Code: the
// symbol carries ciphertext, and only holders of the master key recover the
// text after scanning.
package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const version byte = 1

// Overhead is the number of raw bytes Seal adds before base64 encoding.
const Overhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var (
	// ErrMalformed is returned for input that is not a sealed payload.
	ErrMalformed = errors.New("crypto: malformed sealed payload")
	// ErrOpen is returned when authentication fails: wrong key or tampered data.
	ErrOpen = errors.New("crypto: cannot open sealed payload")
)

var encoding = base64.RawURLEncoding

// Seal encrypts plaintext with XChaCha20-Poly1305 under a key derived from
// master, and returns version || nonce || ciphertext as unpadded base64url.
// The version byte is authenticated as associated data.
func Seal(master []byte, plaintext string) (string, error) {
	key, err := deriveSealKey(master)
	if err != nil {
		return "", err
	}
	defer wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce, err := generateRandomBytes(aead.NonceSize())
	if err != nil {
		return "", fmt.Errorf("crypto: nonce: %w", err)
	}

	out := make([]byte, 0, Overhead+len(plaintext))
	out = append(out, version)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), []byte{version})
	return encoding.EncodeToString(out), nil
}

// Open reverses Seal.
func Open(master []byte, sealed string) (string, error) {
	raw, err := encoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < Overhead {
		return "", fmt.Errorf("%w: %d bytes", ErrMalformed, len(raw))
	}
	if raw[0] != version {
		return "", fmt.Errorf("%w: unknown version %d", ErrMalformed, raw[0])
	}

	key, err := deriveSealKey(master)
	if err != nil {
		return "", err
	}
	defer wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	nonce := raw[1 : 1+aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, raw[1+aead.NonceSize():], raw[:1])
	if err != nil {
		return "", ErrOpen
	}
	return string(plain), nil
}

// SealedLen returns the length of Seal's output for a plaintext of n bytes.
func SealedLen(n int) int {
	return encoding.EncodedLen(Overhead + n)
}
