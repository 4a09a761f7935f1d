package payload

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/kdcode/internal/symbol"
)

func TestPayloadRoundTrip(t *testing.T) {
	spec := symbol.DefaultSpec()
	texts := []string{
		"",
		"A",
		"https://example.com",
		"!@#$%^&*()_+-=[]{}|;':\",./<>?",
		"line one\nline two\ttabbed",
		"héllo wörld ✓",
		strings.Repeat("x", spec.MaxChars),
	}
	for _, text := range texts {
		bits, err := EncodePayload(text, spec)
		require.NoError(t, err, text)
		assert.Len(t, bits, FrameBits(len(text)))

		res, err := DecodePayload(bits, spec)
		require.NoError(t, err, text)
		assert.Equal(t, text, res.Text)
		assert.Zero(t, res.Corrected)
	}
}

func TestEncodePayload_MaxCharsBoundary(t *testing.T) {
	spec := symbol.DefaultSpec()
	spec.MaxChars = 20

	_, err := EncodePayload(strings.Repeat("a", 20), spec)
	require.NoError(t, err)

	_, err = EncodePayload(strings.Repeat("a", 21), spec)
	assert.ErrorIs(t, err, symbol.ErrTextTooLong)
}

func TestDecodePayload_IgnoresTrailingBits(t *testing.T) {
	spec := symbol.DefaultSpec()
	bits, err := EncodePayload("padded", spec)
	require.NoError(t, err)
	bits = append(bits, make([]byte, 45)...)
	for i := len(bits) - 45; i < len(bits); i += 3 {
		bits[i] = 1
	}
	res, err := DecodePayload(bits, spec)
	require.NoError(t, err)
	assert.Equal(t, "padded", res.Text)
}

func TestDecodePayload_SingleBitFlips(t *testing.T) {
	spec := symbol.DefaultSpec()
	bits, err := EncodePayload("https://example.com", spec)
	require.NoError(t, err)

	for i := range bits {
		damaged := append([]byte(nil), bits...)
		damaged[i] ^= 1
		res, err := DecodePayload(damaged, spec)
		require.NoError(t, err, "bit %d", i)
		assert.Equal(t, "https://example.com", res.Text, "bit %d", i)
		assert.Equal(t, 1, res.Corrected, "bit %d", i)
	}
}

func TestDecodePayload_OverCapacityIsUncorrectable(t *testing.T) {
	spec := symbol.DefaultSpec()
	text := "https://example.com"
	bits, err := EncodePayload(text, spec)
	require.NoError(t, err)

	// Damage three bytes of the first body block: one more than it can repair.
	firstBody := (headerLen + headerParity) * 8
	for _, b := range []int{0, 4, 9} {
		for k := 0; k < 8; k++ {
			bits[firstBody+b*8+k] ^= 1
		}
	}
	_, err = DecodePayload(bits, spec)
	assert.ErrorIs(t, err, symbol.ErrUncorrectable)
}

func TestDecodePayload_ChecksumFailed(t *testing.T) {
	spec := symbol.DefaultSpec()
	text := []byte("tampered")
	header := []byte{0, byte(len(text))}
	body := append(append([]byte(nil), text...), 0, 0, 0, 0)
	binary.BigEndian.PutUint32(body[len(text):], checksum(header, text)^0xdeadbeef)

	_, err := DecodePayload(bytesToBits(encodeFrame(header, body)), spec)
	assert.ErrorIs(t, err, symbol.ErrChecksumFailed)
}

func TestDecodePayload_Truncated(t *testing.T) {
	spec := symbol.DefaultSpec()
	bits, err := EncodePayload("cut short", spec)
	require.NoError(t, err)

	_, err = DecodePayload(bits[:len(bits)-64], spec)
	assert.ErrorIs(t, err, symbol.ErrUncorrectable)

	_, err = DecodePayload(bits[:20], spec)
	assert.ErrorIs(t, err, symbol.ErrUncorrectable)
}

func TestDecodePayload_LengthAboveMaxChars(t *testing.T) {
	enc := symbol.DefaultSpec()
	bits, err := EncodePayload(strings.Repeat("z", 40), enc)
	require.NoError(t, err)

	dec := enc
	dec.MaxChars = 16
	_, err = DecodePayload(bits, dec)
	assert.ErrorIs(t, err, symbol.ErrUncorrectable)
}
