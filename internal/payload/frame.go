// Package payload converts text into the error-corrected bit sequence carried
// by a KD-Code's data rings, and back.
//
// Frame layout (bytes, before bit expansion):
//
//	header codeword:  len_hi len_lo | 4 parity
//	body codewords:   up to 16 bytes of (text || crc32) | 4 parity, repeated
//
// The header is its own codeword so a decoder can size the frame before it
// reads the body. The CRC-32 covers the two header bytes and the text, and is
// only trusted after every codeword has been corrected.
//
// Bits are expanded most significant bit first; each element of a bit slice
// is 0 or 1.
package payload

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/harrylevesque/kdcode/internal/symbol"
)

const (
	headerLen    = 2
	headerParity = 4
	blockData    = 16
	blockParity  = 4
	crcLen       = 4

	// CorrectablePerBlock is the number of byte errors each codeword survives.
	CorrectablePerBlock = blockParity / 2
)

var (
	headerCode = newRSCode(headerParity)
	blockCode  = newRSCode(blockParity)
)

// Result is a verified payload.
type Result struct {
	Text      string
	Corrected int // bytes repaired across all codewords
}

// FrameBytes returns the coded size in bytes of a text of n bytes.
func FrameBytes(n int) int {
	body := n + crcLen
	blocks := (body + blockData - 1) / blockData
	return headerLen + headerParity + body + blocks*blockParity
}

// FrameBits returns the coded size in bits of a text of n bytes.
func FrameBits(n int) int { return 8 * FrameBytes(n) }

// EncodePayload returns the frame bits for text. It fails with
// symbol.ErrTextTooLong instead of truncating.
func EncodePayload(text string, spec symbol.Spec) ([]byte, error) {
	if len(text) > spec.MaxChars {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", symbol.ErrTextTooLong, len(text), spec.MaxChars)
	}
	if len(text) > symbol.MaxAllowedChars {
		return nil, fmt.Errorf("%w: %d bytes, hard limit %d", symbol.ErrTextTooLong, len(text), symbol.MaxAllowedChars)
	}
	var header [headerLen]byte
	binary.BigEndian.PutUint16(header[:], uint16(len(text)))

	body := make([]byte, 0, len(text)+crcLen)
	body = append(body, text...)
	body = binary.BigEndian.AppendUint32(body, checksum(header[:], []byte(text)))
	return bytesToBits(encodeFrame(header[:], body)), nil
}

func encodeFrame(header, body []byte) []byte {
	out := make([]byte, 0, FrameBytes(len(body)-crcLen))
	out = append(out, headerCode.encode(header)...)
	for off := 0; off < len(body); off += blockData {
		end := min(off+blockData, len(body))
		out = append(out, blockCode.encode(body[off:end])...)
	}
	return out
}

// DecodePayload corrects and verifies a frame. bits may extend past the frame
// (padding, or rings sampled beyond the symbol); the extra bits are ignored.
func DecodePayload(bits []byte, spec symbol.Spec) (Result, error) {
	raw := bitsToBytes(bits)
	if len(raw) < headerLen+headerParity {
		return Result{}, fmt.Errorf("%w: %d bits cannot hold a header", symbol.ErrUncorrectable, len(bits))
	}

	hdr := append([]byte(nil), raw[:headerLen+headerParity]...)
	corrected, err := headerCode.correct(hdr)
	if err != nil {
		return Result{}, fmt.Errorf("%w: header: %v", symbol.ErrUncorrectable, err)
	}
	n := int(binary.BigEndian.Uint16(hdr[:headerLen]))
	if n > spec.MaxChars || n > symbol.MaxAllowedChars {
		return Result{}, fmt.Errorf("%w: header declares %d bytes, limit %d", symbol.ErrUncorrectable, n, spec.MaxChars)
	}
	if FrameBytes(n) > len(raw) {
		return Result{}, fmt.Errorf("%w: header declares %d bytes but only %d frame bytes were read",
			symbol.ErrUncorrectable, n, len(raw))
	}

	body := make([]byte, 0, n+crcLen)
	pos := headerLen + headerParity
	remaining := n + crcLen
	for remaining > 0 {
		k := min(remaining, blockData)
		cw := append([]byte(nil), raw[pos:pos+k+blockParity]...)
		fixed, err := blockCode.correct(cw)
		if err != nil {
			return Result{}, fmt.Errorf("%w: block at byte %d: %v", symbol.ErrUncorrectable, pos, err)
		}
		corrected += fixed
		body = append(body, cw[:k]...)
		pos += k + blockParity
		remaining -= k
	}

	text := body[:n]
	want := binary.BigEndian.Uint32(body[n:])
	if checksum(hdr[:headerLen], text) != want {
		if corrected == 0 {
			return Result{}, symbol.ErrChecksumFailed
		}
		return Result{}, fmt.Errorf("%w: checksum mismatch after %d corrections", symbol.ErrUncorrectable, corrected)
	}
	return Result{Text: string(text), Corrected: corrected}, nil
}

func checksum(header, text []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(header)
	h.Write(text)
	return h.Sum32()
}

func bytesToBits(b []byte) []byte {
	bits := make([]byte, 0, len(b)*8)
	for _, v := range b {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (v>>uint(i))&1)
		}
	}
	return bits
}

// bitsToBytes packs whole bytes only; a trailing partial byte is dropped.
func bitsToBytes(bits []byte) []byte {
	out := make([]byte, len(bits)/8)
	for i := range out {
		var v byte
		for _, bit := range bits[i*8 : i*8+8] {
			v <<= 1
			if bit != 0 {
				v |= 1
			}
		}
		out[i] = v
	}
	return out
}
