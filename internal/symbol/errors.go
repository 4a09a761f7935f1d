package symbol

import "errors"

var (
	// ErrSpecTooSmall is returned when the geometry cannot hold MaxChars.
	ErrSpecTooSmall = errors.New("symbol: spec too small for max chars")
	// ErrTextTooLong is returned when the input exceeds MaxChars.
	ErrTextTooLong = errors.New("symbol: text exceeds max chars")
	// ErrUnsupportedSpec is returned for a segment count outside {8,16,32}.
	ErrUnsupportedSpec = errors.New("symbol: unsupported segments per ring")
	// ErrInvalidSpec is returned for any other malformed configuration value.
	ErrInvalidSpec = errors.New("symbol: invalid spec")

	// ErrNoAnchorDetected is returned when no anchor candidate clears the score threshold.
	ErrNoAnchorDetected = errors.New("symbol: no anchor detected")
	// ErrOrientationAmbiguous is returned when the orientation tick is missing or not unique.
	ErrOrientationAmbiguous = errors.New("symbol: orientation ambiguous")
	// ErrChecksumFailed is returned when clean codewords disagree with the checksum.
	ErrChecksumFailed = errors.New("symbol: checksum failed")
	// ErrUncorrectable is returned when error correction cannot recover a verified payload.
	ErrUncorrectable = errors.New("symbol: uncorrectable error")
)

// IsImageQuality reports whether err belongs to the capture-quality class:
// a better frame may fix it, so scanning loops retry on it.
func IsImageQuality(err error) bool {
	return errors.Is(err, ErrNoAnchorDetected) ||
		errors.Is(err, ErrOrientationAmbiguous) ||
		errors.Is(err, ErrChecksumFailed) ||
		errors.Is(err, ErrUncorrectable)
}
