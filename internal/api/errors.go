package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/harrylevesque/kdcode/internal/batch"
	"github.com/harrylevesque/kdcode/internal/crypto"
	"github.com/harrylevesque/kdcode/internal/decoder"
	"github.com/harrylevesque/kdcode/internal/encoder"
	"github.com/harrylevesque/kdcode/internal/qr"
	"github.com/harrylevesque/kdcode/internal/scan"
	"github.com/harrylevesque/kdcode/internal/symbol"
	"github.com/harrylevesque/kdcode/internal/utils"
)

// hints are shown to API clients next to a failed request. The first match
// wins, so a scan failure reports its frame's cause before ErrNoSymbol.
var hints = []struct {
	err    error
	code   int
	reason string
	hint   string
}{
	{symbol.ErrTextTooLong, http.StatusRequestEntityTooLarge, "text_too_long", "shorten the text or raise max_chars"},
	{symbol.ErrSpecTooSmall, http.StatusUnprocessableEntity, "spec_too_small", "raise max_rings or segments_per_ring, or lower max_chars"},
	{symbol.ErrUnsupportedSpec, http.StatusBadRequest, "unsupported_spec", "segments_per_ring must be 8, 16 or 32"},
	{symbol.ErrInvalidSpec, http.StatusBadRequest, "invalid_spec", "check the configuration values"},
	{encoder.ErrRasterTooLarge, http.StatusRequestEntityTooLarge, "raster_too_large", "lower scale_factor or shorten the text"},
	{decoder.ErrImageTooLarge, http.StatusRequestEntityTooLarge, "image_too_large", "downscale the image before uploading"},
	{decoder.ErrInvalidImage, http.StatusBadRequest, "invalid_image", "send a PNG, JPEG or GIF image"},
	{symbol.ErrNoAnchorDetected, http.StatusUnprocessableEntity, "no_anchor_detected", "make sure the whole code is in frame and in focus; check the anchor radius range"},
	{symbol.ErrOrientationAmbiguous, http.StatusUnprocessableEntity, "orientation_ambiguous", "hold the code flat and steady so the orientation mark is visible"},
	{symbol.ErrChecksumFailed, http.StatusUnprocessableEntity, "checksum_failed", "rescan with better lighting"},
	{symbol.ErrUncorrectable, http.StatusUnprocessableEntity, "uncorrectable", "rescan closer, with better lighting and less glare"},
	{scan.ErrNoSymbol, http.StatusUnprocessableEntity, "no_symbol", "no frame contained a readable code"},
	{batch.ErrNoTexts, http.StatusBadRequest, "invalid_batch", "send a non-empty texts list"},
	{batch.ErrTooManyTexts, http.StatusBadRequest, "invalid_batch", "split the batch into requests of at most 1000 texts"},
	{batch.ErrInvalidPage, http.StatusBadRequest, "invalid_batch", "page starts at 1 and page_size is at most 100"},
	{batch.ErrUnknownFormat, http.StatusBadRequest, "invalid_bulk", "format must be csv or json"},
	{batch.ErrNoTextColumn, http.StatusBadRequest, "invalid_bulk", "name the column holding the texts with text_column"},
	{batch.ErrMalformedImport, http.StatusBadRequest, "invalid_bulk", "check the uploaded data is well-formed CSV or JSON"},
	{qr.ErrIncompatible, http.StatusBadRequest, "qr_incompatible", "QR codes carry 1 to 2953 characters"},
	{qr.ErrInvalidOptions, http.StatusBadRequest, "invalid_qr_options", "box_size must be 1..50 and border 0..20"},
	{crypto.ErrMalformed, http.StatusUnprocessableEntity, "not_sealed", "this code does not carry a sealed payload"},
	{crypto.ErrOpen, http.StatusUnprocessableEntity, "seal_mismatch", "the code was sealed with a different key or altered"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout", "retry with a smaller image"},
}

// Classify maps err to a CustomError. Errors already of that type pass
// through; unknown errors become 500s.
func Classify(err error) *utils.CustomError {
	var ce *utils.CustomError
	if errors.As(err, &ce) {
		return ce
	}
	for _, h := range hints {
		if errors.Is(err, h.err) {
			return &utils.CustomError{Code: h.code, Reason: h.reason, Message: err.Error(), Hint: h.hint, Err: err}
		}
	}
	return &utils.CustomError{Code: http.StatusInternalServerError, Reason: "internal", Message: "internal error", Err: err}
}
