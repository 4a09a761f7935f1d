package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/kdcode/internal/batch"
	"github.com/harrylevesque/kdcode/internal/decoder"
	"github.com/harrylevesque/kdcode/internal/qr"
	"github.com/harrylevesque/kdcode/internal/scan"
	"github.com/harrylevesque/kdcode/internal/symbol"
	"github.com/harrylevesque/kdcode/internal/utils"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		code   int
		reason string
	}{
		{fmt.Errorf("wrap: %w", symbol.ErrTextTooLong), http.StatusRequestEntityTooLarge, "text_too_long"},
		{symbol.ErrUnsupportedSpec, http.StatusBadRequest, "unsupported_spec"},
		{&decoder.Error{Stage: decoder.StagePreprocessed, Err: symbol.ErrNoAnchorDetected}, http.StatusUnprocessableEntity, "no_anchor_detected"},
		{fmt.Errorf("%w after 2 attempt(s): %w", scan.ErrNoSymbol, symbol.ErrUncorrectable), http.StatusUnprocessableEntity, "uncorrectable"},
		{scan.ErrNoSymbol, http.StatusUnprocessableEntity, "no_symbol"},
		{fmt.Errorf("%w: %w: 60000x60000", decoder.ErrInvalidImage, decoder.ErrImageTooLarge), http.StatusRequestEntityTooLarge, "image_too_large"},
		{decoder.ErrInvalidImage, http.StatusBadRequest, "invalid_image"},
		{batch.ErrNoTextColumn, http.StatusBadRequest, "invalid_bulk"},
		{qr.ErrIncompatible, http.StatusBadRequest, "qr_incompatible"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{utils.New(http.StatusTeapot, "brew"), http.StatusTeapot, "error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			ce := Classify(tt.err)
			assert.Equal(t, tt.code, ce.Code)
			assert.Equal(t, tt.reason, ce.Reason)
			if tt.code >= 400 && tt.code < 500 && tt.reason != "error" {
				assert.NotEmpty(t, ce.Hint)
			}
		})
	}
	assert.Equal(t, "internal error", Classify(errors.New("secret detail")).Message)
}

func testHint() decoder.Hint {
	hint := decoder.DefaultHint()
	hint.Spec.MaxChars = 64
	return hint
}

func TestBulkGenerate_JSON(t *testing.T) {
	h := newTestServer(t, testConfig())
	rec, out := do(t, h, "POST", "/api/bulk-generate", map[string]any{
		"content": []any{"first", map[string]any{"text": "second"}, strings.Repeat("z", 65), ""},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "json", out["format"])
	assert.Equal(t, "kd_codes_3_codes.json", out["filename"])
	assert.EqualValues(t, 3, out["total"])
	assert.EqualValues(t, 1, out["failed"])

	content := out["content"].([]any)
	require.Len(t, content, 3)
	first := content[0].(map[string]any)
	assert.Equal(t, "success", first["status"])
	data, err := base64.StdEncoding.DecodeString(first["image"].(string))
	require.NoError(t, err)
	sym, err := decoder.DecodeBytes(context.Background(), data, testHint())
	require.NoError(t, err)
	assert.Equal(t, "first", sym.Text)

	failed := content[2].(map[string]any)
	assert.Equal(t, "error", failed["status"])
	assert.Contains(t, failed["error"], "exceeds max chars")
}

func TestBulkGenerate_CSV(t *testing.T) {
	h := newTestServer(t, testConfig())
	rec, out := do(t, h, "POST", "/api/bulk-generate", map[string]any{
		"format":        "csv",
		"csv_content":   "sku,label\n1,apple\n2,pear\n",
		"text_column":   "label",
		"output_format": "csv",
		"theme":         "dark",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "csv", out["format"])
	assert.Equal(t, "kd_codes_2_codes.csv", out["filename"])

	rows, err := csv.NewReader(strings.NewReader(out["content"].(string))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"text", "image", "status", "error"}, rows[0])
	assert.Equal(t, "pear", rows[2][0])
	assert.Equal(t, "success", rows[2][2])
	data, err := base64.StdEncoding.DecodeString(rows[1][1])
	require.NoError(t, err)
	sym, err := decoder.DecodeBytes(context.Background(), data, testHint())
	require.NoError(t, err)
	assert.Equal(t, "apple", sym.Text)
}

func TestBulkGenerate_FileUpload(t *testing.T) {
	h := newTestServer(t, testConfig())
	upload := func(name, content string, fields map[string]string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
		for k, v := range fields {
			require.NoError(t, mw.WriteField(k, v))
		}
		require.NoError(t, mw.Close())
		req := httptest.NewRequest("POST", "/api/bulk-generate", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := upload("codes.csv", "url\nhttps://a.example\n", map[string]string{"text_column": "url", "compression_quality": "80"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out bulkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	var records []batch.Record
	require.NoError(t, json.Unmarshal(out.Content, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "https://a.example", records[0].Text)
	assert.Equal(t, "image/jpeg", records[0].MIME)

	rec = upload("codes.JSON", `["one","two"]`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Total)

	rec = upload("codes.xml", "<x/>", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_bulk")

	rec = upload("codes.csv", "text\nx\n", map[string]string{"ring_width": "wide"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad_request")
}

func TestBulkGenerate_Errors(t *testing.T) {
	h := newTestServer(t, testConfig())
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"unknown format", map[string]any{"format": "xml", "content": []string{"a"}}, "invalid_bulk"},
		{"unknown output", map[string]any{"content": []string{"a"}, "output_format": "pdf"}, "invalid_bulk"},
		{"missing column", map[string]any{"format": "csv", "csv_content": "id\n1\n"}, "invalid_bulk"},
		{"bad csv", map[string]any{"format": "csv", "csv_content": "text\n\"open\n"}, "invalid_bulk"},
		{"not a list", map[string]any{"content": 12}, "invalid_bulk"},
		{"nothing to render", map[string]any{"content": []string{" ", ""}}, "invalid_batch"},
		{"no content", map[string]any{}, "invalid_batch"},
		{"bad spec", map[string]any{"content": []string{"a"}, "segments_per_ring": 12}, "unsupported_spec"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := do(t, h, "POST", "/api/bulk-generate", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, out["code"])
		})
	}
}

func TestGenerateQR(t *testing.T) {
	h := newTestServer(t, testConfig())
	rec, out := do(t, h, "POST", "/api/generate-qr", map[string]any{"text": "fallback", "box_size": 4, "border": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "qr", out["type"])
	assert.Equal(t, "image/png", out["mime"])

	data, err := base64.StdEncoding.DecodeString(out["image"].(string))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, (21+2)*4, img.Bounds().Dx())

	tests := []struct {
		name string
		body map[string]any
		code int
		want string
	}{
		{"empty", map[string]any{"text": ""}, http.StatusBadRequest, "qr_incompatible"},
		{"too long", map[string]any{"text": strings.Repeat("q", qr.MaxText+1)}, http.StatusBadRequest, "qr_incompatible"},
		{"bad box", map[string]any{"text": "x", "box_size": 0}, http.StatusBadRequest, "invalid_qr_options"},
		{"largest options", map[string]any{"text": "x", "box_size": 50, "border": 20}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := do(t, h, "POST", "/api/generate-qr", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.want != "" {
				assert.Equal(t, tt.want, out["code"])
			}
		})
	}

	cfg := testConfig()
	cfg.Server.MaxImageSide = 100
	rec, out = do(t, newTestServer(t, cfg), "POST", "/api/generate-qr", map[string]any{"text": "x"})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "raster_too_large", out["code"])
}
