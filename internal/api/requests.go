package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/harrylevesque/kdcode/internal/batch"
	"github.com/harrylevesque/kdcode/internal/decoder"
	"github.com/harrylevesque/kdcode/internal/symbol"
	"github.com/harrylevesque/kdcode/internal/utils"
)

// specFields are the optional symbol overrides shared by the encode routes.
type specFields struct {
	SegmentsPerRing    *int    `json:"segments_per_ring"`
	AnchorRadius       *int    `json:"anchor_radius"`
	RingWidth          *int    `json:"ring_width"`
	ScaleFactor        *int    `json:"scale_factor"`
	MaxChars           *int    `json:"max_chars"`
	ForegroundColor    *string `json:"foreground_color"`
	BackgroundColor    *string `json:"background_color"`
	Theme              *string `json:"theme"`
	CompressionQuality *int    `json:"compression_quality"`
}

// apply overlays the request's fields on base. A theme wins over explicit
// colors.
func (f specFields) apply(base symbol.Spec) (symbol.Spec, error) {
	spec := base
	for _, o := range []struct {
		src *int
		dst *int
	}{
		{f.SegmentsPerRing, &spec.SegmentsPerRing},
		{f.AnchorRadius, &spec.AnchorRadius},
		{f.RingWidth, &spec.RingWidth},
		{f.ScaleFactor, &spec.ScaleFactor},
		{f.MaxChars, &spec.MaxChars},
	} {
		if o.src != nil {
			*o.dst = *o.src
		}
	}
	var err error
	if f.ForegroundColor != nil {
		if spec.Foreground, err = symbol.ParseColor(*f.ForegroundColor); err != nil {
			return spec, err
		}
	}
	if f.BackgroundColor != nil {
		if spec.Background, err = symbol.ParseColor(*f.BackgroundColor); err != nil {
			return spec, err
		}
	}
	if f.Theme != nil {
		if spec, err = spec.WithTheme(*f.Theme); err != nil {
			return spec, err
		}
	}
	return spec, spec.Validate()
}

func (f specFields) quality() (int, error) {
	if f.CompressionQuality == nil {
		return 0, nil
	}
	q := *f.CompressionQuality
	if q < 1 || q > 100 {
		return 0, fmt.Errorf("%w: compression_quality must be in [1,100], got %d", symbol.ErrInvalidSpec, q)
	}
	return q, nil
}

type generateRequest struct {
	Text string `json:"text"`
	specFields
}

type batchRequest struct {
	Texts    []string `json:"texts"`
	Page     *int     `json:"page"`
	PageSize *int     `json:"page_size"`
	specFields
}

type bulkRequest struct {
	Format       string          `json:"format"`
	Content      json.RawMessage `json:"content"`
	CSVContent   string          `json:"csv_content"`
	TextColumn   string          `json:"text_column"`
	OutputFormat string          `json:"output_format"`
	specFields
}

// texts extracts the texts to render from the request's inline content.
func (b bulkRequest) texts() ([]string, error) {
	format, err := batch.ParseFormat(b.Format)
	if err != nil {
		return nil, err
	}
	if format == batch.FormatCSV {
		return batch.ImportCSV(strings.NewReader(b.CSVContent), b.TextColumn)
	}
	if len(b.Content) == 0 {
		return nil, batch.ErrNoTexts
	}
	return batch.ImportJSON(b.Content, b.TextColumn)
}

// parseBulkRequest reads a JSON body with inline content, or a multipart form
// whose "file" field is a .csv or .json upload.
func parseBulkRequest(r *http.Request) (*bulkRequest, []string, error) {
	req := &bulkRequest{}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := decodeJSON(r, req); err != nil {
			return nil, nil, err
		}
		texts, err := req.texts()
		return req, texts, err
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, nil, bodyError("invalid multipart form", err)
	}
	file, fh, err := r.FormFile("file")
	if err != nil {
		return nil, nil, utils.New(http.StatusBadRequest, "no file in request")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, bodyError("cannot read file", err)
	}
	req.TextColumn = r.FormValue("text_column")
	req.OutputFormat = r.FormValue("output_format")
	for name, dst := range map[string]**int{
		"segments_per_ring":   &req.SegmentsPerRing,
		"anchor_radius":       &req.AnchorRadius,
		"ring_width":          &req.RingWidth,
		"scale_factor":        &req.ScaleFactor,
		"max_chars":           &req.MaxChars,
		"compression_quality": &req.CompressionQuality,
	} {
		if v := r.FormValue(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, nil, utils.New(http.StatusBadRequest, name+" must be an integer")
			}
			*dst = &n
		}
	}
	for name, dst := range map[string]**string{
		"foreground_color": &req.ForegroundColor,
		"background_color": &req.BackgroundColor,
		"theme":            &req.Theme,
	} {
		if v := r.FormValue(name); v != "" {
			*dst = &v
		}
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
	format, err := batch.ParseFormat(ext)
	if err != nil || ext == "" {
		return nil, nil, fmt.Errorf("%w: file %q", batch.ErrUnknownFormat, fh.Filename)
	}
	var texts []string
	if format == batch.FormatCSV {
		texts, err = batch.ImportCSV(bytes.NewReader(data), req.TextColumn)
	} else {
		texts, err = batch.ImportJSON(data, req.TextColumn)
	}
	return req, texts, err
}

type qrRequest struct {
	Text    string `json:"text"`
	BoxSize *int   `json:"box_size"`
	Border  *int   `json:"border"`
}

// segmentsField accepts "auto", a number, or a numeric string.
type segmentsField struct {
	set   bool
	value int // decoder.AutoSegments for "auto"
}

func (s *segmentsField) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		return nil
	case float64:
		s.set, s.value = true, int(v)
		return nil
	case string:
		return s.parse(v)
	}
	return fmt.Errorf("segments_per_ring must be \"auto\" or a number")
}

func (s *segmentsField) parse(v string) error {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return nil
	}
	if v == "auto" {
		s.set, s.value = true, decoder.AutoSegments
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("segments_per_ring must be \"auto\" or a number, got %q", v)
	}
	s.set, s.value = true, n
	return nil
}

type scanRequest struct {
	Image                string        `json:"image"`
	SegmentsPerRing      segmentsField `json:"segments_per_ring"`
	MinAnchorRadius      *int          `json:"min_anchor_radius"`
	MaxAnchorRadius      *int          `json:"max_anchor_radius"`
	EnableMultithreading bool          `json:"enable_multithreading"`

	data []byte // decoded image bytes
}

func (s scanRequest) hint(base decoder.Hint) decoder.Hint {
	h := base
	if s.SegmentsPerRing.set {
		h.Spec.SegmentsPerRing = s.SegmentsPerRing.value
	}
	if s.MinAnchorRadius != nil {
		h.MinAnchorRadius = *s.MinAnchorRadius
	}
	if s.MaxAnchorRadius != nil {
		h.MaxAnchorRadius = *s.MaxAnchorRadius
	}
	return h
}

const maxMultipartMemory = 32 << 20

// parseScanRequest reads either a JSON body with a base64 or data URL image,
// or a multipart form with the image in the "frame" file field.
func parseScanRequest(r *http.Request) (*scanRequest, error) {
	req := &scanRequest{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, bodyError("invalid multipart form", err)
		}
		file, _, err := r.FormFile("frame")
		if err != nil {
			return nil, utils.New(http.StatusBadRequest, "no frame file in request")
		}
		defer file.Close()
		if req.data, err = io.ReadAll(file); err != nil {
			return nil, bodyError("cannot read frame", err)
		}
		if err := req.SegmentsPerRing.parse(r.FormValue("segments_per_ring")); err != nil {
			return nil, utils.New(http.StatusBadRequest, err.Error())
		}
		for name, dst := range map[string]**int{
			"min_anchor_radius": &req.MinAnchorRadius,
			"max_anchor_radius": &req.MaxAnchorRadius,
		} {
			if v := r.FormValue(name); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, utils.New(http.StatusBadRequest, name+" must be an integer")
				}
				*dst = &n
			}
		}
		req.EnableMultithreading, _ = strconv.ParseBool(r.FormValue("enable_multithreading"))
		return req, nil
	}

	if err := decodeJSON(r, req); err != nil {
		return nil, err
	}
	if req.Image == "" {
		return nil, utils.New(http.StatusBadRequest, "image is required")
	}
	data, err := decodeImageField(req.Image)
	if err != nil {
		return nil, utils.New(http.StatusBadRequest, "image must be base64 or a data URL")
	}
	req.data = data
	return req, nil
}

// decodeImageField accepts "data:image/png;base64,...." or bare base64.
func decodeImageField(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 || !strings.Contains(s[:i], ";base64") {
			return nil, fmt.Errorf("unsupported data URL")
		}
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func decodeJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return bodyError("cannot read body", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return bodyError("invalid JSON body", err)
	}
	return nil
}

func bodyError(msg string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &utils.CustomError{
			Code:    http.StatusRequestEntityTooLarge,
			Reason:  "body_too_large",
			Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			Err:     err,
		}
	}
	return &utils.CustomError{Code: http.StatusBadRequest, Reason: "bad_request", Message: msg + ": " + err.Error(), Err: err}
}
