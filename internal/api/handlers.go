package api

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/harrylevesque/kdcode/internal/batch"
	"github.com/harrylevesque/kdcode/internal/crypto"
	"github.com/harrylevesque/kdcode/internal/decoder"
	"github.com/harrylevesque/kdcode/internal/encoder"
	"github.com/harrylevesque/kdcode/internal/qr"
	"github.com/harrylevesque/kdcode/internal/scan"
	"github.com/harrylevesque/kdcode/internal/symbol"
	"github.com/harrylevesque/kdcode/internal/utils"
)

const statusSuccess = "success"

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Hint      string `json:"hint,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Status    string `json:"status"`
}

type imageResponse struct {
	Image  string `json:"image"`
	MIME   string `json:"mime"`
	Sealed bool   `json:"sealed,omitempty"`
	Status string `json:"status"`
}

type geometryResponse struct {
	CenterX      float64 `json:"center_x"`
	CenterY      float64 `json:"center_y"`
	AnchorRadius float64 `json:"anchor_radius"`
	Scale        float64 `json:"scale"`
	RotationDeg  float64 `json:"rotation_deg"`
	Segments     int     `json:"segments_per_ring"`
	Rings        int     `json:"rings"`
}

type scanResponse struct {
	Data       string           `json:"data"`
	Corrected  int              `json:"corrected"`
	Confidence float64          `json:"confidence"`
	Geometry   geometryResponse `json:"geometry"`
	Session    string           `json:"session"`
	Status     string           `json:"status"`
}

type batchItem struct {
	ID     string `json:"id"`
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Image  string `json:"image,omitempty"`
	MIME   string `json:"mime,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
	Status string `json:"status"`
}

type paginationResponse struct {
	CurrentPage int  `json:"current_page"`
	PageSize    int  `json:"page_size"`
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
}

type batchResponse struct {
	Results    []batchItem        `json:"results"`
	Pagination paginationResponse `json:"pagination"`
	Status     string             `json:"status"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ce := Classify(err)
	id := requestIDFrom(r.Context())
	if ce.Code >= http.StatusInternalServerError {
		s.log.Errorf("%s %s: %v", id, r.URL.Path, err)
	}
	s.writeJSON(w, ce.Code, errorResponse{
		Error:     ce.Message,
		Code:      ce.Reason,
		Hint:      ce.Hint,
		RequestID: id,
		Status:    "error",
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) healthReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"seal_enabled":  s.sealKey != nil,
		"max_chars":     s.spec.MaxChars,
		"segments":      s.spec.SegmentsPerRing,
		"max_image_px":  s.cfg.Server.MaxImageSide,
		"multithreaded": s.cfg.Scan.Multithreading,
	})
}

// render encodes text under the request's overrides and enforces the raster
// size limit.
func (s *Server) render(text string, f specFields) (*imageResponse, error) {
	spec, err := f.apply(s.spec)
	if err != nil {
		return nil, err
	}
	quality, err := f.quality()
	if err != nil {
		return nil, err
	}
	if err := encoder.CheckSide(len(text), spec, s.cfg.Server.MaxImageSide); err != nil {
		return nil, err
	}
	data, mime, err := encoder.EncodeImage(text, spec, quality)
	if err != nil {
		return nil, err
	}
	return &imageResponse{Image: base64.StdEncoding.EncodeToString(data), MIME: mime, Status: statusSuccess}, nil
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.render(req.Text, req.specFields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) encryptAndGenerate(w http.ResponseWriter, r *http.Request) {
	if s.sealKey == nil {
		s.writeError(w, r, utils.New(http.StatusServiceUnavailable, "sealing is not configured"))
		return
	}
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sealed, err := crypto.Seal(s.sealKey, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.render(sealed, req.specFields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp.Sealed = true
	s.writeJSON(w, http.StatusOK, resp)
}

// decodeFrame runs one uploaded image through the scanner.
func (s *Server) decodeFrame(ctx context.Context, req *scanRequest) (*scan.Result, error) {
	hint := req.hint(s.hint)
	img, err := decoder.ReadImage(req.data, hint.MaxPixels)
	if err != nil {
		return nil, err
	}
	cfg := s.cfg.ScannerConfig(hint)
	cfg.Multithreading = cfg.Multithreading || req.EnableMultithreading
	return scan.NewScanner(cfg, s.log).Scan(ctx, scan.NewSliceSource(img))
}

func (s *Server) scanAndRespond(w http.ResponseWriter, r *http.Request, open func(string) (string, error)) {
	req, err := parseScanRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.decodeFrame(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	text := res.Symbol.Text
	if open != nil {
		if text, err = open(text); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, scanResponse{
		Data:       text,
		Corrected:  res.Symbol.Corrected,
		Confidence: res.Symbol.Confidence,
		Geometry:   toGeometry(res.Symbol.Geometry),
		Session:    res.Session,
		Status:     statusSuccess,
	})
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	s.scanAndRespond(w, r, nil)
}

func (s *Server) scanAndDecrypt(w http.ResponseWriter, r *http.Request) {
	if s.sealKey == nil {
		s.writeError(w, r, utils.New(http.StatusServiceUnavailable, "sealing is not configured"))
		return
	}
	s.scanAndRespond(w, r, func(sealed string) (string, error) {
		return crypto.Open(s.sealKey, sealed)
	})
}

func toGeometry(g symbol.Geometry) geometryResponse {
	return geometryResponse{
		CenterX:      g.CenterX,
		CenterY:      g.CenterY,
		AnchorRadius: g.AnchorRadius,
		Scale:        g.Scale,
		RotationDeg:  g.RotationDeg,
		Segments:     g.Segments,
		Rings:        g.Rings,
	}
}

func (s *Server) batchGenerate(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	spec, err := req.apply(s.spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	quality, err := req.quality()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	br := batch.Request{
		Texts:    req.Texts,
		Page:     1,
		PageSize: batch.DefaultPageSize,
		Spec:     spec,
		Quality:  quality,
		MaxSide:  s.cfg.Server.MaxImageSide,
	}
	if req.Page != nil {
		br.Page = *req.Page
	}
	if req.PageSize != nil {
		br.PageSize = *req.PageSize
	}
	page, err := batch.Generate(r.Context(), br)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := batchResponse{
		Results: make([]batchItem, 0, len(page.Items)),
		Pagination: paginationResponse{
			CurrentPage: page.Pagination.CurrentPage,
			PageSize:    page.Pagination.PageSize,
			TotalItems:  page.Pagination.TotalItems,
			TotalPages:  page.Pagination.TotalPages,
			HasNext:     page.Pagination.HasNext,
			HasPrev:     page.Pagination.HasPrev,
		},
		Status: statusSuccess,
	}
	for _, it := range page.Items {
		bi := batchItem{ID: it.ID, Index: it.Index, Text: it.Text, Status: statusSuccess}
		if it.Err != nil {
			ce := Classify(it.Err)
			bi.Error, bi.Code, bi.Status = ce.Message, ce.Reason, "error"
		} else {
			bi.Image = base64.StdEncoding.EncodeToString(it.Image)
			bi.MIME = it.MIME
		}
		resp.Results = append(resp.Results, bi)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type bulkResponse struct {
	Content  json.RawMessage `json:"content"`
	Filename string          `json:"filename"`
	Format   batch.Format    `json:"format"`
	Total    int             `json:"total"`
	Failed   int             `json:"failed"`
	Status   string          `json:"status"`
}

// bulkGenerate renders every imported text in one response. CSV output is
// returned as a JSON string, JSON output as the records themselves.
func (s *Server) bulkGenerate(w http.ResponseWriter, r *http.Request) {
	req, texts, err := parseBulkRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := batch.ParseFormat(req.OutputFormat)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	spec, err := req.apply(s.spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	quality, err := req.quality()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := batch.GenerateAll(r.Context(), batch.Request{
		Texts:   texts,
		Spec:    spec,
		Quality: quality,
		MaxSide: s.cfg.Server.MaxImageSide,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	records := batch.Records(items, func(err error) string { return Classify(err).Message })
	failed := 0
	for _, rec := range records {
		if rec.Error != "" {
			failed++
		}
	}
	data, name, err := batch.Export(records, out)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	content := json.RawMessage(data)
	if out == batch.FormatCSV {
		if content, err = json.Marshal(string(data)); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, bulkResponse{
		Content:  content,
		Filename: name,
		Format:   out,
		Total:    len(records),
		Failed:   failed,
		Status:   statusSuccess,
	})
}

type qrResponse struct {
	Image  string `json:"image"`
	MIME   string `json:"mime"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

func (s *Server) generateQR(w http.ResponseWriter, r *http.Request) {
	var req qrRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	o := qr.DefaultOptions()
	o.MaxSide = s.cfg.Server.MaxImageSide
	if req.BoxSize != nil {
		o.BoxSize = *req.BoxSize
	}
	if req.Border != nil {
		o.Border = *req.Border
	}
	data, err := qr.Encode(req.Text, o)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, qrResponse{
		Image:  base64.StdEncoding.EncodeToString(data),
		MIME:   "image/png",
		Type:   "qr",
		Status: statusSuccess,
	})
}
