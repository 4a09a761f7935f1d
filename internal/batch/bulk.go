package batch

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// Format names an import or export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// DefaultTextColumn is the CSV column, or JSON object key, read when the
// caller names none.
const DefaultTextColumn = "text"

var (
	ErrUnknownFormat   = errors.New("batch: unsupported format")
	ErrNoTextColumn    = errors.New("batch: text column not found")
	ErrMalformedImport = errors.New("batch: malformed import")
)

// ParseFormat accepts "json" or "csv" in any case; "" means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("%w %q, use json or csv", ErrUnknownFormat, s)
}

// ImportCSV reads the texts in column from CSV with a header row. Values
// are trimmed and empty ones skipped.
func ImportCSV(r io.Reader, column string) ([]string, error) {
	if column == "" {
		column = DefaultTextColumn
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoTexts
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}
	col := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: %q not in header %v", ErrNoTextColumn, column, header)
	}

	var texts []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
		}
		if col >= len(rec) {
			continue
		}
		if t := strings.TrimSpace(rec[col]); t != "" {
			texts = append(texts, t)
		}
	}
	return texts, nil
}

// ImportJSON reads texts from a JSON list of strings, a list of objects
// carrying key, or a single such object. Other values are skipped.
func ImportJSON(data []byte, key string) ([]string, error) {
	if key == "" {
		key = DefaultTextColumn
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}
	fromObject := func(v any) (string, bool) {
		obj, ok := v.(map[string]any)
		if !ok {
			return "", false
		}
		s, ok := obj[key].(string)
		return s, ok
	}

	var texts []string
	add := func(s string) {
		if t := strings.TrimSpace(s); t != "" {
			texts = append(texts, t)
		}
	}
	switch v := raw.(type) {
	case []any:
		for _, it := range v {
			if s, ok := it.(string); ok {
				add(s)
			} else if s, ok := fromObject(it); ok {
				add(s)
			}
		}
	case map[string]any:
		if s, ok := fromObject(v); ok {
			add(s)
		}
	default:
		return nil, fmt.Errorf("%w: want a list or an object", ErrMalformedImport)
	}
	return texts, nil
}

// Record is the exported form of an Item.
type Record struct {
	Text   string `json:"text"`
	Image  string `json:"image,omitempty"` // base64
	MIME   string `json:"mime,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Records converts items for export. errText renders an item's error.
func Records(items []Item, errText func(error) string) []Record {
	if errText == nil {
		errText = error.Error
	}
	out := make([]Record, len(items))
	for i, it := range items {
		rec := Record{Text: it.Text, Status: "success"}
		if it.Err != nil {
			rec.Status, rec.Error = "error", errText(it.Err)
		} else {
			rec.Image, rec.MIME = base64.StdEncoding.EncodeToString(it.Image), it.MIME
		}
		out[i] = rec
	}
	return out
}

// Export encodes records and suggests a file name for them.
func Export(records []Record, format Format) ([]byte, string, error) {
	name := fmt.Sprintf("kd_codes_%d_codes.%s", len(records), format)
	switch format {
	case FormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write([]string{"text", "image", "status", "error"}); err != nil {
			return nil, "", err
		}
		for _, r := range records {
			if err := w.Write([]string{r.Text, r.Image, r.Status, r.Error}); err != nil {
				return nil, "", err
			}
		}
		w.Flush()
		return buf.Bytes(), name, w.Error()
	case FormatJSON:
		data, err := json.MarshalIndent(records, "", "  ")
		return data, name, err
	}
	return nil, "", fmt.Errorf("%w %q", ErrUnknownFormat, format)
}
