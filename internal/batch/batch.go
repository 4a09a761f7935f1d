// Package batch renders many texts at once, one page at a time.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/harrylevesque/kdcode/internal/encoder"
	"github.com/harrylevesque/kdcode/internal/symbol"
)

const (
	MaxTexts        = 1000
	MaxPageSize     = 100
	DefaultPageSize = 10
)

var (
	ErrNoTexts      = errors.New("batch: a list of texts is required")
	ErrTooManyTexts = fmt.Errorf("batch: too many texts, maximum is %d", MaxTexts)
	ErrInvalidPage  = fmt.Errorf("batch: page must be >= 1 and page size in 1..%d", MaxPageSize)
)

// Request is one page of a batch.
type Request struct {
	Texts    []string
	Page     int // 1-based
	PageSize int
	Spec     symbol.Spec
	Quality  int // 0 or 100 for PNG, otherwise JPEG quality
	MaxSide  int // largest raster side allowed; 0 for no limit
	Workers  int // 0 means one per CPU
}

// Item is the outcome for one text. Err is set instead of Image on failure;
// one failed item does not fail the page.
type Item struct {
	ID    string
	Index int // position in Request.Texts
	Text  string
	Image []byte
	MIME  string
	Err   error
}

type Pagination struct {
	CurrentPage int
	PageSize    int
	TotalItems  int
	TotalPages  int
	HasNext     bool
	HasPrev     bool
}

type Page struct {
	Items      []Item
	Pagination Pagination
}

func (r Request) validate() error {
	switch {
	case len(r.Texts) == 0:
		return ErrNoTexts
	case len(r.Texts) > MaxTexts:
		return ErrTooManyTexts
	case r.Page < 1 || r.PageSize < 1 || r.PageSize > MaxPageSize:
		return ErrInvalidPage
	}
	return nil
}

// Generate renders the requested page concurrently. It fails only for an
// invalid request or a cancelled ctx.
func Generate(ctx context.Context, req Request) (*Page, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	total := len(req.Texts)
	pages := (total + req.PageSize - 1) / req.PageSize
	start := min((req.Page-1)*req.PageSize, total)
	end := min(start+req.PageSize, total)

	items, err := renderRange(ctx, req, start, end)
	if err != nil {
		return nil, err
	}
	return &Page{
		Items: items,
		Pagination: Pagination{
			CurrentPage: req.Page,
			PageSize:    req.PageSize,
			TotalItems:  total,
			TotalPages:  pages,
			HasNext:     req.Page < pages,
			HasPrev:     req.Page > 1,
		},
	}, nil
}

// GenerateAll renders every text, ignoring Page and PageSize.
func GenerateAll(ctx context.Context, req Request) ([]Item, error) {
	req.Page, req.PageSize = 1, 1
	if err := req.validate(); err != nil {
		return nil, err
	}
	return renderRange(ctx, req, 0, len(req.Texts))
}

func renderRange(ctx context.Context, req Request, start, end int) ([]Item, error) {
	items := make([]Item, end-start)
	workers := req.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range items {
		idx := start + i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = render(idx, req.Texts[idx], req)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func render(idx int, text string, req Request) Item {
	item := Item{ID: uuid.NewString(), Index: idx, Text: text}
	if err := encoder.CheckSide(len(text), req.Spec, req.MaxSide); err != nil {
		item.Err = err
		return item
	}
	item.Image, item.MIME, item.Err = encoder.EncodeImage(text, req.Spec, req.Quality)
	return item
}
