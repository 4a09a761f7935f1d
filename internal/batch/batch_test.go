package batch

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/kdcode/internal/encoder"
	"github.com/harrylevesque/kdcode/internal/symbol"
)

func request(n, page, size int) Request {
	spec := symbol.DefaultSpec()
	spec.MaxChars = 16
	spec.ScaleFactor = 1
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("item %d", i)
	}
	return Request{Texts: texts, Page: page, PageSize: size, Spec: spec, Workers: 3}
}

func TestGenerate_Pagination(t *testing.T) {
	cases := []struct {
		name                string
		n, page, size       int
		items, first, pages int
		next, prev          bool
	}{
		{"FirstPage", 25, 1, 10, 10, 0, 3, true, false},
		{"MiddlePage", 25, 2, 10, 10, 10, 3, true, true},
		{"LastPartialPage", 25, 3, 10, 5, 20, 3, false, true},
		{"PastTheEnd", 25, 4, 10, 0, 0, 3, false, true},
		{"SinglePage", 3, 1, 100, 3, 0, 1, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := Generate(context.Background(), request(tc.n, tc.page, tc.size))
			require.NoError(t, err)
			require.Len(t, page.Items, tc.items)
			for i, item := range page.Items {
				assert.Equal(t, tc.first+i, item.Index)
				assert.Equal(t, fmt.Sprintf("item %d", tc.first+i), item.Text)
				assert.NoError(t, item.Err)
				assert.Equal(t, "image/png", item.MIME)
				assert.NotEmpty(t, item.ID)
			}
			p := page.Pagination
			assert.Equal(t, tc.page, p.CurrentPage)
			assert.Equal(t, tc.n, p.TotalItems)
			assert.Equal(t, tc.pages, p.TotalPages)
			assert.Equal(t, tc.next, p.HasNext)
			assert.Equal(t, tc.prev, p.HasPrev)
		})
	}
}

func TestGenerate_InvalidRequest(t *testing.T) {
	_, err := Generate(context.Background(), request(0, 1, 10))
	assert.ErrorIs(t, err, ErrNoTexts)

	_, err = Generate(context.Background(), request(MaxTexts+1, 1, 10))
	assert.ErrorIs(t, err, ErrTooManyTexts)

	for _, pg := range [][2]int{{0, 10}, {1, 0}, {1, MaxPageSize + 1}} {
		_, err = Generate(context.Background(), request(5, pg[0], pg[1]))
		assert.ErrorIs(t, err, ErrInvalidPage, "page %d size %d", pg[0], pg[1])
	}
}

func TestGenerate_ItemErrorsDoNotFailThePage(t *testing.T) {
	req := request(3, 1, 10)
	req.Texts[1] = strings.Repeat("x", req.Spec.MaxChars+1)
	page, err := Generate(context.Background(), req)
	require.NoError(t, err)
	assert.NoError(t, page.Items[0].Err)
	assert.ErrorIs(t, page.Items[1].Err, symbol.ErrTextTooLong)
	assert.Nil(t, page.Items[1].Image)
	assert.NoError(t, page.Items[2].Err)
}

func TestGenerate_SizeLimitAndJPEG(t *testing.T) {
	req := request(2, 1, 10)
	req.Quality = 80
	page, err := Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", page.Items[0].MIME)

	req.MaxSide = 10
	page, err = Generate(context.Background(), req)
	require.NoError(t, err)
	assert.ErrorIs(t, page.Items[0].Err, encoder.ErrRasterTooLarge)
}

func TestGenerate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Generate(ctx, request(5, 1, 10))
	assert.ErrorIs(t, err, context.Canceled)
}
