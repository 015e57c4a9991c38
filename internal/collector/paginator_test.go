package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagesOf serves total items split into pages and records requested page numbers
func pagesOf(total int, requested *[]int) PageFunc[int] {
	return func(_ context.Context, page, perPage int) ([]int, error) {
		*requested = append(*requested, page)
		start := (page - 1) * perPage
		if start >= total {
			return []int{}, nil
		}
		end := min(start+perPage, total)
		items := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			items = append(items, i)
		}
		return items, nil
	}
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		perPage   int
		wantPages []int
	}{
		{name: "short last page", total: 250, perPage: 100, wantPages: []int{1, 2, 3}},
		{name: "exact multiple ends on empty page", total: 200, perPage: 100, wantPages: []int{1, 2, 3}},
		{name: "empty collection", total: 0, perPage: 100, wantPages: []int{1}},
		{name: "single short page", total: 7, perPage: 100, wantPages: []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requested []int
			items, err := Paginate(context.Background(), tt.perPage, pagesOf(tt.total, &requested))
			require.NoError(t, err)

			assert.Len(t, items, tt.total)
			assert.Equal(t, tt.wantPages, requested)
			for i, v := range items {
				assert.Equal(t, i, v)
			}
		})
	}
}

func TestPaginate_PropagatesPageError(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(_ context.Context, page, perPage int) ([]int, error) {
		if page == 2 {
			return nil, boom
		}
		return make([]int, perPage), nil
	}

	items, err := Paginate(context.Background(), 10, fetch)
	assert.Nil(t, items)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "page 2")
}

func TestFirstPage(t *testing.T) {
	var requested []int
	items, err := FirstPage(context.Background(), 100, pagesOf(250, &requested))
	require.NoError(t, err)

	assert.Len(t, items, 100)
	assert.Equal(t, []int{1}, requested)
}
