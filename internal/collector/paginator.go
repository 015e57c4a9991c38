package collector

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"strconv"
)

// PageFunc fetches one page of items. page is 1-based.
type PageFunc[T any] func(ctx context.Context, page, perPage int) ([]T, error)

// Paginate requests successive pages and concatenates them, stopping at the
// first page holding fewer than perPage items. An empty page therefore ends
// the walk as well. A failed page aborts with its error.
func Paginate[T any](ctx context.Context, perPage int, fetch PageFunc[T]) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		items, err := fetch(ctx, page, perPage)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, items...)
		if len(items) < perPage {
			return all, nil
		}
	}
}

// FirstPage fetches page 1 only. Its length is a lower bound, used where an
// approximate count is acceptable.
func FirstPage[T any](ctx context.Context, perPage int, fetch PageFunc[T]) ([]T, error) {
	return fetch(ctx, 1, perPage)
}

// ListPage returns a PageFunc for a REST endpoint answering with a JSON array.
func ListPage[T any](c *Client, path string, params url.Values) PageFunc[T] {
	return func(ctx context.Context, page, perPage int) ([]T, error) {
		var items []T
		if err := c.GetJSON(ctx, path, pageParams(params, page, perPage), &items); err != nil {
			return nil, err
		}
		return items, nil
	}
}

// EnvelopePage returns a PageFunc for endpoints wrapping their items in an
// object such as {"total_count": 2, "runners": [...]}. unwrap extracts the items.
func EnvelopePage[E any, T any](c *Client, path string, params url.Values, unwrap func(*E) []T) PageFunc[T] {
	return func(ctx context.Context, page, perPage int) ([]T, error) {
		var envelope E
		if err := c.GetJSON(ctx, path, pageParams(params, page, perPage), &envelope); err != nil {
			return nil, err
		}
		return unwrap(&envelope), nil
	}
}

func pageParams(params url.Values, page, perPage int) url.Values {
	q := make(url.Values, len(params)+2)
	maps.Copy(q, params)
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	return q
}
