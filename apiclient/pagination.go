package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bytedance/sonic"
)

type page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// maxPages bounds link following against a backend that loops.
const maxPages = 1000

// listAll fetches every item of a list endpoint. Both bare JSON arrays and
// paginated {"count","next","results"} pages are accepted; next links are
// followed until exhausted.
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	req := request{method: http.MethodGet, path: path, query: query}
	var all []T
	for i := 0; i < maxPages; i++ {
		resp, err := c.send(ctx, req)
		if err != nil {
			return nil, err
		}
		body := bytes.TrimSpace(resp.body)
		if len(body) == 0 {
			return all, nil
		}
		if body[0] == '[' {
			var items []T
			if err := sonic.Unmarshal(body, &items); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
			return append(all, items...), nil
		}
		var p page[T]
		if err := sonic.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode %s page: %w", path, err)
		}
		all = append(all, p.Results...)
		if p.Next == nil || *p.Next == "" {
			return all, nil
		}
		req = request{method: http.MethodGet, path: path, rawURL: *p.Next}
	}
	return nil, fmt.Errorf("list %s: more than %d pages", path, maxPages)
}

// envelope is the {"status","message","data"} wrapper of the events API.
type envelope[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func getEnveloped[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	var env envelope[T]
	err := c.do(ctx, request{method: http.MethodGet, path: path, query: query}, &env)
	if err != nil {
		var zero T
		return zero, err
	}
	if env.Status == "error" {
		var zero T
		return zero, &APIError{StatusCode: http.StatusOK, Message: env.Message}
	}
	return env.Data, nil
}
