package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
)

const maxBodySize = 1 << 20

// Firebase talks to a Realtime Database through its REST API.
// A path p maps to <base>/<p>.json; a JSON null body means the path is absent.
type Firebase struct {
	base   *url.URL
	client *http.Client
	closed atomic.Bool
}

// NewFirebase creates a REST client for the database at baseURL,
// e.g. https://<project>-default-rtdb.firebaseio.com. A query on baseURL,
// such as ?auth=<token>, is sent with every request.
func NewFirebase(baseURL string, opts ...Option) (*Firebase, error) {
	if baseURL == "" {
		return nil, errors.New("firebase url is required")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse firebase url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("firebase url must be http(s), got %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	o := resolve(opts)
	return &Firebase{
		base:   u,
		client: &http.Client{Timeout: o.Timeout},
	}, nil
}

// endpoint keeps the base query and adds extra to it
func (f *Firebase) endpoint(path string, extra url.Values) string {
	u := *f.base
	u.Path = u.Path + "/" + strings.Trim(path, "/") + ".json"

	q := u.Query()
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Get reads the raw JSON value at path
func (f *Firebase) Get(ctx context.Context, path string) ([]byte, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint(path, nil), nil)
	if err != nil {
		return nil, err
	}

	body, err := f.do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, ErrNotFound
	}
	return body, nil
}

// Set replaces the value at path
func (f *Firebase) Set(ctx context.Context, path string, value any) error {
	if f.closed.Load() {
		return ErrClosed
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("set %s: encode value: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, f.endpoint(path, url.Values{"print": {"silent"}}), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := f.do(req); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (f *Firebase) do(req *http.Request) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}

// Close releases idle connections
func (f *Firebase) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	f.client.CloseIdleConnections()
	return nil
}

var _ Store = (*Firebase)(nil)
