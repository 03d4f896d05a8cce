package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultRESTTimeout = 5 * time.Second

	// maxEntryBytes caps a single GET response.
	maxEntryBytes = 4 << 20
)

// RESTStore is a client for the remote KV service.
//
//	GET    /kv/{key}          -> 404 | 200 {key, value, timestamp}
//	POST   /kv/{key} {value}  -> 200 {key, success, timestamp}
//	DELETE /kv/{key}          -> 200 {key, success, timestamp}
type RESTStore struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

var _ Store = (*RESTStore)(nil)

// RESTOption configures a RESTStore.
type RESTOption func(*RESTStore)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) RESTOption {
	return func(s *RESTStore) { s.client = c }
}

// WithTimeout bounds each request (default 5s).
func WithTimeout(d time.Duration) RESTOption {
	return func(s *RESTStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewRESTStore creates a client for the service at baseURL.
func NewRESTStore(baseURL string, opts ...RESTOption) (*RESTStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("kv: invalid base URL %q", baseURL)
	}
	s := &RESTStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		timeout: defaultRESTTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type getResponse struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type writeResponse struct {
	Key       string          `json:"key"`
	Success   bool            `json:"success"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Get fetches key.
func (s *RESTStore) Get(ctx context.Context, key string) (Entry, error) {
	var resp getResponse
	if err := s.do(ctx, http.MethodGet, key, nil, &resp); err != nil {
		return Entry{}, err
	}
	if len(resp.Value) == 0 {
		return Entry{}, fmt.Errorf("%w: response for %s has no value", ErrUnavailable, key)
	}
	return Entry{Key: key, Value: resp.Value, Timestamp: parseTimestamp(resp.Timestamp)}, nil
}

// Set writes value under key.
func (s *RESTStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	if err := checkValue(value); err != nil {
		return err
	}
	body, err := json.Marshal(struct {
		Value json.RawMessage `json:"value"`
	}{value})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}

	var resp writeResponse
	if err := s.do(ctx, http.MethodPost, key, body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: write of %s not acknowledged", ErrUnavailable, key)
	}
	return nil
}

// Delete removes key.
func (s *RESTStore) Delete(ctx context.Context, key string) error {
	var resp writeResponse
	err := s.do(ctx, http.MethodDelete, key, nil, &resp)
	if err == nil && !resp.Success {
		return fmt.Errorf("%w: delete of %s not acknowledged", ErrUnavailable, key)
	}
	return err
}

func (s *RESTStore) do(ctx context.Context, method, key string, body []byte, out any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/kv/"+key, reader)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxEntryBytes))
	if err != nil {
		return fmt.Errorf("%w: reading %s: %w", ErrUnavailable, key, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %q rejected by server", ErrInvalidKey, key)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s %s returned HTTP %d", ErrUnavailable, method, key, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", ErrUnavailable, key, err)
	}
	return nil
}
