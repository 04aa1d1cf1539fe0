package httputil

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultTimeout bounds ordinary API calls.
	DefaultTimeout = 30 * time.Second
	// RangeTimeout bounds large ranged downloads (GRIB slices).
	RangeTimeout = 120 * time.Second

	maxRetries      = 3
	initialInterval = 300 * time.Millisecond
)

// StatusError is a completed response outside 2xx. Callers that care about a
// specific status (the alerts 404 case) unwrap it with errors.As.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
}

func retriable(status int) bool {
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Session is the shared HTTP client for every ingestor: one user-agent, a
// per-call timeout, and exponential-backoff retries on 500/502/503/504 for
// GET and HEAD.
type Session struct {
	ua     string
	client *http.Client
	slow   *http.Client
}

func NewSession(userAgent string) *Session {
	return &Session{
		ua:     userAgent,
		client: &http.Client{Timeout: DefaultTimeout},
		slow:   &http.Client{Timeout: RangeTimeout},
	}
}

func (s *Session) newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	return backoff.WithMaxRetries(bo, maxRetries)
}

func (s *Session) get(client *http.Client, url, rangeHeader string) ([]byte, error) {
	var body []byte
	operation := func() error {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", s.ua)
		if rangeHeader != "" {
			req.Header.Set("Range", rangeHeader)
		}
		resp, err := client.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("get %s: %w", url, err))
		}
		defer resp.Body.Close()
		if retriable(resp.StatusCode) {
			return &StatusError{StatusCode: resp.StatusCode, URL: url}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return backoff.Permanent(&StatusError{StatusCode: resp.StatusCode, URL: url})
		}
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read %s: %w", url, err))
		}
		return nil
	}
	if err := backoff.Retry(operation, s.newBackoff()); err != nil {
		return nil, err
	}
	return body, nil
}

// Get fetches url and returns the body, retrying transient upstream errors.
func (s *Session) Get(url string) ([]byte, error) {
	return s.get(s.client, url, "")
}

// GetRange fetches bytes [start, end] of url; end < 0 requests to EOF.
// Uses the long-download timeout.
func (s *Session) GetRange(url string, start, end int64) ([]byte, error) {
	header := fmt.Sprintf("bytes=%d-", start)
	if end >= 0 {
		header = fmt.Sprintf("bytes=%d-%d", start, end)
	}
	return s.get(s.slow, url, header)
}

// Head issues a HEAD request and returns the final status code. Any
// completed response is a success from the transport's point of view; the
// caller decides what the status means (the cycle probe wants 200).
func (s *Session) Head(url string) (int, error) {
	var status int
	operation := func() error {
		req, err := http.NewRequest(http.MethodHead, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", s.ua)
		resp, err := s.client.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("head %s: %w", url, err))
		}
		resp.Body.Close()
		status = resp.StatusCode
		if retriable(resp.StatusCode) {
			return &StatusError{StatusCode: resp.StatusCode, URL: url}
		}
		return nil
	}
	if err := backoff.Retry(operation, s.newBackoff()); err != nil {
		return status, err
	}
	return status, nil
}
