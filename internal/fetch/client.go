package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ErrorKind classifies transport failures
type ErrorKind string

const (
	ConnectionError    ErrorKind = "connection_error"
	ReadTimeout        ErrorKind = "read_timeout"
	MaxRetriesExceeded ErrorKind = "max_retries_exceeded"
)

// Error is returned for every network failure, including ones that surface while
// reading a response body
type Error struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Response is a streamed HTTP response. Callers must close Body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Client fetches a URL as a stream
type Client interface {
	Get(ctx context.Context, url string) (*Response, error)
}

// Config contains client configuration
type Config struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// HTTPClient implements Client over net/http with connection-level retries
type HTTPClient struct {
	client *http.Client
	config Config
}

// NewHTTPClient creates a new HTTP client. Timeout bounds dialing and the wait for
// response headers, not the whole transfer.
func NewHTTPClient(cfg Config) *HTTPClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	dialer := &net.Dialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext

	return &HTTPClient{
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

// Get issues a streaming GET. Connection failures and 5xx responses are retried up
// to MaxRetries times; a timeout is reported at once.
func (c *HTTPClient) Get(ctx context.Context, url string) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.Backoff * time.Duration(attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, &Error{Kind: ConnectionError, URL: url, Err: err}
		}
		if c.config.UserAgent != "" {
			req.Header.Set("User-Agent", c.config.UserAgent)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isTimeout(err) {
				return nil, &Error{Kind: ReadTimeout, URL: url, Err: err}
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			lastErr = fmt.Errorf("server returned %d", resp.StatusCode)
			continue
		}

		return &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       &body{rc: resp.Body, url: url},
		}, nil
	}

	if c.config.MaxRetries > 0 {
		return nil, &Error{Kind: MaxRetriesExceeded, URL: url, Err: lastErr}
	}
	return nil, &Error{Kind: ConnectionError, URL: url, Err: lastErr}
}

// body converts read failures into *Error
type body struct {
	rc  io.ReadCloser
	url string
}

func (b *body) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if err != nil && err != io.EOF {
		if errors.Is(err, context.Canceled) {
			return n, err
		}
		kind := ConnectionError
		if isTimeout(err) {
			kind = ReadTimeout
		}
		return n, &Error{Kind: kind, URL: b.url, Err: err}
	}
	return n, err
}

func (b *body) Close() error {
	return b.rc.Close()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}
