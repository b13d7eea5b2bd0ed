// Package billapi is the client for the Billix backend REST endpoints.
package billapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/billix-app/billix/internal/auth"
	"github.com/billix-app/billix/internal/errs"
	"go.uber.org/zap"
)

// Timeouts of the backend HTTP client.
const (
	ResponseHeaderTimeout = 60 * time.Second
	RequestTimeout        = 120 * time.Second

	defaultRetryAfter = 60 * time.Second
	maxBody           = 4 << 20
)

// ErrResponseTooLarge is returned when a response body exceeds the read limit.
var ErrResponseTooLarge = fmt.Errorf("%w: response body exceeds %d bytes", errs.ErrServer, maxBody)

// Client calls the backend upload and ask endpoints.
type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
	now  func() time.Time
}

// New constructs a client for baseURL with the standard timeouts and request logging.
func New(baseURL string, log *zap.Logger) *Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = ResponseHeaderTimeout
	hc := &http.Client{
		Timeout:   RequestTimeout,
		Transport: &loggingTransport{next: tr, log: log},
	}
	return NewWithHTTPClient(baseURL, hc, log)
}

// NewWithHTTPClient constructs a client over hc, as is.
func NewWithHTTPClient(baseURL string, hc *http.Client, log *zap.Logger) *Client {
	return &Client{base: strings.TrimRight(baseURL, "/"), http: hc, log: log, now: time.Now}
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(req *http.Request) (int, http.Header, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, nil, nil, err
		}
		return 0, nil, nil, fmt.Errorf("%w: %w", errs.ErrNetwork, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: read body: %w", errs.ErrNetwork, err)
	}
	if len(body) > maxBody {
		return resp.StatusCode, resp.Header, nil, ErrResponseTooLarge
	}
	return resp.StatusCode, resp.Header, body, nil
}

// statusError maps a non-2xx response onto the errs taxonomy.
func statusError(code int, body []byte) error {
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return errs.ErrNotAuthenticated
	}
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	msg := strings.TrimSpace(eb.Error)
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &errs.ServerError{Status: code, Message: msg}
}

func bearer(req *http.Request, s auth.Session) {
	if s.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	}
}

func newJSONRequest(ctx context.Context, url string, v any) (*http.Request, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}
