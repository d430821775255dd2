// Package request provides the HTTP client handed to actions and authentication callbacks.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	neturl "net/url"
	"time"

	"github.com/dukex/courier/pkg/integration"
)

const defaultTimeout = 10 * time.Second

// Options customise outgoing requests. They are usually derived from the
// destination settings and auth data by an ExtendRequest hook.
type Options struct {
	Headers  map[string]string
	Username string
	Password string
	Timeout  time.Duration
}

// Merge returns o overridden by the non-zero fields of other.
func (o Options) Merge(other Options) Options {
	headers := make(map[string]string, len(o.Headers)+len(other.Headers))
	maps.Copy(headers, o.Headers)
	maps.Copy(headers, other.Headers)

	out := Options{
		Headers:  headers,
		Username: o.Username,
		Password: o.Password,
		Timeout:  o.Timeout,
	}

	if other.Username != "" || other.Password != "" {
		out.Username = other.Username
		out.Password = other.Password
	}

	if other.Timeout > 0 {
		out.Timeout = other.Timeout
	}

	return out
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if len(r.Body) == 0 {
		return nil
	}

	return json.Unmarshal(r.Body, v)
}

// Data returns the body decoded as JSON, or as a string when it is not JSON.
func (r *Response) Data() any {
	var data any

	err := json.Unmarshal(r.Body, &data)
	if err != nil {
		return string(r.Body)
	}

	return data
}

// Client issues HTTP requests. Non-2xx responses are returned as
// *integration.HTTPError and context cancellation as integration.ErrCancelled.
type Client struct {
	http    *http.Client
	options Options
	logger  *slog.Logger
}

func NewClient(httpClient *http.Client, options Options, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		http:    httpClient,
		options: options,
		logger:  logger.With("module", "request"),
	}
}

// With returns a client sharing the transport with options merged on top.
func (c *Client) With(options Options) *Client {
	return &Client{
		http:    c.http,
		options: c.options.Merge(options),
		logger:  c.logger,
	}
}

func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil)
}

func (c *Client) PostJSON(ctx context.Context, url string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, url, body)
}

// PostForm posts url-encoded values.
func (c *Client) PostForm(ctx context.Context, url string, form map[string][]string) (*Response, error) {
	encoded := neturl.Values(form).Encode()

	return c.send(ctx, http.MethodPost, url, bytes.NewReader([]byte(encoded)), "application/x-www-form-urlencoded")
}

// Do sends body JSON encoded, unless it is nil, a []byte or a string.
func (c *Client) Do(ctx context.Context, method, url string, body any) (*Response, error) {
	var (
		reader      io.Reader
		contentType string
	)

	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}

		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	return c.send(ctx, method, url, reader, contentType)
}

func (c *Client) send(ctx context.Context, method, url string, body io.Reader, contentType string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, integration.NewCancelledError(err)
	}

	timeout := c.options.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	for key, value := range c.options.Headers {
		req.Header.Set(key, value)
	}

	if c.options.Username != "" || c.options.Password != "" {
		req.SetBasicAuth(c.options.Username, c.options.Password)
	}

	c.logger.DebugContext(ctx, "sending request", "method", method, "url", url)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := reqCtx.Err(); ctxErr != nil || errors.Is(err, context.Canceled) {
			if ctxErr == nil {
				ctxErr = context.Canceled
			}

			return nil, integration.NewCancelledError(ctxErr)
		}

		return nil, fmt.Errorf("http request failed: %w", errors.Join(integration.ErrTransport, err))
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", errors.Join(integration.ErrTransport, err))
	}

	response := &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   payload,
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return response, &integration.HTTPError{
			Status: resp.StatusCode,
			Method: method,
			URL:    url,
			Body:   string(payload),
		}
	}

	return response, nil
}
