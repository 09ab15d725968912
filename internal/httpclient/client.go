// Package httpclient is the outbound HTTP service. Upstream failures come
// back as *echo.HTTPError so a handler can return them as they are.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
)

const noResponseMessage = "No response received from server"

// Response is a completed upstream call with a 2xx status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

type Client struct {
	http   *http.Client
	logger zerolog.Logger
}

// New returns a client whose calls are recorded as external segments of
// the New Relic transaction in the request context, when there is one.
func New(timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: newrelic.NewRoundTripper(http.DefaultTransport),
		},
		logger: logger.With().Str("component", "HttpClient").Logger(),
	}
}

func (c *Client) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	return c.do(ctx, http.MethodGet, url, nil, header)
}

// Post sends body as JSON unless it is already []byte or an io.Reader.
func (c *Client) Post(ctx context.Context, url string, body any, header http.Header) (*Response, error) {
	return c.do(ctx, http.MethodPost, url, body, header)
}

func (c *Client) Put(ctx context.Context, url string, body any, header http.Header) (*Response, error) {
	return c.do(ctx, http.MethodPut, url, body, header)
}

func (c *Client) Delete(ctx context.Context, url string, header http.Header) (*Response, error) {
	return c.do(ctx, http.MethodDelete, url, nil, header)
}

func (c *Client) do(ctx context.Context, method, url string, body any, header http.Header) (*Response, error) {
	reader, isJSON, err := encodeBody(body)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if isJSON && req.Header.Get(echo.HeaderContentType) == "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("url", url).Msg("upstream request failed")
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, noResponseMessage).SetInternal(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, noResponseMessage).
			SetInternal(fmt.Errorf("read response body: %w", err))
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("upstream request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(data)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, echo.NewHTTPError(resp.StatusCode, msg)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func encodeBody(body any) (io.Reader, bool, error) {
	switch b := body.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return bytes.NewReader(b), false, nil
	case string:
		return bytes.NewReader([]byte(b)), false, nil
	case io.Reader:
		return b, false, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, false, fmt.Errorf("encode request body: %w", err)
		}
		return bytes.NewReader(data), true, nil
	}
}
