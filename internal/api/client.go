package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"kmlc/internal/logging"
	"kmlc/internal/metrics"
)

// DefaultTimeout bounds a request when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// HTTPDoer describes the HTTP client used to reach the server.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Session supplies the bearer token and receives 401 notifications.
type Session interface {
	// BearerToken returns the current token, or "" when signed out.
	BearerToken() string
	// OnAuthRejected is called with the token a rejected request carried.
	OnAuthRejected(token string)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Logger     *slog.Logger
}

// Client talks to the classification service.
type Client struct {
	baseURL string
	timeout time.Duration
	http    HTTPDoer
	session Session
	logger  *slog.Logger
}

// New constructs a Client without a session; see WithSession.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	doer := opts.HTTPClient
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		timeout: timeout,
		http:    doer,
		logger:  logging.NewComponentLogger(opts.Logger, "api"),
	}
}

// WithSession returns a copy of c that authenticates with s.
func (c *Client) WithSession(s Session) *Client {
	clone := *c
	clone.session = s
	return &clone
}

// BaseURL returns the server root the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

type request struct {
	method      string
	route       string
	path        string
	query       url.Values
	body        any
	rawBody     io.Reader
	contentType string
	anonymous   bool
}

// send performs req and returns the response for 2xx answers. Every other
// outcome is mapped to an error and the body is closed.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	requestURL := c.baseURL + req.path
	if len(req.query) > 0 {
		requestURL += "?" + req.query.Encode()
	}

	body := req.rawBody
	contentType := req.contentType
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	requestID := uuid.NewString()
	ctx = logging.WithRequestID(ctx, requestID)
	logger := logging.WithContext(ctx, c.logger)

	httpReq, err := http.NewRequestWithContext(ctx, req.method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("X-Request-ID", requestID)
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	sentToken := ""
	if !req.anonymous && c.session != nil {
		sentToken = c.session.BearerToken()
		if sentToken != "" {
			httpReq.Header.Set("Authorization", "Bearer "+sentToken)
		}
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveRequest(req.method, req.route, 0, time.Since(started))
		logger.Debug("request failed", logging.String("method", req.method), logging.String("path", req.path), logging.Error(err))
		return nil, classifyTransportError(ctx, req, err)
	}
	metrics.ObserveRequest(req.method, req.route, resp.StatusCode, time.Since(started))
	logger.Debug("request completed",
		logging.String("method", req.method),
		logging.String("path", req.path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Detail: parseDetail(payload)}

	if resp.StatusCode == http.StatusUnauthorized && sentToken != "" {
		metrics.AuthRejected()
		logger.Warn("server rejected credential", logging.String("path", req.path))
		c.session.OnAuthRejected(sentToken)
	}
	if resp.StatusCode >= 500 {
		return nil, &NetworkError{Kind: ServerError, Err: apiErr}
	}
	return nil, apiErr
}

func classifyTransportError(ctx context.Context, req request, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{Kind: Timeout, Err: fmt.Errorf("%s %s: %w", req.method, req.path, err)}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &NetworkError{Kind: Timeout, Err: fmt.Errorf("%s %s: %w", req.method, req.path, err)}
	}
	return &NetworkError{Kind: Unreachable, Err: fmt.Errorf("%s %s: %w", req.method, req.path, err)}
}

// doJSON sends req within the request timeout and decodes a 2xx body into out.
func (c *Client) doJSON(ctx context.Context, req request, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &NetworkError{Kind: Timeout, Err: err}
		}
		return fmt.Errorf("decode %s response: %w", req.route, err)
	}
	return nil
}
