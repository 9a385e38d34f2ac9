// Package transport issues requests against Typesense nodes.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	apiKeyHeader    = "X-TYPESENSE-API-KEY"
	requestIDHeader = "X-Request-Id"

	defaultTimeout       = 10 * time.Second
	defaultRetryInterval = 100 * time.Millisecond
	maxErrorBody         = 4 << 10
)

// Node is one Typesense server.
type Node struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Protocol string `yaml:"protocol"`
}

func (n Node) baseURL() string {
	proto := n.Protocol
	if proto == "" {
		proto = "http"
	}
	if n.Port == 0 {
		return proto + "://" + n.Host
	}
	return proto + "://" + n.Host + ":" + strconv.Itoa(n.Port)
}

// ParseNode parses "http://host:port" into a Node.
func ParseNode(raw string) (Node, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Node{}, fmt.Errorf("parse node %q: %w", raw, err)
	}
	if u.Host == "" {
		return Node{}, fmt.Errorf("parse node %q: missing host", raw)
	}
	n := Node{Host: u.Hostname(), Protocol: u.Scheme}
	if p := u.Port(); p != "" {
		n.Port, err = strconv.Atoi(p)
		if err != nil {
			return Node{}, fmt.Errorf("parse node %q: %w", raw, err)
		}
	}
	return n, nil
}

// Request describes one API call. Path segments are escaped individually.
type Request struct {
	Method      string
	Path        []string
	Query       url.Values
	Body        []byte
	ContentType string
}

func (r Request) String() string { return r.Method + " /" + strings.Join(r.Path, "/") }

// Doer executes a request and returns the raw response body of a 2xx
// response. Non-2xx responses are returned as *Error.
type Doer interface {
	Do(ctx context.Context, req Request) ([]byte, error)
}

// Config configures the HTTP transport.
type Config struct {
	Nodes  []Node
	APIKey string

	Timeout       time.Duration
	Retries       int
	RetryInterval time.Duration

	// RateLimit caps requests per second across all nodes. Zero disables it.
	RateLimit rate.Limit
	Burst     int

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// HTTP is a Doer talking to a set of nodes. Failed attempts move on to the
// next node in round-robin order.
type HTTP struct {
	nodes         []Node
	apiKey        string
	retries       int
	retryInterval time.Duration

	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	next    atomic.Uint32
}

// NewHTTP validates cfg and builds the transport.
func NewHTTP(cfg Config) (*HTTP, error) {
	if len(cfg.Nodes) == 0 {
		return nil, errors.New("transport: at least one node required")
	}
	for _, n := range cfg.Nodes {
		if n.Host == "" {
			return nil, errors.New("transport: node host required")
		}
	}
	if cfg.APIKey == "" {
		return nil, errors.New("transport: api key required")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &HTTP{
		nodes:         cfg.Nodes,
		apiKey:        cfg.APIKey,
		retries:       max(cfg.Retries, 0),
		retryInterval: interval,
		client:        client,
		logger:        logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}
	return h, nil
}

// Do implements Doer.
func (h *HTTP) Do(ctx context.Context, req Request) ([]byte, error) {
	path, err := escapePath(req.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req, err)
	}
	requestID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= h.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(h.retryInterval):
			}
		}
		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%s: %w", req, err)
			}
		}

		node := h.nodes[int(h.next.Add(1)-1)%len(h.nodes)]
		body, retry, err := h.attempt(ctx, node, path, req, requestID)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry {
			break
		}
		h.logger.Warn("typesense request failed, retrying",
			zap.String("request_id", requestID),
			zap.String("node", node.Host),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, lastErr
}

func (h *HTTP) attempt(
	ctx context.Context, node Node, path string, req Request, requestID string,
) ([]byte, bool, error) {
	u := node.baseURL() + path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", req, err)
	}
	httpReq.Header.Set(apiKeyHeader, h.apiKey)
	httpReq.Header.Set(requestIDHeader, requestID)
	if req.Body != nil {
		ct := req.ContentType
		if ct == "" {
			ct = "application/json"
		}
		httpReq.Header.Set("Content-Type", ct)
	}

	start := time.Now()
	resp, err := h.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("%s: %w", req, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%s: read response: %w", req, err)
	}
	h.logger.Debug("typesense request",
		zap.String("request_id", requestID),
		zap.String("method", req.Method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, false, nil
	}
	apiErr := &Error{Status: resp.StatusCode, Message: errorMessage(data)}
	return nil, resp.StatusCode >= http.StatusInternalServerError, apiErr
}

func escapePath(segments []string) (string, error) {
	var b strings.Builder
	for _, seg := range segments {
		escaped, err := runtime.StyleParamWithLocation("simple", false, "path", runtime.ParamLocationPath, seg)
		if err != nil {
			return "", fmt.Errorf("escape path segment %q: %w", seg, err)
		}
		b.WriteByte('/')
		b.WriteString(escaped)
	}
	return b.String(), nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}
