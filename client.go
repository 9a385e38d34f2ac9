package typesensei

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/typesensei/transport"
)

// Client is the typesensei entry point.
type Client struct {
	doer     transport.Doer
	obs      *observer
	embedder Embedder
}

// New creates a Client. Either WithTransport, or WithNodes/WithURL
// together with WithAPIKey, is required.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	doer := cfg.transport
	if doer == nil {
		if len(cfg.nodes) == 0 {
			return nil, ErrNoNodes
		}
		for _, n := range cfg.nodes {
			if n.Host == "" {
				return nil, fmt.Errorf("%w: node without host", ErrInvalidOptions)
			}
		}
		if cfg.apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		h, err := transport.NewHTTP(transport.Config{
			Nodes:         cfg.nodes,
			APIKey:        cfg.apiKey,
			Timeout:       cfg.timeout,
			Retries:       cfg.retries,
			RetryInterval: cfg.retryInterval,
			RateLimit:     cfg.rateLimit,
			Burst:         cfg.burst,
			Logger:        cfg.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("typesensei: %w", err)
		}
		doer = h
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}
	return &Client{doer: doer, obs: obs, embedder: cfg.embedder}, nil
}

// Collections returns the collection management service.
func (c *Client) Collections() *CollectionService {
	return &CollectionService{client: c}
}

// Aliases returns the alias management service.
func (c *Client) Aliases() *AliasService {
	return &AliasService{client: c}
}

// Keys returns the API key management service.
func (c *Client) Keys() *KeyService {
	return &KeyService{client: c}
}

// Health reports whether the cluster accepts requests.
func (c *Client) Health(ctx context.Context) (_ bool, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	var resp struct {
		OK bool `json:"ok"`
	}
	if err := c.call(ctx, http.MethodGet, path("health"), nil, nil, &resp); err != nil {
		return false, fmt.Errorf("health: %w", err)
	}
	return resp.OK, nil
}

// call encodes in as JSON, sends it and decodes the response into out.
// Either may be nil.
func (c *Client) call(ctx context.Context, method string, p []string, query url.Values, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return newEncodeError(in, err)
		}
	}
	data, err := c.send(ctx, transport.Request{Method: method, Path: p, Query: query, Body: body})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req transport.Request) ([]byte, error) {
	data, err := c.doer.Do(ctx, req)
	if err != nil && c.obs.logger != nil {
		c.obs.logger.Debug("typesense call failed", zap.Stringer("request", req), zap.Error(err))
	}
	return data, err
}

func path(segments ...string) []string { return segments }
