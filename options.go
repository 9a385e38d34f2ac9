package typesensei

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/typesensei/transport"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	nodes     []transport.Node
	apiKey    string
	transport transport.Doer

	timeout       time.Duration
	retries       int
	retryInterval time.Duration
	rateLimit     rate.Limit
	burst         int

	embedder Embedder

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithNodes sets the Typesense nodes. Requests rotate over them on failure.
func WithNodes(nodes ...transport.Node) Option {
	return optionFunc(func(c *clientConfig) {
		c.nodes = append(c.nodes, nodes...)
	})
}

// WithURL adds a node given as "http://host:port". Invalid URLs make New fail.
func WithURL(raw string) Option {
	return optionFunc(func(c *clientConfig) {
		n, err := transport.ParseNode(raw)
		if err != nil {
			n = transport.Node{}
		}
		c.nodes = append(c.nodes, n)
	})
}

// WithAPIKey sets the key sent in X-TYPESENSE-API-KEY.
func WithAPIKey(key string) Option {
	return optionFunc(func(c *clientConfig) {
		c.apiKey = key
	})
}

// WithTransport replaces the HTTP transport. Node, key, timeout, retry and
// rate options are ignored when set.
func WithTransport(d transport.Doer) Option {
	return optionFunc(func(c *clientConfig) {
		c.transport = d
	})
}

// WithTimeout sets the per-request timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithRetries retries failed requests on the next node n times, waiting
// interval between attempts. Only network errors and 5xx responses are
// retried.
func WithRetries(n int, interval time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.retries = n
		c.retryInterval = interval
	})
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return optionFunc(func(c *clientConfig) {
		c.rateLimit = rate.Limit(perSecond)
		c.burst = burst
	})
}

// WithEmbedder sets the provider used by hybrid search.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
