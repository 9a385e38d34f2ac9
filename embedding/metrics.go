package embedding

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the embedding Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Tokens   *prometheus.CounterVec
	Errors   *prometheus.CounterVec
	Cache    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg, reusing
// collectors a previous call already registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "typesensei",
				Name:      "embedding_requests_total",
				Help:      "Total number of embedding requests",
			},
			[]string{"provider", "model", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "typesensei",
				Name:      "embedding_request_duration_seconds",
				Help:      "Embedding request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider", "model"},
		),
		Tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "typesensei",
				Name:      "embedding_tokens_total",
				Help:      "Total embedding tokens consumed",
			},
			[]string{"provider", "model", "type"},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "typesensei",
				Name:      "embedding_errors_total",
				Help:      "Total embedding errors",
			},
			[]string{"provider", "model", "error_type"},
		),
		Cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "typesensei",
				Name:      "embedding_cache_total",
				Help:      "Embedding cache hits and misses",
			},
			[]string{"result"}, // "hit" / "miss"
		),
	}
	if err := registerOrReuse(reg, &m.Requests); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.Duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.Tokens); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.Errors); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.Cache); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("register embedding metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("embedding metric already registered with incompatible type: %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

func (m *Metrics) failure(provider, model, kind string) {
	if m != nil {
		m.Requests.WithLabelValues(provider, model, "error").Inc()
		m.Errors.WithLabelValues(provider, model, kind).Inc()
	}
}

func (m *Metrics) observe(provider, model string, seconds float64, prompt, total int) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(provider, model, "success").Inc()
	m.Duration.WithLabelValues(provider, model).Observe(seconds)
	if total > 0 {
		m.Tokens.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
		m.Tokens.WithLabelValues(provider, model, "total").Add(float64(total))
	}
}

func (m *Metrics) cache(result string) {
	if m != nil {
		m.Cache.WithLabelValues(result).Inc()
	}
}
