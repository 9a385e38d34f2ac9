package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/typesensei"
	"github.com/kailas-cloud/typesensei/kv"
)

// DefaultKeyPrefix namespaces cache keys.
const DefaultKeyPrefix = "typesensei:emb_cache:"

// Compile-time check: Cached implements typesensei.Embedder.
var _ typesensei.Embedder = (*Cached)(nil)

// CacheConfig configures a Cached embedder.
type CacheConfig struct {
	Model     string        // part of the key, so models never share vectors
	KeyPrefix string        // default DefaultKeyPrefix
	TTL       time.Duration // 0 keeps entries until evicted
	Metrics   *Metrics
	Logger    *zap.Logger
}

// Cached caches embeddings in a key-value store. Store failures are
// logged and fall through to the inner embedder.
type Cached struct {
	inner   typesensei.Embedder
	store   kv.Store
	model   string
	prefix  string
	ttl     time.Duration
	metrics *Metrics
	logger  *zap.Logger
}

// NewCached creates a caching decorator around inner.
func NewCached(inner typesensei.Embedder, store kv.Store, cfg CacheConfig) *Cached {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		inner:   inner,
		store:   store,
		model:   cfg.Model,
		prefix:  prefix,
		ttl:     cfg.TTL,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: token counts are 0 (no real tokens consumed).
// Cache miss: full EmbeddingResult from inner.
func (c *Cached) Embed(ctx context.Context, text string) (typesensei.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.metrics.cache("hit")
		return typesensei.EmbeddingResult{Embedding: vec}, nil
	}

	c.metrics.cache("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return typesensei.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.putToCache(ctx, key, result.Embedding)
	return result, nil
}

func (c *Cached) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return c.prefix + hex.EncodeToString(h.Sum(nil))
}

func (c *Cached) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return vec, true
}

func (c *Cached) putToCache(ctx context.Context, key string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	if err := c.store.Set(ctx, key, vectorToBytes(vec), c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
