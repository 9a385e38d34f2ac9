package typesensei

import (
	"context"
	"sync"
	"testing"

	"github.com/kailas-cloud/typesensei/transport"
)

// --- transport mock ---

type mockDoer struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, req transport.Request) ([]byte, error)
	calls []transport.Request
}

func (m *mockDoer) Do(ctx context.Context, req transport.Request) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	return m.fn(ctx, req)
}

func (m *mockDoer) last(t *testing.T) transport.Request {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		t.Fatal("no request was sent")
	}
	return m.calls[len(m.calls)-1]
}

// reply returns a doer that answers every request with body.
func reply(body string) *mockDoer {
	return &mockDoer{fn: func(context.Context, transport.Request) ([]byte, error) {
		return []byte(body), nil
	}}
}

func newTestClient(t *testing.T, d transport.Doer, opts ...Option) *Client {
	t.Helper()
	c, err := New(append([]Option{WithTransport(d)}, opts...)...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

// --- embedder mock ---

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}
