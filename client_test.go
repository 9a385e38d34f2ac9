package typesensei

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/typesensei/schema"
	"github.com/kailas-cloud/typesensei/transport"
)

func TestNew_NoNodes(t *testing.T) {
	_, err := New(WithAPIKey("xyz"))
	if !errors.Is(err, ErrNoNodes) {
		t.Fatalf("error = %v, want ErrNoNodes", err)
	}
}

func TestNew_NoAPIKey(t *testing.T) {
	_, err := New(WithURL("http://localhost:8108"))
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("error = %v, want ErrMissingAPIKey", err)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(WithURL("::not a url"), WithAPIKey("xyz"))
	if !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("error = %v, want ErrInvalidOptions", err)
	}
}

func TestNew_HTTPOptions(t *testing.T) {
	c, err := New(
		WithNodes(transport.Node{Host: "a", Port: 8108}, transport.Node{Host: "b", Port: 8108}),
		WithAPIKey("xyz"),
		WithTimeout(time.Second),
		WithRetries(2, 10*time.Millisecond),
		WithRateLimit(100, 10),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.doer.(*transport.HTTP); !ok {
		t.Errorf("doer = %T, want *transport.HTTP", c.doer)
	}
}

func TestWithEmbedder(t *testing.T) {
	e := &mockEmbedder{}
	c := newTestClient(t, reply("{}"), WithEmbedder(e))
	if c.embedder != e {
		t.Error("embedder not set")
	}
}

func TestClient_Health(t *testing.T) {
	d := reply(`{"ok":true}`)
	c := newTestClient(t, d)

	ok, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("Health() = false, want true")
	}
	if req := d.last(t); req.Method != http.MethodGet || req.String() != "GET /health" {
		t.Errorf("request = %s", req)
	}
}

func TestClient_HealthOverHTTP(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-TYPESENSE-API-KEY") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Forbidden - a valid x-typesense-api-key header must be sent."}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c, err := New(WithURL(srv.URL), WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, err := c.Health(context.Background()); err != nil || !ok {
		t.Fatalf("Health() = %v, %v", ok, err)
	}

	bad, err := New(WithURL(srv.URL), WithAPIKey("wrong"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = bad.Health(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("error = %v, want *APIError with status 401", err)
	}
}

func TestClient_DecodeError(t *testing.T) {
	c := newTestClient(t, reply(`not json`))
	if _, err := c.Health(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

// --- CollectionService ---

func booksSchema() schema.Collection {
	return schema.New("books").
		String("title").
		Int32("year", schema.Facet()).
		DefaultSortingField("year").
		MustBuild()
}

func TestCollectionService_Create(t *testing.T) {
	d := reply(`{"name":"books","fields":[{"name":"title","type":"string"}],"num_documents":0,"created_at":1700000000}`)
	c := newTestClient(t, d)

	info, err := c.Collections().Create(context.Background(), booksSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Name != "books" || info.CreatedAt != 1700000000 {
		t.Errorf("info = %+v", info)
	}

	req := d.last(t)
	if req.String() != "POST /collections" {
		t.Errorf("request = %s", req)
	}
	var sent schema.Collection
	if err := json.Unmarshal(req.Body, &sent); err != nil {
		t.Fatalf("body: %v", err)
	}
	if sent.Name != "books" || len(sent.Fields) != 2 || sent.DefaultSortingField != "year" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestCollectionService_Create_Invalid(t *testing.T) {
	d := reply(`{}`)
	c := newTestClient(t, d)

	_, err := c.Collections().Create(context.Background(), schema.Collection{})
	if !errors.Is(err, schema.ErrEmptyName) {
		t.Fatalf("error = %v, want ErrEmptyName", err)
	}
	if len(d.calls) != 0 {
		t.Errorf("invalid schema was sent: %d calls", len(d.calls))
	}
}

func TestCollectionService_Ensure_Exists(t *testing.T) {
	d := &mockDoer{fn: func(_ context.Context, req transport.Request) ([]byte, error) {
		if req.Method == http.MethodPost {
			return nil, &transport.Error{Status: http.StatusConflict, Message: "already exists"}
		}
		return []byte(`{"name":"books","num_documents":12}`), nil
	}}
	c := newTestClient(t, d)

	info, err := c.Collections().Ensure(context.Background(), booksSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.NumDocuments != 12 {
		t.Errorf("num_documents = %d, want 12", info.NumDocuments)
	}
	if req := d.last(t); req.String() != "GET /collections/books" {
		t.Errorf("fallback request = %s", req)
	}
}

func TestCollectionService_Ensure_Error(t *testing.T) {
	d := &mockDoer{fn: func(context.Context, transport.Request) ([]byte, error) {
		return nil, &transport.Error{Status: http.StatusServiceUnavailable}
	}}
	c := newTestClient(t, d)

	_, err := c.Collections().Ensure(context.Background(), booksSchema())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if len(d.calls) != 1 {
		t.Errorf("calls = %d, want no fallback retrieve", len(d.calls))
	}
}

func TestCollectionService_ListUpdateDelete(t *testing.T) {
	d := &mockDoer{fn: func(_ context.Context, req transport.Request) ([]byte, error) {
		switch req.Method {
		case http.MethodGet:
			return []byte(`[{"name":"a"},{"name":"b"}]`), nil
		case http.MethodPatch:
			return req.Body, nil
		case http.MethodDelete:
			return []byte(`{"name":"a","num_documents":3}`), nil
		}
		return nil, errors.New("unexpected method")
	}}
	c := newTestClient(t, d)
	ctx := context.Background()

	list, err := c.Collections().List(ctx)
	if err != nil || len(list) != 2 || list[1].Name != "b" {
		t.Fatalf("List() = %+v, %v", list, err)
	}

	u := schema.Update{Fields: []schema.Field{{Name: "pages", Type: schema.TypeInt32}, schema.Drop("old")}}
	out, err := c.Collections().Update(ctx, "a", u)
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if len(out.Fields) != 2 || out.Fields[1].Drop == nil || !*out.Fields[1].Drop {
		t.Errorf("Update() = %+v", out)
	}
	if want := `{"fields":[{"type":"int32","name":"pages"},{"name":"old","drop":true}]}`; string(d.last(t).Body) != want {
		t.Errorf("patch body = %s, want %s", d.last(t).Body, want)
	}

	info, err := c.Collections().Delete(ctx, "a")
	if err != nil || info.NumDocuments != 3 {
		t.Fatalf("Delete() = %+v, %v", info, err)
	}
}

// --- AliasService ---

func TestAliasService(t *testing.T) {
	d := &mockDoer{fn: func(_ context.Context, req transport.Request) ([]byte, error) {
		switch req.Method {
		case http.MethodPut:
			return []byte(`{"name":"books","collection_name":"books_v2"}`), nil
		case http.MethodGet:
			if len(req.Path) == 1 {
				return []byte(`{"aliases":[{"name":"books","collection_name":"books_v2"}]}`), nil
			}
			return nil, &transport.Error{Status: http.StatusNotFound, Message: "Not Found"}
		}
		return []byte(`{"name":"books","collection_name":"books_v2"}`), nil
	}}
	c := newTestClient(t, d)
	ctx := context.Background()

	a, err := c.Aliases().Upsert(ctx, "books", "books_v2")
	if err != nil || a.CollectionName != "books_v2" {
		t.Fatalf("Upsert() = %+v, %v", a, err)
	}
	if req := d.last(t); req.String() != "PUT /aliases/books" || string(req.Body) != `{"collection_name":"books_v2"}` {
		t.Errorf("request = %s %s", req, req.Body)
	}

	list, err := c.Aliases().List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %+v, %v", list, err)
	}

	if _, err := c.Aliases().Retrieve(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Retrieve() error = %v, want ErrNotFound", err)
	}

	if _, err := c.Aliases().Delete(ctx, "books"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
}

// --- KeyService ---

func TestKeyService(t *testing.T) {
	d := &mockDoer{fn: func(_ context.Context, req transport.Request) ([]byte, error) {
		switch req.Method {
		case http.MethodPost:
			return []byte(`{"id":7,"description":"search","actions":["documents:search"],"collections":["books"],"value":"abcd1234"}`), nil
		case http.MethodDelete:
			return []byte(`{"id":7}`), nil
		}
		if len(req.Path) == 1 {
			return []byte(`{"keys":[{"id":7,"value_prefix":"abcd"}]}`), nil
		}
		return []byte(`{"id":7,"value_prefix":"abcd"}`), nil
	}}
	c := newTestClient(t, d)
	ctx := context.Background()

	k, err := c.Keys().Create(ctx, KeySpec{
		Description: "search",
		Actions:     []string{"documents:search"},
		Collections: []string{"books"},
	})
	if err != nil || k.ID != 7 || k.Value != "abcd1234" {
		t.Fatalf("Create() = %+v, %v", k, err)
	}

	got, err := c.Keys().Retrieve(ctx, 7)
	if err != nil || got.ValuePrefix != "abcd" {
		t.Fatalf("Retrieve() = %+v, %v", got, err)
	}
	if req := d.last(t); req.String() != "GET /keys/7" {
		t.Errorf("request = %s", req)
	}

	keys, err := c.Keys().List(ctx)
	if err != nil || len(keys) != 1 {
		t.Fatalf("List() = %+v, %v", keys, err)
	}

	id, err := c.Keys().Delete(ctx, 7)
	if err != nil || id != 7 {
		t.Fatalf("Delete() = %d, %v", id, err)
	}
}

// --- observability ---

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := &mockDoer{fn: func(_ context.Context, req transport.Request) ([]byte, error) {
		if req.Path[0] == "collections" {
			return nil, &transport.Error{Status: http.StatusNotFound}
		}
		return []byte(`{"ok":true}`), nil
	}}
	c := newTestClient(t, d, WithPrometheus(reg), WithLogger(zap.NewNop()))
	ctx := context.Background()

	_, _ = c.Health(ctx)
	_, _ = c.Health(ctx)
	_, _ = c.Collections().Retrieve(ctx, "nope")

	if v := counterValue(t, reg, "typesensei_sdk_operations_total", map[string]string{"operation": "health", "status": "ok"}); v != 2 {
		t.Errorf("health ok = %v, want 2", v)
	}
	if v := counterValue(t, reg, "typesensei_sdk_operations_total", map[string]string{"operation": "collection.retrieve", "status": "error"}); v != 1 {
		t.Errorf("retrieve error = %v, want 1", v)
	}

	// A second client on the same registry reuses the collectors.
	if _, err := New(WithTransport(d), WithPrometheus(reg)); err != nil {
		t.Fatalf("second client: %v", err)
	}
}
