package typesensei_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/kailas-cloud/typesensei"
	"github.com/kailas-cloud/typesensei/examples/library"
	"github.com/kailas-cloud/typesensei/transport"
)

// fakeServer answers requests in-process and records them.
type fakeServer struct {
	mu     sync.Mutex
	handle func(req transport.Request) ([]byte, error)
	reqs   []transport.Request
}

func (f *fakeServer) Do(_ context.Context, req transport.Request) ([]byte, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.handle(req)
}

func (f *fakeServer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeServer) last(t *testing.T) transport.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) == 0 {
		t.Fatal("no request was sent")
	}
	return f.reqs[len(f.reqs)-1]
}

func answer(body string) *fakeServer {
	return &fakeServer{handle: func(transport.Request) ([]byte, error) { return []byte(body), nil }}
}

type embedFunc func(ctx context.Context, text string) (typesensei.EmbeddingResult, error)

func (f embedFunc) Embed(ctx context.Context, text string) (typesensei.EmbeddingResult, error) {
	return f(ctx, text)
}

func newBooks(t *testing.T, f *fakeServer, opts ...typesensei.Option) *typesensei.Collection[library.Book, library.BookModel, *library.BookModel] {
	t.Helper()
	client, err := typesensei.New(append([]typesensei.Option{typesensei.WithTransport(f)}, opts...)...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	books, err := typesensei.NewCollection[library.Book, library.BookModel](client, "")
	if err != nil {
		t.Fatalf("new collection: %v", err)
	}
	return books
}

func fp(v float64) *float64 { return &v }

func sampleBook(id string) library.Book {
	return library.Book{
		ID:        id,
		Title:     "Dune",
		Authors:   []string{"Frank Herbert"},
		Year:      1965,
		Rating:    fp(4.5),
		Publisher: library.Publisher{Name: "Chilton", Country: "US"},
		Stats:     library.Stats{Pages: 412, Ratings: 100},
	}
}

const sampleJSON = `{"id":"b1","title":"Dune","authors":["Frank Herbert"],"year":1965,"rating":4.5,` +
	`"publisher":{"name":"Chilton","country":"US"},"pages":412,"ratings_count":100}`

func TestNewCollection_Names(t *testing.T) {
	books := newBooks(t, answer("{}"))
	if books.Name() != "books" {
		t.Errorf("Name() = %q, want books", books.Name())
	}

	client, err := typesensei.New(typesensei.WithTransport(answer("{}")))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	v2, err := typesensei.NewCollection[library.Book, library.BookModel](client, "books_v2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v2.Name() != "books_v2" || v2.Schema().Name != "books_v2" {
		t.Errorf("name = %q / %q, want books_v2", v2.Name(), v2.Schema().Name)
	}
}

func TestCollection_Ensure(t *testing.T) {
	f := answer(`{"name":"books","num_documents":0}`)
	books := newBooks(t, f)

	if _, err := books.Ensure(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := f.last(t)
	if req.String() != "POST /collections" {
		t.Errorf("request = %s", req)
	}
	if !bytes.Contains(req.Body, []byte(`"enable_nested_fields":true`)) {
		t.Errorf("schema body = %s", req.Body)
	}
}

func TestCollection_Insert(t *testing.T) {
	f := &fakeServer{handle: func(req transport.Request) ([]byte, error) { return req.Body, nil }}
	books := newBooks(t, f)

	m, err := books.Insert(context.Background(), sampleBook("b1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := f.last(t)
	if req.String() != "POST /collections/books/documents" || req.Query != nil {
		t.Errorf("request = %s ?%v", req, req.Query)
	}
	if string(req.Body) != sampleJSON {
		t.Errorf("body =\n%s\nwant\n%s", req.Body, sampleJSON)
	}
	if title, _ := m.Title.Value(); title != "Dune" {
		t.Errorf("returned title = %q", title)
	}
}

func TestCollection_Upsert(t *testing.T) {
	f := answer(sampleJSON)
	books := newBooks(t, f)

	if _, err := books.Upsert(context.Background(), sampleBook("b1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.last(t).Query.Get("action"); got != "upsert" {
		t.Errorf("action = %q, want upsert", got)
	}
}

func TestCollection_UpdatePartial(t *testing.T) {
	f := answer(`{"id":"b1","title":"Dune (revised)"}`)
	books := newBooks(t, f)

	patch := library.BookModel{}.WithTitle("Dune (revised)")
	m, err := books.Update(context.Background(), "b1", patch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := f.last(t)
	if req.String() != "PATCH /collections/books/documents/b1" {
		t.Errorf("request = %s", req)
	}
	if string(req.Body) != `{"title":"Dune (revised)"}` {
		t.Errorf("body = %s, want only the set field", req.Body)
	}
	if m.Year.IsSet() {
		t.Error("fields absent from the response should stay NotSet")
	}
}

func TestCollection_Retrieve(t *testing.T) {
	books := newBooks(t, answer(sampleJSON))
	doc, err := books.Retrieve(context.Background(), "b1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID != "b1" || doc.Stats.Pages != 412 || *doc.Rating != 4.5 {
		t.Errorf("doc = %+v", doc)
	}
}

func TestCollection_RetrieveIncomplete(t *testing.T) {
	books := newBooks(t, answer(`{"id":"b1","title":"Dune"}`))

	_, err := books.Retrieve(context.Background(), "b1")
	var missing *typesensei.MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("error = %v, want *MissingFieldError", err)
	}
	if missing.Field != "authors" {
		t.Errorf("missing field = %q, want authors", missing.Field)
	}

	m, err := books.RetrieveModel(context.Background(), "b1")
	if err != nil {
		t.Fatalf("RetrieveModel() error: %v", err)
	}
	if !m.Title.IsSet() || m.Authors.IsSet() {
		t.Errorf("model = %+v", m)
	}
}

func TestCollection_RetrieveNotFound(t *testing.T) {
	f := &fakeServer{handle: func(transport.Request) ([]byte, error) {
		return nil, &transport.Error{Status: http.StatusNotFound, Message: "Could not find a document with id: x"}
	}}
	books := newBooks(t, f)

	if _, err := books.Retrieve(context.Background(), "x"); !errors.Is(err, typesensei.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestCollection_Delete(t *testing.T) {
	f := answer(sampleJSON)
	books := newBooks(t, f)

	m, err := books.Delete(context.Background(), "b1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.last(t).String() != "DELETE /collections/books/documents/b1" {
		t.Errorf("request = %s", f.last(t))
	}
	if id, _ := m.ID.Value(); id != "b1" {
		t.Errorf("deleted id = %q", id)
	}
}

func TestCollection_DeleteByFilter(t *testing.T) {
	f := answer(`{"num_deleted":4}`)
	books := newBooks(t, f)

	q := library.NewBookQuery()
	q.Year.LessThan(1950)
	n, err := books.DeleteByFilter(context.Background(), q.Q("").FilterBy, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted = %d, want 4", n)
	}
	req := f.last(t)
	if req.Query.Get("filter_by") != "year:<1950" || req.Query.Get("batch_size") != "100" {
		t.Errorf("query = %v", req.Query)
	}
}

func TestCollection_Export(t *testing.T) {
	body := strings.ReplaceAll(sampleJSON, `"b1"`, `"b2"`) + "\n\n" + sampleJSON + "\n"
	f := answer(body)
	books := newBooks(t, f)

	docs, err := books.Export(context.Background(), "year:>1900")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	if id, _ := docs[0].ID.Value(); id != "b2" {
		t.Errorf("docs[0].id = %q", id)
	}
	req := f.last(t)
	if req.String() != "GET /collections/books/documents/export" || req.Query.Get("filter_by") != "year:>1900" {
		t.Errorf("request = %s ?%v", req, req.Query)
	}
}

func TestCollection_ExportBadLine(t *testing.T) {
	books := newBooks(t, answer(sampleJSON+"\n{broken\n"))

	_, err := books.Export(context.Background(), "")
	var lineErr *typesensei.DecodeLineError
	if !errors.As(err, &lineErr) {
		t.Fatalf("error = %v, want *DecodeLineError", err)
	}
	if lineErr.Line != 2 {
		t.Errorf("line = %d, want 2", lineErr.Line)
	}
}

func TestCollection_Search(t *testing.T) {
	f := answer(`{"found":1,"out_of":3,"page":1,"search_time_ms":1,"hits":[{"document":` + sampleJSON + `,"text_match":578730123365187705}]}`)
	books := newBooks(t, f)

	q := library.NewBookQuery()
	q.Title.QueryBy()
	q.Publisher.Country.Equals("US")
	q.Year.SortDesc()

	res, err := books.Search(context.Background(), q.Q("dune").WithPerPage(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Found != 1 || len(res.Hits) != 1 {
		t.Fatalf("result = %+v", res)
	}
	doc, err := res.Hits[0].Document.Build()
	if err != nil {
		t.Fatalf("build hit: %v", err)
	}
	if doc.Publisher.Name != "Chilton" {
		t.Errorf("hit publisher = %q", doc.Publisher.Name)
	}

	req := f.last(t)
	if req.String() != "GET /collections/books/documents/search" {
		t.Errorf("request = %s", req)
	}
	want := map[string]string{
		"q": "dune", "query_by": "title", "filter_by": "publisher.country:=US", "sort_by": "year:desc", "per_page": "5",
	}
	for k, v := range want {
		if got := req.Query.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestSearch_RequiresCollection(t *testing.T) {
	client, err := typesensei.New(typesensei.WithTransport(answer("{}")))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = typesensei.Search[library.BookModel](context.Background(), client, typesensei.SearchQuery{Q: "x"})
	if !errors.Is(err, typesensei.ErrInvalidOptions) {
		t.Fatalf("error = %v, want ErrInvalidOptions", err)
	}
}

func TestCollection_HybridSearch(t *testing.T) {
	f := answer(`{"found":0,"hits":[]}`)
	embedder := embedFunc(func(_ context.Context, text string) (typesensei.EmbeddingResult, error) {
		if text != "desert planet" {
			t.Errorf("embedded text = %q", text)
		}
		return typesensei.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
	})
	books := newBooks(t, f, typesensei.WithEmbedder(embedder))

	sq := typesensei.SearchQuery{Q: "desert planet", QueryBy: "title"}
	if _, err := books.HybridSearch(context.Background(), sq, "embedding", 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.last(t).Query.Get("vector_query"); got != "embedding:([0.1,0.2], k:20)" {
		t.Errorf("vector_query = %q", got)
	}
}

func TestCollection_HybridSearchErrors(t *testing.T) {
	books := newBooks(t, answer("{}"))
	_, err := books.HybridSearch(context.Background(), typesensei.SearchQuery{Q: "x"}, "embedding", 5)
	if !errors.Is(err, typesensei.ErrNoEmbedder) {
		t.Fatalf("error = %v, want ErrNoEmbedder", err)
	}

	failing := embedFunc(func(context.Context, string) (typesensei.EmbeddingResult, error) {
		return typesensei.EmbeddingResult{}, errors.New("quota exceeded")
	})
	f := answer("{}")
	books = newBooks(t, f, typesensei.WithEmbedder(failing))
	if _, err := books.HybridSearch(context.Background(), typesensei.SearchQuery{Q: "x"}, "embedding", 5); err == nil {
		t.Fatal("expected embedder error")
	}
	if f.count() != 0 {
		t.Error("search must not be sent when embedding fails")
	}
}

// importHandler answers an import with one result line per document,
// rejecting documents whose id is listed in reject.
func importHandler(t *testing.T, reject ...string) func(transport.Request) ([]byte, error) {
	return func(req transport.Request) ([]byte, error) {
		if req.ContentType != "text/plain" {
			t.Errorf("content type = %q", req.ContentType)
		}
		var out bytes.Buffer
		for _, line := range bytes.Split(bytes.TrimSpace(req.Body), []byte("\n")) {
			var doc struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(line, &doc); err != nil {
				return nil, err
			}
			ok := true
			for _, r := range reject {
				ok = ok && doc.ID != r
			}
			if ok {
				fmt.Fprintf(&out, `{"success":true,"document":%s}`+"\n", line)
			} else {
				esc, _ := json.Marshal(string(line))
				fmt.Fprintf(&out, `{"success":false,"error":"Bad JSON.","document":%s}`+"\n", esc)
			}
		}
		return out.Bytes(), nil
	}
}

func models(books *typesensei.Collection[library.Book, library.BookModel, *library.BookModel], n int) []library.BookModel {
	out := make([]library.BookModel, n)
	for i := range out {
		out[i] = books.ModelOf(sampleBook(fmt.Sprintf("b%d", i)))
	}
	return out
}

func TestCollection_Import(t *testing.T) {
	f := &fakeServer{}
	f.handle = importHandler(t, "b1")
	books := newBooks(t, f)

	docs := models(books, 3)
	results, err := books.Import(context.Background(), docs,
		typesensei.WithAction(typesensei.ActionUpsert),
		typesensei.WithDirtyValues(typesensei.DirtyCoerceOrDrop),
		typesensei.WithBatchSize(50),
	)
	var importErr *typesensei.ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("error = %v, want *ImportError", err)
	}
	if len(results) != 3 || !results[0].Success || results[1].Success || !results[2].Success {
		t.Fatalf("results = %+v", results)
	}
	if len(importErr.Failures) != 1 || importErr.Failures[0].Index != 1 || importErr.Failures[0].Message != "Bad JSON." {
		t.Errorf("failures = %+v", importErr.Failures)
	}
	if !strings.Contains(importErr.Failures[0].Document, `"id":"b1"`) {
		t.Errorf("failure document = %q", importErr.Failures[0].Document)
	}
	if importErr.Action != typesensei.ActionUpsert {
		t.Errorf("action = %q", importErr.Action)
	}

	req := f.last(t)
	if req.String() != "POST /collections/books/documents/import" {
		t.Errorf("request = %s", req)
	}
	q := req.Query
	if q.Get("action") != "upsert" || q.Get("dirty_values") != "coerce_or_drop" || q.Get("batch_size") != "50" {
		t.Errorf("query = %v", q)
	}
	if lines := bytes.Count(req.Body, []byte("\n")); lines != 3 {
		t.Errorf("body has %d lines, want 3", lines)
	}
}

func TestCollection_ImportConcurrent(t *testing.T) {
	f := &fakeServer{}
	f.handle = importHandler(t)
	books := newBooks(t, f)

	docs := models(books, 10)
	results, err := books.Import(context.Background(), docs,
		typesensei.WithReturnDoc(),
		typesensei.WithImportConcurrency(3, 3),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.count() != 4 {
		t.Errorf("requests = %d, want 4 chunks", f.count())
	}
	for i, r := range results {
		var doc struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(r.Document, &doc); err != nil {
			t.Fatalf("result %d: %v", i, err)
		}
		if want := fmt.Sprintf("b%d", i); doc.ID != want {
			t.Errorf("result %d is for %q, want %q", i, doc.ID, want)
		}
	}
	if got := f.last(t).Query.Get("return_doc"); got != "true" {
		t.Errorf("return_doc = %q", got)
	}
}

func TestCollection_ImportChunkFailure(t *testing.T) {
	f := &fakeServer{handle: func(req transport.Request) ([]byte, error) {
		if bytes.Contains(req.Body, []byte(`"id":"b4"`)) {
			return nil, &transport.Error{Status: http.StatusServiceUnavailable, Message: "Not Ready"}
		}
		return importHandler(t)(req)
	}}
	books := newBooks(t, f)

	_, err := books.Import(context.Background(), models(books, 6), typesensei.WithImportConcurrency(2, 2))
	if !errors.Is(err, typesensei.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestCollection_ImportLineMismatch(t *testing.T) {
	books := newBooks(t, answer(`{"success":true}`+"\n"))
	if _, err := books.Import(context.Background(), models(books, 2)); err == nil {
		t.Fatal("expected error for a short response")
	}
}

func TestCollection_ImportEmpty(t *testing.T) {
	f := answer("")
	books := newBooks(t, f)
	results, err := books.Import(context.Background(), nil)
	if err != nil || results != nil {
		t.Fatalf("Import(nil) = %v, %v", results, err)
	}
	if f.count() != 0 {
		t.Error("empty import must not send a request")
	}
}
