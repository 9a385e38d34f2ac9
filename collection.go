package typesensei

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/typesensei/schema"
)

// Collection is a typed handle on one collection of documents T, whose
// generated model type is M. The schema is derived from T's struct tags
// once, at construction time.
//
//	books, err := typesensei.NewCollection[Book, BookModel](client, "")
type Collection[T, M any, PM ModelPtr[T, M]] struct {
	name   string
	client *Client
	schema schema.Collection
}

// NewCollection creates a typed handle. An empty name uses the schema name
// of T.
func NewCollection[T, M any, PM ModelPtr[T, M]](client *Client, name string) (*Collection[T, M, PM], error) {
	s, err := SchemaOf[T]()
	if err != nil {
		return nil, fmt.Errorf("new collection %q: %w", name, err)
	}
	if name == "" {
		name = s.Name
	}
	s.Name = name
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("new collection %q: %w", name, err)
	}
	return &Collection[T, M, PM]{name: name, client: client, schema: s}, nil
}

// Name returns the collection name.
func (c *Collection[T, M, PM]) Name() string { return c.name }

// Schema returns the derived schema.
func (c *Collection[T, M, PM]) Schema() schema.Collection { return c.schema.Clone() }

// Create creates the collection.
func (c *Collection[T, M, PM]) Create(ctx context.Context) (CollectionInfo, error) {
	return c.client.Collections().Create(ctx, c.schema)
}

// Ensure creates the collection if it does not exist (idempotent).
func (c *Collection[T, M, PM]) Ensure(ctx context.Context) (CollectionInfo, error) {
	info, err := c.client.Collections().Ensure(ctx, c.schema)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("ensure %q: %w", c.name, err)
	}
	return info, nil
}

// Drop deletes the collection with all its documents.
func (c *Collection[T, M, PM]) Drop(ctx context.Context) (CollectionInfo, error) {
	return c.client.Collections().Delete(ctx, c.name)
}

func (c *Collection[T, M, PM]) docPath(rest ...string) []string {
	return append([]string{"collections", c.name, "documents"}, rest...)
}

// ModelOf converts a document to its model with every field set.
func (c *Collection[T, M, PM]) ModelOf(doc T) M {
	var m M
	PM(&m).Load(doc)
	return m
}

// Insert creates a document. Fails with ErrAlreadyExists on a taken id.
func (c *Collection[T, M, PM]) Insert(ctx context.Context, doc T) (_ M, err error) {
	start := time.Now()
	defer func() { c.client.obs.observe("document.create", start, err) }()

	return c.write(ctx, http.MethodPost, c.docPath(), nil, c.ModelOf(doc))
}

// Upsert creates a document or replaces the one with the same id.
func (c *Collection[T, M, PM]) Upsert(ctx context.Context, doc T) (_ M, err error) {
	start := time.Now()
	defer func() { c.client.obs.observe("document.upsert", start, err) }()

	return c.write(ctx, http.MethodPost, c.docPath(), url.Values{"action": {string(ActionUpsert)}}, c.ModelOf(doc))
}

// Update applies the set fields of m to the document with the given id.
// NotSet fields are left untouched on the server.
func (c *Collection[T, M, PM]) Update(ctx context.Context, id string, m M) (_ M, err error) {
	start := time.Now()
	defer func() { c.client.obs.observe("document.update", start, err) }()

	return c.write(ctx, http.MethodPatch, c.docPath(id), nil, m)
}

func (c *Collection[T, M, PM]) write(ctx context.Context, method string, p []string, q url.Values, m M) (M, error) {
	var out M
	if err := c.client.call(ctx, method, p, q, m, &out); err != nil {
		return out, fmt.Errorf("%s document in %q: %w", strings.ToLower(method), c.name, err)
	}
	return out, nil
}

// RetrieveModel fetches a document as a model, without requiring every
// field to be present.
func (c *Collection[T, M, PM]) RetrieveModel(ctx context.Context, id string) (_ M, err error) {
	start := time.Now()
	defer func() { c.client.obs.observe("document.retrieve", start, err) }()

	var m M
	if err := c.client.call(ctx, http.MethodGet, c.docPath(id), nil, nil, &m); err != nil {
		return m, fmt.Errorf("retrieve %q from %q: %w", id, c.name, err)
	}
	return m, nil
}

// Retrieve fetches a document. A response lacking a required field fails
// with *MissingFieldError.
func (c *Collection[T, M, PM]) Retrieve(ctx context.Context, id string) (T, error) {
	m, err := c.RetrieveModel(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	doc, err := PM(&m).Build()
	if err != nil {
		return doc, fmt.Errorf("retrieve %q from %q: %w", id, c.name, err)
	}
	return doc, nil
}

// Delete removes a document and returns it.
func (c *Collection[T, M, PM]) Delete(ctx context.Context, id string) (_ M, err error) {
	start := time.Now()
	defer func() { c.client.obs.observe("document.delete", start, err) }()

	var m M
	if err := c.client.call(ctx, http.MethodDelete, c.docPath(id), nil, nil, &m); err != nil {
		return m, fmt.Errorf("delete %q from %q: %w", id, c.name, err)
	}
	return m, nil
}

// DeleteByFilter removes every document matching filter and returns how
// many were deleted. batchSize bounds the documents deleted per server-side
// batch; zero uses the server default.
func (c *Collection[T, M, PM]) DeleteByFilter(ctx context.Context, filter string, batchSize int) (_ int, err error) {
	start := time.Now()
	defer func() { c.client.obs.observe("document.delete_by_filter", start, err) }()

	q := url.Values{"filter_by": {filter}}
	if batchSize > 0 {
		q.Set("batch_size", strconv.Itoa(batchSize))
	}
	var out struct {
		NumDeleted int `json:"num_deleted"`
	}
	if err := c.client.call(ctx, http.MethodDelete, c.docPath(), q, nil, &out); err != nil {
		return 0, fmt.Errorf("delete by filter from %q: %w", c.name, err)
	}
	return out.NumDeleted, nil
}

// Export streams out every document matching filter; an empty filter
// exports the whole collection.
func (c *Collection[T, M, PM]) Export(ctx context.Context, filter string) (_ []M, err error) {
	start := time.Now()
	defer func() { c.client.obs.observe("document.export", start, err) }()

	var q url.Values
	if filter != "" {
		q = url.Values{"filter_by": {filter}}
	}
	data, err := c.client.send(ctx, transportRequest(http.MethodGet, c.docPath("export"), q))
	if err != nil {
		return nil, fmt.Errorf("export %q: %w", c.name, err)
	}
	docs, err := decodeLines[M](data)
	if err != nil {
		return nil, fmt.Errorf("export %q: %w", c.name, err)
	}
	return docs, nil
}

// Search runs a query against the collection. Hits carry models, so
// responses restricted with include_fields decode without error.
func (c *Collection[T, M, PM]) Search(ctx context.Context, sq SearchQuery) (*SearchResult[M], error) {
	if sq.Collection == "" {
		sq.Collection = c.name
	}
	return Search[M](ctx, c.client, sq)
}

// HybridSearch embeds sq.Q with the configured Embedder and combines the
// keyword search with a nearest-neighbour search over vectorField.
func (c *Collection[T, M, PM]) HybridSearch(
	ctx context.Context, sq SearchQuery, vectorField string, k int,
) (*SearchResult[M], error) {
	if c.client.embedder == nil {
		return nil, fmt.Errorf("hybrid search: %w", ErrNoEmbedder)
	}
	res, err := c.client.embedder.Embed(ctx, sq.Q)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: embed query: %w", err)
	}
	sq.VectorQuery = VectorQuery(vectorField, res.Embedding, k)
	return c.Search(ctx, sq)
}

// Search runs sq against sq.Collection and decodes hits as M.
func Search[M any](ctx context.Context, client *Client, sq SearchQuery) (_ *SearchResult[M], err error) {
	start := time.Now()
	defer func() { client.obs.observe("document.search", start, err) }()

	if sq.Collection == "" {
		return nil, fmt.Errorf("search: %w: collection required", ErrInvalidOptions)
	}
	q, err := sq.Values()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	var out SearchResult[M]
	p := path("collections", sq.Collection, "documents", "search")
	if err := client.call(ctx, http.MethodGet, p, q, nil, &out); err != nil {
		return nil, fmt.Errorf("search %q: %w", sq.Collection, err)
	}
	return &out, nil
}

// VectorQuery renders a vector_query parameter for k nearest neighbours.
func VectorQuery(field string, vec []float32, k int) string {
	var b strings.Builder
	b.WriteString(field)
	b.WriteString(":([")
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteString("]")
	if k > 0 {
		b.WriteString(", k:")
		b.WriteString(strconv.Itoa(k))
	}
	b.WriteString(")")
	return b.String()
}
