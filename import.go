package typesensei

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/typesensei/transport"
)

// ImportAction selects how imported documents are written.
type ImportAction string

// Import actions.
const (
	ActionCreate  ImportAction = "create"
	ActionUpsert  ImportAction = "upsert"
	ActionUpdate  ImportAction = "update"
	ActionEmplace ImportAction = "emplace"
)

// DirtyValues selects how values not matching the schema type are handled.
type DirtyValues string

// Dirty value policies.
const (
	DirtyCoerceOrReject DirtyValues = "coerce_or_reject"
	DirtyCoerceOrDrop   DirtyValues = "coerce_or_drop"
	DirtyDrop           DirtyValues = "drop"
	DirtyReject         DirtyValues = "reject"
)

const maxLineSize = 16 << 20

// ImportResult is the outcome for one imported document.
type ImportResult struct {
	Success  bool            `json:"success"`
	Error    string          `json:"error,omitempty"`
	Document json.RawMessage `json:"document,omitempty"`
}

type importParams struct {
	Action      ImportAction `schema:"action,omitempty"`
	DirtyValues DirtyValues  `schema:"dirty_values,omitempty"`
	BatchSize   int          `schema:"batch_size,omitempty"`
	ReturnDoc   bool         `schema:"return_doc,omitempty"`
}

type importConfig struct {
	params    importParams
	workers   int
	chunkSize int
}

// ImportOption configures Import.
type ImportOption func(*importConfig)

// WithAction sets the import action. Default: create.
func WithAction(a ImportAction) ImportOption {
	return func(c *importConfig) { c.params.Action = a }
}

// WithDirtyValues sets the policy for values that do not match the schema.
func WithDirtyValues(d DirtyValues) ImportOption {
	return func(c *importConfig) { c.params.DirtyValues = d }
}

// WithBatchSize sets how many documents the server processes per batch.
func WithBatchSize(n int) ImportOption {
	return func(c *importConfig) { c.params.BatchSize = n }
}

// WithReturnDoc asks the server to echo each document in its result.
func WithReturnDoc() ImportOption {
	return func(c *importConfig) { c.params.ReturnDoc = true }
}

// WithImportConcurrency splits the batch into chunks of chunkSize imported
// by up to workers concurrent requests. Results keep input order.
func WithImportConcurrency(workers, chunkSize int) ImportOption {
	return func(c *importConfig) {
		c.workers = workers
		c.chunkSize = chunkSize
	}
}

// Import writes docs through the bulk import endpoint. The returned slice
// has one result per document. When some documents are rejected the
// results are returned together with an *ImportError listing them.
func (c *Collection[T, M, PM]) Import(ctx context.Context, docs []M, opts ...ImportOption) (_ []ImportResult, err error) {
	start := time.Now()
	defer func() { c.client.obs.observe("document.import", start, err) }()

	cfg := importConfig{params: importParams{Action: ActionCreate}}
	for _, o := range opts {
		o(&cfg)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	query := url.Values{}
	if err := queryEncoder.Encode(cfg.params, query); err != nil {
		return nil, fmt.Errorf("import: encode parameters: %w", err)
	}

	results := make([]ImportResult, len(docs))
	if cfg.workers <= 1 || cfg.chunkSize <= 0 || cfg.chunkSize >= len(docs) {
		err = c.importChunk(ctx, docs, query, results)
	} else {
		err = c.importConcurrent(ctx, docs, query, results, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("import into %q: %w", c.name, err)
	}

	var failures []ImportFailure
	for i, r := range results {
		if !r.Success {
			failures = append(failures, ImportFailure{Index: i, Message: r.Error, Document: documentText(r.Document)})
		}
	}
	c.client.obs.imported(c.name, len(docs)-len(failures), len(failures))
	if len(failures) > 0 {
		return results, &ImportError{Action: cfg.params.Action, Failures: failures}
	}
	return results, nil
}

func (c *Collection[T, M, PM]) importConcurrent(
	ctx context.Context, docs []M, query url.Values, results []ImportResult, cfg importConfig,
) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	pool, err := ants.NewPool(cfg.workers, ants.WithPanicHandler(func(p any) {
		fail(fmt.Errorf("import worker panic: %v", p))
		if c.client.obs.logger != nil {
			c.client.obs.logger.Error("import worker panic", zap.Any("panic", p))
		}
	}))
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	for lo := 0; lo < len(docs); lo += cfg.chunkSize {
		hi := min(lo+cfg.chunkSize, len(docs))
		wg.Add(1)
		// A panicking task still releases the group.
		task := func() {
			defer wg.Done()
			if err := c.importChunk(ctx, docs[lo:hi], query, results[lo:hi]); err != nil {
				fail(fmt.Errorf("documents %d-%d: %w", lo, hi-1, err))
			}
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			fail(fmt.Errorf("submit chunk: %w", err))
			break
		}
	}
	wg.Wait()
	return firstErr
}

// importChunk sends one ndjson request and fills results, which must have
// the same length as docs.
func (c *Collection[T, M, PM]) importChunk(ctx context.Context, docs []M, query url.Values, results []ImportResult) error {
	body, err := encodeLines(docs)
	if err != nil {
		return err
	}
	req := transportRequest(http.MethodPost, c.docPath("import"), query)
	req.Body = body
	req.ContentType = "text/plain"

	data, err := c.client.send(ctx, req)
	if err != nil {
		return err
	}
	lines, err := decodeLines[ImportResult](data)
	if err != nil {
		return err
	}
	if len(lines) != len(docs) {
		return fmt.Errorf("got %d result lines for %d documents", len(lines), len(docs))
	}
	copy(results, lines)
	return nil
}

// encodeLines renders docs as newline-delimited JSON.
func encodeLines[M any](docs []M) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range docs {
		// Encode terminates every document with '\n'.
		if err := enc.Encode(docs[i]); err != nil {
			return nil, newEncodeError(docs[i], err)
		}
	}
	return buf.Bytes(), nil
}

// decodeLines parses newline-delimited JSON, skipping blank lines.
func decodeLines[V any](data []byte) ([]V, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	var out []V
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var v V
		if err := json.Unmarshal(text, &v); err != nil {
			return nil, &DecodeLineError{Line: line, Text: string(text), Err: err}
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &DecodeLineError{Line: line + 1, Err: err}
		}
		return nil, err
	}
	return out, nil
}

// documentText unwraps an echoed document, which Typesense sends either as
// a JSON string holding the original line or as an object.
func documentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func transportRequest(method string, p []string, q url.Values) transport.Request {
	return transport.Request{Method: method, Path: p, Query: q}
}
