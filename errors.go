package typesensei

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/typesensei/transport"
)

// Sentinel errors. Use errors.Is() to check.
var (
	ErrNotFound      = transport.ErrNotFound
	ErrAlreadyExists = transport.ErrAlreadyExists
	ErrUnauthorized  = transport.ErrUnauthorized
	ErrBadRequest    = transport.ErrBadRequest
	ErrUnavailable   = transport.ErrUnavailable

	ErrMissingField   = errors.New("typesensei: missing field in partial object")
	ErrMissingAPIKey  = errors.New("typesensei: api key required")
	ErrNoNodes        = errors.New("typesensei: at least one node required")
	ErrNoEmbedder     = errors.New("typesensei: embedder not configured")
	ErrInvalidOptions = errors.New("typesensei: invalid options")
)

// APIError is a non-2xx response from Typesense.
type APIError = transport.Error

// EncodeError reports a document that could not be encoded.
type EncodeError struct {
	Document string // %+v rendering of the offending value
	Err      error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode document %s: %v", e.Document, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

func newEncodeError(doc any, err error) *EncodeError {
	return &EncodeError{Document: fmt.Sprintf("%+v", doc), Err: err}
}

// DecodeLineError reports a response line that could not be decoded.
type DecodeLineError struct {
	Line int
	Text string
	Err  error
}

func (e *DecodeLineError) Error() string {
	return fmt.Sprintf("decode line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *DecodeLineError) Unwrap() error { return e.Err }

// ImportFailure is one rejected document of a batch import.
type ImportFailure struct {
	Index    int    // position in the submitted batch
	Message  string // server-side reason
	Document string // echoed document, when requested with return_doc
}

// ImportError lists the documents Typesense rejected during an import.
// Documents not listed were accepted.
type ImportError struct {
	Action   ImportAction
	Failures []ImportFailure
}

func (e *ImportError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("#%d: %s", f.Index, f.Message))
	}
	return fmt.Sprintf("import %s: %d documents failed: %s", e.Action, len(e.Failures), strings.Join(parts, "; "))
}
