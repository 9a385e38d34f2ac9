package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors matched by (*Error).Is. Use errors.Is() to check.
var (
	ErrNotFound      = errors.New("typesense: not found")
	ErrAlreadyExists = errors.New("typesense: already exists")
	ErrUnauthorized  = errors.New("typesense: unauthorized")
	ErrBadRequest    = errors.New("typesense: bad request")
	ErrUnavailable   = errors.New("typesense: service unavailable")
)

// Error is a non-2xx response. Message is taken from the server's
// `{"message": "..."}` body when present.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("typesense: status %d", e.Status)
	}
	return fmt.Sprintf("typesense: status %d: %s", e.Status, e.Message)
}

// Is maps the status code onto the sentinel errors.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrAlreadyExists:
		return e.Status == http.StatusConflict
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrBadRequest:
		return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
	case ErrUnavailable:
		return e.Status >= http.StatusInternalServerError
	}
	return false
}
