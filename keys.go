package typesensei

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// KeySpec describes an API key to create.
type KeySpec struct {
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
	Collections []string `json:"collections"`
	Value       string   `json:"value,omitempty"`
	ExpiresAt   int64    `json:"expires_at,omitempty"`
}

// Key is an API key as returned by the server. Value is only present in
// the response to Create.
type Key struct {
	ID          int64    `json:"id"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
	Collections []string `json:"collections"`
	Value       string   `json:"value,omitempty"`
	ValuePrefix string   `json:"value_prefix,omitempty"`
	ExpiresAt   int64    `json:"expires_at,omitempty"`
}

// KeyService manages API keys.
type KeyService struct {
	client *Client
}

// Create creates an API key.
func (s *KeyService) Create(ctx context.Context, spec KeySpec) (_ Key, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("key.create", start, err) }()

	var out Key
	if err := s.client.call(ctx, http.MethodPost, path("keys"), nil, spec, &out); err != nil {
		return Key{}, fmt.Errorf("create key: %w", err)
	}
	return out, nil
}

// Retrieve returns key metadata by id.
func (s *KeyService) Retrieve(ctx context.Context, id int64) (_ Key, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("key.retrieve", start, err) }()

	var out Key
	if err := s.client.call(ctx, http.MethodGet, path("keys", strconv.FormatInt(id, 10)), nil, nil, &out); err != nil {
		return Key{}, fmt.Errorf("retrieve key %d: %w", id, err)
	}
	return out, nil
}

// List returns metadata of every key.
func (s *KeyService) List(ctx context.Context) (_ []Key, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("key.list", start, err) }()

	var out struct {
		Keys []Key `json:"keys"`
	}
	if err := s.client.call(ctx, http.MethodGet, path("keys"), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return out.Keys, nil
}

// Delete revokes a key and returns its id.
func (s *KeyService) Delete(ctx context.Context, id int64) (_ int64, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("key.delete", start, err) }()

	var out struct {
		ID int64 `json:"id"`
	}
	if err := s.client.call(ctx, http.MethodDelete, path("keys", strconv.FormatInt(id, 10)), nil, nil, &out); err != nil {
		return 0, fmt.Errorf("delete key %d: %w", id, err)
	}
	return out.ID, nil
}

// ScopedParams are the search parameters embedded into a scoped key.
// Searches made with the key cannot override them.
type ScopedParams struct {
	QueryBy       string `json:"query_by,omitempty"`
	FilterBy      string `json:"filter_by,omitempty"`
	ExcludeFields string `json:"exclude_fields,omitempty"`
	LimitHits     int    `json:"limit_hits,omitempty"`
	ExpiresAt     int64  `json:"expires_at"`
}

// ExpireIn returns a copy expiring d from now.
func (p ScopedParams) ExpireIn(d time.Duration) ScopedParams {
	p.ExpiresAt = time.Now().Add(d).Unix()
	return p
}

// GenerateScopedSearchKey derives a search key restricted to params from
// a parent search-only key. The derivation is local; no request is made.
func GenerateScopedSearchKey(searchKey string, params ScopedParams) (string, error) {
	if len(searchKey) < 4 {
		return "", fmt.Errorf("generate scoped key: %w", ErrMissingAPIKey)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("generate scoped key: %w", newEncodeError(params, err))
	}

	mac := hmac.New(sha256.New, []byte(searchKey))
	mac.Write(raw)
	digest := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	scoped := digest + searchKey[:4] + string(raw)
	return base64.StdEncoding.EncodeToString([]byte(scoped)), nil
}
