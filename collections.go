package typesensei

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kailas-cloud/typesensei/schema"
)

// CollectionInfo is a collection as reported by the server.
type CollectionInfo struct {
	schema.Collection
	NumDocuments int64 `json:"num_documents"`
	CreatedAt    int64 `json:"created_at"`
}

// CollectionService manages collections.
type CollectionService struct {
	client *Client
}

// Create creates a collection from a schema. The schema is validated
// before it is sent.
func (s *CollectionService) Create(ctx context.Context, c schema.Collection) (_ CollectionInfo, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("collection.create", start, err) }()

	if err := c.Validate(); err != nil {
		return CollectionInfo{}, fmt.Errorf("create collection: %w", err)
	}
	var info CollectionInfo
	if err := s.client.call(ctx, http.MethodPost, path("collections"), nil, c, &info); err != nil {
		return CollectionInfo{}, fmt.Errorf("create collection %q: %w", c.Name, err)
	}
	return info, nil
}

// Ensure creates a collection if it does not exist.
// If it already exists, returns its info.
func (s *CollectionService) Ensure(ctx context.Context, c schema.Collection) (_ CollectionInfo, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("collection.ensure", start, err) }()

	info, err := s.Create(ctx, c)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, ErrAlreadyExists) {
		return CollectionInfo{}, fmt.Errorf("ensure collection: %w", err)
	}
	existing, err := s.Retrieve(ctx, c.Name)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("ensure collection: %w", err)
	}
	return existing, nil
}

// Retrieve returns collection metadata by name.
func (s *CollectionService) Retrieve(ctx context.Context, name string) (_ CollectionInfo, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("collection.retrieve", start, err) }()

	var info CollectionInfo
	if err := s.client.call(ctx, http.MethodGet, path("collections", name), nil, nil, &info); err != nil {
		return CollectionInfo{}, fmt.Errorf("retrieve collection %q: %w", name, err)
	}
	return info, nil
}

// List returns every collection.
func (s *CollectionService) List(ctx context.Context) (_ []CollectionInfo, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("collection.list", start, err) }()

	var infos []CollectionInfo
	if err := s.client.call(ctx, http.MethodGet, path("collections"), nil, nil, &infos); err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return infos, nil
}

// Update adds and drops fields of an existing collection.
func (s *CollectionService) Update(
	ctx context.Context, name string, u schema.Update,
) (_ schema.Update, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("collection.update", start, err) }()

	var out schema.Update
	if err := s.client.call(ctx, http.MethodPatch, path("collections", name), nil, u, &out); err != nil {
		return schema.Update{}, fmt.Errorf("update collection %q: %w", name, err)
	}
	return out, nil
}

// Delete drops a collection with all its documents.
func (s *CollectionService) Delete(ctx context.Context, name string) (_ CollectionInfo, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("collection.delete", start, err) }()

	var info CollectionInfo
	if err := s.client.call(ctx, http.MethodDelete, path("collections", name), nil, nil, &info); err != nil {
		return CollectionInfo{}, fmt.Errorf("delete collection %q: %w", name, err)
	}
	return info, nil
}

// Alias points a stable name at a collection.
type Alias struct {
	Name           string `json:"name"`
	CollectionName string `json:"collection_name"`
}

// AliasService manages collection aliases.
type AliasService struct {
	client *Client
}

// Upsert creates or repoints an alias.
func (s *AliasService) Upsert(ctx context.Context, alias, collection string) (_ Alias, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("alias.upsert", start, err) }()

	body := struct {
		CollectionName string `json:"collection_name"`
	}{collection}
	var out Alias
	if err := s.client.call(ctx, http.MethodPut, path("aliases", alias), nil, body, &out); err != nil {
		return Alias{}, fmt.Errorf("upsert alias %q: %w", alias, err)
	}
	return out, nil
}

// Retrieve returns an alias by name.
func (s *AliasService) Retrieve(ctx context.Context, alias string) (_ Alias, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("alias.retrieve", start, err) }()

	var out Alias
	if err := s.client.call(ctx, http.MethodGet, path("aliases", alias), nil, nil, &out); err != nil {
		return Alias{}, fmt.Errorf("retrieve alias %q: %w", alias, err)
	}
	return out, nil
}

// List returns every alias.
func (s *AliasService) List(ctx context.Context) (_ []Alias, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("alias.list", start, err) }()

	var out struct {
		Aliases []Alias `json:"aliases"`
	}
	if err := s.client.call(ctx, http.MethodGet, path("aliases"), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	return out.Aliases, nil
}

// Delete removes an alias. The target collection is kept.
func (s *AliasService) Delete(ctx context.Context, alias string) (_ Alias, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("alias.delete", start, err) }()

	var out Alias
	if err := s.client.call(ctx, http.MethodDelete, path("aliases", alias), nil, nil, &out); err != nil {
		return Alias{}, fmt.Errorf("delete alias %q: %w", alias, err)
	}
	return out, nil
}
