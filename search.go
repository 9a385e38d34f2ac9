package typesensei

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/schema"
)

// SearchQuery holds the parameters of a document search. Empty values are
// not sent.
type SearchQuery struct {
	Collection string `schema:"-"`

	Q        string `schema:"q"`
	QueryBy  string `schema:"query_by,omitempty"`
	SortBy   string `schema:"sort_by,omitempty"`
	FilterBy string `schema:"filter_by,omitempty"`
	Page     int    `schema:"page,omitempty"`
	PerPage  int    `schema:"per_page,omitempty"`

	FacetBy       string `schema:"facet_by,omitempty"`
	IncludeFields string `schema:"include_fields,omitempty"`
	ExcludeFields string `schema:"exclude_fields,omitempty"`
	VectorQuery   string `schema:"vector_query,omitempty"`
	Prefix        string `schema:"prefix,omitempty"`
}

// WithPage returns a copy requesting the given result page.
func (q SearchQuery) WithPage(page int) SearchQuery {
	q.Page = page
	return q
}

// WithPerPage returns a copy with the given page size.
func (q SearchQuery) WithPerPage(n int) SearchQuery {
	q.PerPage = n
	return q
}

// WithCollection returns a copy targeting the named collection.
func (q SearchQuery) WithCollection(name string) SearchQuery {
	q.Collection = name
	return q
}

// WithQueryBy returns a copy with query_by replaced. Useful for raw
// queries built without a generated query type.
func (q SearchQuery) WithQueryBy(fields string) SearchQuery {
	q.QueryBy = fields
	return q
}

// WithFacetBy returns a copy faceting on the given comma-separated fields.
func (q SearchQuery) WithFacetBy(fields string) SearchQuery {
	q.FacetBy = fields
	return q
}

// WithIncludeFields returns a copy that limits returned document fields.
func (q SearchQuery) WithIncludeFields(fields string) SearchQuery {
	q.IncludeFields = fields
	return q
}

// WithExcludeFields returns a copy that drops document fields from hits.
func (q SearchQuery) WithExcludeFields(fields string) SearchQuery {
	q.ExcludeFields = fields
	return q
}

// WithPrefix returns a copy that sets prefix matching per query_by field,
// in query_by order. The last flag applies to any remaining fields.
func (q SearchQuery) WithPrefix(flags ...bool) SearchQuery {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = strconv.FormatBool(f)
	}
	q.Prefix = strings.Join(parts, ",")
	return q
}

var queryEncoder = schema.NewEncoder()

// Values encodes the query as URL parameters.
func (q SearchQuery) Values() (url.Values, error) {
	v := url.Values{}
	if err := queryEncoder.Encode(q, v); err != nil {
		return nil, fmt.Errorf("encode search query: %w", err)
	}
	return v, nil
}

// SearchResult is a page of search hits with documents decoded as M.
type SearchResult[M any] struct {
	Found        int           `json:"found"`
	OutOf        int           `json:"out_of"`
	Page         int           `json:"page"`
	SearchTimeMS int           `json:"search_time_ms"`
	Hits         []Hit[M]      `json:"hits"`
	FacetCounts  []FacetCounts `json:"facet_counts,omitempty"`
}

// Hit is one matching document.
type Hit[M any] struct {
	Document       M           `json:"document"`
	Highlights     []Highlight `json:"highlights,omitempty"`
	TextMatch      int64       `json:"text_match,omitempty"`
	VectorDistance float64     `json:"vector_distance,omitempty"`
}

// Highlight marks matched tokens of a field.
type Highlight struct {
	Field         string   `json:"field"`
	Snippet       string   `json:"snippet,omitempty"`
	MatchedTokens []string `json:"matched_tokens,omitempty"`
}

// FacetCounts lists value counts of a faceted field.
type FacetCounts struct {
	FieldName string       `json:"field_name"`
	Counts    []FacetCount `json:"counts"`
}

// FacetCount is the number of hits carrying one facet value.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}
