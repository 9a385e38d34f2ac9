package typesensei

import (
	"encoding/json"
	"testing"
)

func TestSearchQuery_Values(t *testing.T) {
	sq := SearchQuery{Collection: "books", Q: "dune", QueryBy: "title", FilterBy: "year:>1960"}.
		WithPage(2).
		WithPerPage(10).
		WithFacetBy("authors")

	v, err := sq.Values()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{
		"q": "dune", "query_by": "title", "filter_by": "year:>1960",
		"page": "2", "per_page": "10", "facet_by": "authors",
	}
	for k, w := range want {
		if got := v.Get(k); got != w {
			t.Errorf("%s = %q, want %q", k, got, w)
		}
	}
	for _, k := range []string{"sort_by", "include_fields", "exclude_fields", "vector_query", "prefix", "Collection"} {
		if v.Has(k) {
			t.Errorf("%s should not be sent, got %q", k, v.Get(k))
		}
	}
	if len(v) != len(want) {
		t.Errorf("values = %v, want %d keys", v, len(want))
	}
}

func TestSearchQuery_Prefix(t *testing.T) {
	sq := SearchQuery{Q: "dun", QueryBy: "title,authors"}.WithPrefix(true, false)
	v, err := sq.Values()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := v.Get("prefix"); got != "true,false" {
		t.Errorf("prefix = %q, want true,false", got)
	}
	if got := sq.WithPrefix().Prefix; got != "" {
		t.Errorf("WithPrefix() = %q, want empty", got)
	}
}

func TestSearchQuery_Setters(t *testing.T) {
	base := SearchQuery{Q: "x"}
	sq := base.WithCollection("c").WithQueryBy("a,b").WithIncludeFields("a").WithExcludeFields("b")
	if sq.Collection != "c" || sq.QueryBy != "a,b" || sq.IncludeFields != "a" || sq.ExcludeFields != "b" {
		t.Errorf("setters = %+v", sq)
	}
	if base.Collection != "" {
		t.Error("setters must not modify the receiver")
	}
}

func TestVectorQuery(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
		k    int
		want string
	}{
		{"with k", []float32{0.5, -1, 2.25}, 10, "embedding:([0.5,-1,2.25], k:10)"},
		{"without k", []float32{1}, 0, "embedding:([1])"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VectorQuery("embedding", tt.vec, tt.k); got != tt.want {
				t.Errorf("VectorQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchResult_Decode(t *testing.T) {
	raw := `{"found":2,"out_of":10,"page":1,"search_time_ms":3,
		"hits":[{"document":{"name":"a"},"text_match":100,"highlights":[{"field":"name","snippet":"<mark>a</mark>"}]},
		        {"document":{},"vector_distance":0.25}],
		"facet_counts":[{"field_name":"tag","counts":[{"value":"x","count":2}]}]}`

	var res SearchResult[fieldDoc]
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Found != 2 || res.OutOf != 10 || len(res.Hits) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if name := res.Hits[0].Document.Name.Get(); name != "a" {
		t.Errorf("hit[0].name = %q, want a", name)
	}
	if res.Hits[1].Document.Name.IsSet() {
		t.Error("hit[1].name should be NotSet")
	}
	if res.Hits[1].VectorDistance != 0.25 {
		t.Errorf("vector_distance = %v", res.Hits[1].VectorDistance)
	}
	if len(res.FacetCounts) != 1 || res.FacetCounts[0].Counts[0].Count != 2 {
		t.Errorf("facet_counts = %+v", res.FacetCounts)
	}
}
