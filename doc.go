// Package typesensei provides a typed Go client for the Typesense search
// engine.
//
// Documents are plain Go structs. Their collection schema is derived from
// `typesense` struct tags, and typesensei-gen generates two companions per
// struct: a Model, where every field tracks whether it is set, and a
// Query, which records filter, sort and query_by clauses in call order.
//
// # Schema-first with Go generics
//
//	type Book struct {
//	    _       typesensei.Meta `typesense:"name=books"`
//	    ID      string          `typesense:"id"`
//	    Title   string          `typesense:",infix"`
//	    Year    int32           `typesense:",facet,default_sorting_field"`
//	    Stats   Stats           `typesense:",flatten"`
//	}
//
//	books, _ := typesensei.NewCollection[Book, BookModel](client, "")
//	_, _ = books.Ensure(ctx)
//	_, _ = books.Import(ctx, models, typesensei.WithAction(typesensei.ActionUpsert))
//
//	q := NewBookQuery()
//	q.Title.QueryBy()
//	q.Year.GreaterThan(1960)
//	q.Stats.Pages.SortDesc()
//	res, _ := books.Search(ctx, q.Q("dune"))
//
// # Partial documents
//
// Updates send only the fields that are set:
//
//	_, _ = books.Update(ctx, "b1", BookModel{}.WithTitle("Dune (revised)"))
//
// Build converts a model back to its document and fails with
// *MissingFieldError when a required field is not set.
//
// # Low-level API
//
//	client, _ := typesensei.New(typesensei.WithURL("http://localhost:8108"), typesensei.WithAPIKey(key))
//	client.Collections().Create(ctx, schema.New("books").String("title").MustBuild())
//	res, _ := typesensei.Search[map[string]any](ctx, client, typesensei.SearchQuery{Collection: "books", Q: "dune"})
package typesensei
