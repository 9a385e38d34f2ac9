package typesensei

import (
	"fmt"
	"strings"
)

// QueryNode is implemented by every part of a query tree: single field
// states, raw clause buffers and generated query types.
type QueryNode interface {
	// Bind attaches the node to a session. For a field state name is the
	// full wire name; for composite nodes it is the prefix of their fields.
	Bind(s *Session, name string)
	// Collect appends the node's recorded clauses to c.
	Collect(c *Clauses)
}

// Clauses accumulates recorded clauses of a query tree per category.
type Clauses struct {
	QueryBy  []OrderedState
	SortBy   []OrderedState
	FilterBy []OrderedState
}

// QueryState records search clauses for one field. Each field may
// contribute any number of filter clauses and at most one query_by and one
// sort_by clause.
type QueryState[T any] struct {
	session *Session
	name    string

	filters []OrderedState
	queryBy *OrderedState
	sortBy  *OrderedState
}

// Bind attaches the state to s under the given wire name.
func (q *QueryState[T]) Bind(s *Session, name string) {
	q.session = s
	q.name = name
}

// Name returns the bound wire name.
func (q *QueryState[T]) Name() string { return q.name }

func (q *QueryState[T]) record(payload string) OrderedState {
	if q.session == nil {
		panic("typesensei: query state used before Bind")
	}
	return NewOrderedState(q.session.Next(), payload).WithField(q.name)
}

func (q *QueryState[T]) filter(op string, v any) *QueryState[T] {
	q.filters = append(q.filters, q.record(":"+op+fmt.Sprint(v)))
	return q
}

// Equals adds `name:=v`.
func (q *QueryState[T]) Equals(v T) *QueryState[T] { return q.filter("=", v) }

// NotEquals adds `name:!=v`.
func (q *QueryState[T]) NotEquals(v T) *QueryState[T] { return q.filter("!=", v) }

// LessThan adds `name:<v`.
func (q *QueryState[T]) LessThan(v T) *QueryState[T] { return q.filter("<", v) }

// LessOrEquals adds `name:<=v`.
func (q *QueryState[T]) LessOrEquals(v T) *QueryState[T] { return q.filter("<=", v) }

// GreaterThan adds `name:>v`.
func (q *QueryState[T]) GreaterThan(v T) *QueryState[T] { return q.filter(">", v) }

// GreaterOrEquals adds `name:>=v`.
func (q *QueryState[T]) GreaterOrEquals(v T) *QueryState[T] { return q.filter(">=", v) }

// InRange adds `name:[lo..hi]`.
func (q *QueryState[T]) InRange(lo, hi T) *QueryState[T] {
	return q.InRangeExpr(fmt.Sprintf("%v..%v", lo, hi))
}

// InRangeExpr adds `name:[expr]` with a caller-rendered range expression.
func (q *QueryState[T]) InRangeExpr(expr string) *QueryState[T] {
	return q.filter("", "["+expr+"]")
}

// IsOneOf adds `name:[a,b,c]`.
func (q *QueryState[T]) IsOneOf(values ...T) *QueryState[T] {
	items := make([]string, len(values))
	for i, v := range values {
		items[i] = fmt.Sprint(v)
	}
	return q.InRangeExpr(strings.Join(items, ","))
}

// QueryBy includes the field in query_by. A later call replaces the
// earlier one.
func (q *QueryState[T]) QueryBy() *QueryState[T] {
	s := q.record("")
	q.queryBy = &s
	return q
}

// SortAsc sorts by the field ascending, replacing any earlier sort on it.
func (q *QueryState[T]) SortAsc() *QueryState[T] {
	s := q.record(":asc")
	q.sortBy = &s
	return q
}

// SortDesc sorts by the field descending, replacing any earlier sort on it.
func (q *QueryState[T]) SortDesc() *QueryState[T] {
	s := q.record(":desc")
	q.sortBy = &s
	return q
}

// Collect implements QueryNode.
func (q *QueryState[T]) Collect(c *Clauses) {
	if q.queryBy != nil {
		c.QueryBy = append(c.QueryBy, *q.queryBy)
	}
	if q.sortBy != nil {
		c.SortBy = append(c.SortBy, *q.sortBy)
	}
	c.FilterBy = append(c.FilterBy, q.filters...)
}

// RawQuery records free-form clauses. Generated queries use it for
// flattened dynamic fields whose names are unknown up front.
type RawQuery struct {
	session *Session
	prefix  string
	clauses Clauses
}

// Bind attaches the buffer to s. Field names passed later are prefixed.
func (r *RawQuery) Bind(s *Session, prefix string) {
	r.session = s
	r.prefix = prefix
}

func (r *RawQuery) record(field, payload string) OrderedState {
	if r.session == nil {
		panic("typesensei: raw query used before Bind")
	}
	return NewOrderedState(r.session.Next(), payload).WithField(r.prefix + field)
}

// Filter adds a filter clause such as `price:>10` for field "price".
func (r *RawQuery) Filter(field, expr string) *RawQuery {
	r.clauses.FilterBy = append(r.clauses.FilterBy, r.record(field, ":"+expr))
	return r
}

// QueryBy adds field to query_by.
func (r *RawQuery) QueryBy(field string) *RawQuery {
	r.clauses.QueryBy = append(r.clauses.QueryBy, r.record(field, ""))
	return r
}

// SortBy adds a sort clause; direction is "asc" or "desc".
func (r *RawQuery) SortBy(field, direction string) *RawQuery {
	r.clauses.SortBy = append(r.clauses.SortBy, r.record(field, ":"+direction))
	return r
}

// Collect implements QueryNode.
func (r *RawQuery) Collect(c *Clauses) {
	c.QueryBy = append(c.QueryBy, r.clauses.QueryBy...)
	c.SortBy = append(c.SortBy, r.clauses.SortBy...)
	c.FilterBy = append(c.FilterBy, r.clauses.FilterBy...)
}

// Finalize flattens every clause recorded under node into a SearchQuery
// for the free-text query q. Clauses of each category are joined in the
// order they were recorded; empty categories stay unset.
func Finalize(node QueryNode, q string) SearchQuery {
	var c Clauses
	node.Collect(&c)
	return SearchQuery{
		Q:        q,
		QueryBy:  joinOrdered(c.QueryBy, ","),
		SortBy:   joinOrdered(c.SortBy, ","),
		FilterBy: joinOrdered(c.FilterBy, "&&"),
	}
}
