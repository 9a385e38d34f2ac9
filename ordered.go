package typesensei

import (
	"cmp"
	"slices"
	"strings"
)

// Session hands out the insertion order shared by every node of one query
// tree. A Session is not safe for concurrent use; a query is assembled on
// one goroutine and finalized once.
type Session struct {
	next uint64
}

// NewSession returns an empty builder session.
func NewSession() *Session { return &Session{} }

// Next returns the next order value. Values are strictly increasing.
func (s *Session) Next() uint64 {
	s.next++
	return s.next
}

// OrderedState is one recorded clause: the wire field name, the rendered
// payload that follows it, and the position at which it was recorded.
// Ordering and equality consider only the position.
type OrderedState struct {
	order   uint64
	field   string
	payload string
}

// NewOrderedState records payload at the given order.
func NewOrderedState(order uint64, payload string) OrderedState {
	return OrderedState{order: order, payload: payload}
}

// WithField returns a copy attributed to the given field name.
func (o OrderedState) WithField(name string) OrderedState {
	o.field = name
	return o
}

// Order returns the recorded position.
func (o OrderedState) Order() uint64 { return o.order }

// Field returns the wire field name, if any.
func (o OrderedState) Field() string { return o.field }

// Equal reports whether both clauses were recorded at the same position.
func (o OrderedState) Equal(other OrderedState) bool { return o.order == other.order }

// Compare orders clauses by position.
func (o OrderedState) Compare(other OrderedState) int { return cmp.Compare(o.order, other.order) }

func (o OrderedState) String() string { return o.field + o.payload }

// joinOrdered sorts states by position and joins their renderings.
func joinOrdered(states []OrderedState, sep string) string {
	if len(states) == 0 {
		return ""
	}
	sorted := slices.Clone(states)
	slices.SortStableFunc(sorted, OrderedState.Compare)

	var b strings.Builder
	for i, s := range sorted {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(s.String())
	}
	return b.String()
}
