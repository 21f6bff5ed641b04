package backend

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Cond is a single filter condition or a boolean combination of them,
// rendered in the row-filter grammar the backend evaluates server-side.
type Cond struct {
	expr string
}

// Eq matches rows where column equals value.
func Eq(column, value string) Cond {
	return Cond{expr: fmt.Sprintf("%s.eq.%s", column, value)}
}

// And combines conditions conjunctively.
func And(conds ...Cond) Cond {
	return Cond{expr: "and(" + joinConds(conds) + ")"}
}

// Or combines conditions disjunctively.
func Or(conds ...Cond) Cond {
	return Cond{expr: "or(" + joinConds(conds) + ")"}
}

func joinConds(conds []Cond) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.expr
	}
	return strings.Join(parts, ",")
}

// PairFilter builds the symmetric participant filter used by the message
// feed: rows where (sender=a AND receiver=b) OR (sender=b AND receiver=a).
func PairFilter(a, b string) Cond {
	return Or(
		And(Eq("sender_id", a), Eq("receiver_id", b)),
		And(Eq("sender_id", b), Eq("receiver_id", a)),
	)
}

// Query accumulates the parameters of one table read.
type Query struct {
	filters    []string
	topLevel   []string // rendered as column=op.value pairs
	order      string
	limit      int
	onConflict string
}

// NewQuery creates an empty query.
func NewQuery() *Query {
	return &Query{}
}

// Where adds a top-level boolean condition. An Or/And condition renders as
// an or=(...) / and=(...) parameter; a bare Eq renders as column=eq.value.
func (q *Query) Where(c Cond) *Query {
	if strings.HasPrefix(c.expr, "or(") {
		q.filters = append(q.filters, "or="+strings.TrimPrefix(c.expr, "or"))
	} else if strings.HasPrefix(c.expr, "and(") {
		q.filters = append(q.filters, "and="+strings.TrimPrefix(c.expr, "and"))
	} else {
		idx := strings.Index(c.expr, ".")
		q.topLevel = append(q.topLevel, c.expr[:idx]+"="+c.expr[idx+1:])
	}
	return q
}

// OrderAsc sorts results by column ascending.
func (q *Query) OrderAsc(column string) *Query {
	q.order = column + ".asc"
	return q
}

// OrderDesc sorts results by column descending.
func (q *Query) OrderDesc(column string) *Query {
	q.order = column + ".desc"
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// OnConflict names the uniqueness columns for upsert writes.
func (q *Query) OnConflict(columns string) *Query {
	q.onConflict = columns
	return q
}

// Encode renders the query string, filters first for stable output.
func (q *Query) Encode() string {
	var parts []string
	parts = append(parts, q.topLevel...)
	parts = append(parts, q.filters...)
	if q.order != "" {
		parts = append(parts, "order="+url.QueryEscape(q.order))
	}
	if q.limit > 0 {
		parts = append(parts, "limit="+strconv.Itoa(q.limit))
	}
	if q.onConflict != "" {
		parts = append(parts, "on_conflict="+url.QueryEscape(q.onConflict))
	}
	return strings.Join(parts, "&")
}

// FilterExpr renders a condition in the form the realtime feed accepts as
// its server-evaluated subscription filter.
func FilterExpr(c Cond) string {
	return c.expr
}
