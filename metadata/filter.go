package metadata

import (
	"fmt"
	"strings"
)

// Operator represents a comparison operator for filtering.
type Operator string

const (
	// OpEqual represents the equality operator.
	OpEqual Operator = "eq"
	// OpNotEqual represents the inequality operator.
	OpNotEqual Operator = "ne"
	// OpGreaterThan represents the greater than operator.
	OpGreaterThan Operator = "gt"
	// OpGreaterEqual represents the greater than or equal operator.
	OpGreaterEqual Operator = "gte"
	// OpLessThan represents the less than operator.
	OpLessThan Operator = "lt"
	// OpLessEqual represents the less than or equal operator.
	OpLessEqual Operator = "lte"
	// OpIn represents the in list operator.
	OpIn Operator = "in"
	// OpContains represents the contains substring operator.
	OpContains Operator = "contains"
)

// Filter represents a single metadata filter condition.
type Filter struct {
	Key      string
	Operator Operator
	Value    Value
}

// FilterSet represents a set of filters that must all match (AND logic).
type FilterSet struct {
	Filters []Filter
}

// NewFilterSet creates a new filter set.
func NewFilterSet(filters ...Filter) *FilterSet {
	return &FilterSet{Filters: filters}
}

// Eq returns a Filter matching records whose key equals v.
func Eq(key string, v Value) Filter { return Filter{Key: key, Operator: OpEqual, Value: v} }

// Gt returns a Filter matching records whose key is greater than v.
func Gt(key string, v Value) Filter { return Filter{Key: key, Operator: OpGreaterThan, Value: v} }

// Gte returns a Filter matching records whose key is at least v.
func Gte(key string, v Value) Filter { return Filter{Key: key, Operator: OpGreaterEqual, Value: v} }

// Lt returns a Filter matching records whose key is less than v.
func Lt(key string, v Value) Filter { return Filter{Key: key, Operator: OpLessThan, Value: v} }

// Lte returns a Filter matching records whose key is at most v.
func Lte(key string, v Value) Filter { return Filter{Key: key, Operator: OpLessEqual, Value: v} }

// In returns a Filter matching records whose key equals one of vs.
func In(key string, vs ...Value) Filter { return Filter{Key: key, Operator: OpIn, Value: Array(vs)} }

// Matches checks if the provided record matches this filter.
func (f *Filter) Matches(rec Record) bool {
	value, exists := rec[f.Key]
	if !exists {
		return false
	}

	switch f.Operator {
	case OpEqual:
		return compareEqual(value, f.Value)
	case OpNotEqual:
		return !compareEqual(value, f.Value)
	case OpGreaterThan:
		return compareGreater(value, f.Value)
	case OpGreaterEqual:
		return compareGreater(value, f.Value) || compareEqual(value, f.Value)
	case OpLessThan:
		return compareLess(value, f.Value)
	case OpLessEqual:
		return compareLess(value, f.Value) || compareEqual(value, f.Value)
	case OpIn:
		return compareIn(value, f.Value)
	case OpContains:
		return compareContains(value, f.Value)
	default:
		return false
	}
}

// Matches checks if the provided record matches all filters in the set.
// A nil or empty set matches every record.
func (fs *FilterSet) Matches(rec Record) bool {
	if fs == nil {
		return true
	}
	for _, filter := range fs.Filters {
		if !filter.Matches(rec) {
			return false
		}
	}
	return true
}

// exprOperators is ordered so that two-character operators win over their
// one-character prefixes.
var exprOperators = []struct {
	token string
	op    Operator
}{
	{"==", OpEqual},
	{"!=", OpNotEqual},
	{">=", OpGreaterEqual},
	{"<=", OpLessEqual},
	{"~=", OpContains},
	{">", OpGreaterThan},
	{"<", OpLessThan},
	{"=", OpEqual},
}

// ParseFilter parses a compact expression such as `exp_time>=5`,
// `label=="dark"` or `label~=dark`. The right-hand side is read as JSON and
// falls back to a bare string.
func ParseFilter(expr string) (Filter, error) {
	bestAt, bestLen := -1, 0
	var bestOp Operator
	for _, cand := range exprOperators {
		at := strings.Index(expr, cand.token)
		if at < 0 {
			continue
		}
		if bestAt < 0 || at < bestAt || (at == bestAt && len(cand.token) > bestLen) {
			bestAt, bestLen, bestOp = at, len(cand.token), cand.op
		}
	}
	if bestAt <= 0 {
		return Filter{}, fmt.Errorf("invalid filter expression %q", expr)
	}

	key := strings.TrimSpace(expr[:bestAt])
	raw := strings.TrimSpace(expr[bestAt+bestLen:])

	var v Value
	if err := v.UnmarshalJSON([]byte(raw)); err != nil {
		v = String(raw)
	}
	return Filter{Key: key, Operator: bestOp, Value: v}, nil
}

func compareEqual(a, b Value) bool {
	if a.Kind == KindNull && b.Kind == KindNull {
		return true
	}
	if a.Kind == KindNull || b.Kind == KindNull {
		return false
	}

	if isNumber(a) && isNumber(b) {
		// Prefer exact int compare when possible.
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.I64 == b.I64
		}
		return asFloat64(a) == asFloat64(b)
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindString:
		return a.s == b.s
	case KindBool:
		return a.B == b.B
	case KindArray:
		if len(a.A) != len(b.A) {
			return false
		}
		for i := range a.A {
			if !compareEqual(a.A[i], b.A[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func compareGreater(a, b Value) bool {
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		return a.I64 > b.I64
	}
	return asFloat64(a) > asFloat64(b)
}

func compareLess(a, b Value) bool {
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		return a.I64 < b.I64
	}
	return asFloat64(a) < asFloat64(b)
}

func compareIn(a, b Value) bool {
	if b.Kind != KindArray {
		return false
	}
	for _, item := range b.A {
		if compareEqual(a, item) {
			return true
		}
	}
	return false
}

func compareContains(a, b Value) bool {
	if a.Kind != KindString || b.Kind != KindString {
		return false
	}
	return strings.Contains(a.s.Value(), b.s.Value())
}

func isNumber(v Value) bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

func asFloat64(v Value) float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I64)
	case KindFloat:
		return v.F64
	default:
		return 0
	}
}
