package graphstore

import (
	"fmt"
	"time"
)

// Properties holds vertex or edge attributes. Values are normalized to
// string, int64, float64 or bool before they reach a backend.
type Properties map[string]any

// Clone returns a shallow copy.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the string value stored under key, or "".
func (p Properties) String(key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

// Bool returns the bool value stored under key, or false.
func (p Properties) Bool(key string) bool {
	if b, ok := p[key].(bool); ok {
		return b
	}
	return false
}

// Int returns the value under key as int64. Floats are truncated.
func (p Properties) Int(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Float returns the value under key as float64.
func (p Properties) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// Time decodes a value written by Normalize from a time.Time.
func (p Properties) Time(key string) (time.Time, bool) {
	n, ok := p.Int(key)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, n).UTC(), true
}

// Normalize converts a Go value into one of the stored property kinds.
// Times are stored as Unix nanoseconds; a zero time is treated as absent.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case bool:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case time.Time:
		if x.IsZero() {
			return nil, nil
		}
		return x.UTC().UnixNano(), nil
	case *time.Time:
		if x == nil || x.IsZero() {
			return nil, nil
		}
		return x.UTC().UnixNano(), nil
	}
	return nil, fmt.Errorf("graphstore: unsupported property type %T", v)
}

// NormalizeAll normalizes every value and drops nil entries.
func NormalizeAll(props Properties) (Properties, error) {
	out := make(Properties, len(props))
	for k, v := range props {
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		if n != nil {
			out[k] = n
		}
	}
	return out, nil
}

// Op is a filter comparison.
type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// Filter restricts a query to elements whose property Key compares to Value with Op.
// Elements without the property never match.
type Filter struct {
	Key   string
	Op    Op
	Value any
}

func Eq(key string, value any) Filter  { return Filter{Key: key, Op: OpEq, Value: value} }
func Gt(key string, value any) Filter  { return Filter{Key: key, Op: OpGt, Value: value} }
func Gte(key string, value any) Filter { return Filter{Key: key, Op: OpGte, Value: value} }
func Lt(key string, value any) Filter  { return Filter{Key: key, Op: OpLt, Value: value} }
func Lte(key string, value any) Filter { return Filter{Key: key, Op: OpLte, Value: value} }

// NormalizeFilters returns a copy of filters with normalized values.
func NormalizeFilters(filters []Filter) ([]Filter, error) {
	out := make([]Filter, len(filters))
	for i, f := range filters {
		switch f.Op {
		case OpEq, OpGt, OpGte, OpLt, OpLte:
		default:
			return nil, fmt.Errorf("graphstore: unknown filter op %q", f.Op)
		}
		v, err := Normalize(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", f.Key, err)
		}
		if v == nil {
			return nil, fmt.Errorf("graphstore: filter %q has nil value", f.Key)
		}
		out[i] = Filter{Key: f.Key, Op: f.Op, Value: v}
	}
	return out, nil
}

// Matches reports whether props satisfies every (normalized) filter.
func Matches(props Properties, filters []Filter) bool {
	for _, f := range filters {
		v, ok := props[f.Key]
		if !ok {
			return false
		}
		c, ok := compare(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEq:
			if c != 0 {
				return false
			}
		case OpGt:
			if c <= 0 {
				return false
			}
		case OpGte:
			if c < 0 {
				return false
			}
		case OpLt:
			if c >= 0 {
				return false
			}
		case OpLte:
			if c > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compare orders two normalized values. Numbers compare across int64/float64;
// other kinds only compare with the same kind.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if x == y {
			return 0, true
		}
		if !x {
			return -1, true
		}
		return 1, true
	case int64:
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, y), true
		}
		if y, ok := b.(float64); ok {
			return cmpOrdered(float64(x), y), true
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmpOrdered(x, y), true
		}
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, float64(y)), true
		}
	}
	return 0, false
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
