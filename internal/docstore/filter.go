package docstore

import (
	"strings"
)

type filterOp int

const (
	opAll filterOp = iota
	opExists
	opIsArray
	opNotArray
	opEq
	opContains
	opMatch
	opAnd
	opOr
)

// Filter is a backend-neutral predicate over a document's fields. Each
// adapter translates it to its native query language; Matches evaluates it
// in process.
type Filter struct {
	op       filterOp
	field    string
	value    any
	children []Filter
}

func All() Filter { return Filter{op: opAll} }

// Exists matches documents where the top-level key is present, even when its
// value is null.
func Exists(field string) Filter { return Filter{op: opExists, field: field} }

func IsArray(field string) Filter { return Filter{op: opIsArray, field: field} }

// NotArray matches documents where the field is missing or holds anything
// other than an array.
func NotArray(field string) Filter { return Filter{op: opNotArray, field: field} }

func Eq(field string, value any) Filter { return Filter{op: opEq, field: field, value: value} }

// Contains matches documents whose array field has an element equal to value.
func Contains(field string, value any) Filter {
	return Filter{op: opContains, field: field, value: value}
}

// Match is a case-insensitive literal substring match on a string reached
// through a dotted path. Arrays along the path are walked element-wise.
func Match(path, substr string) Filter {
	return Filter{op: opMatch, field: path, value: substr}
}

func And(filters ...Filter) Filter { return Filter{op: opAnd, children: filters} }

func Or(filters ...Filter) Filter { return Filter{op: opOr, children: filters} }

// Matches evaluates the filter against a document's fields.
func (f Filter) Matches(fields map[string]any) bool {
	switch f.op {
	case opAll:
		return true
	case opExists:
		_, ok := fields[f.field]
		return ok
	case opIsArray:
		v, ok := fields[f.field]
		return ok && isArray(v)
	case opNotArray:
		v, ok := fields[f.field]
		return !ok || !isArray(v)
	case opEq:
		v, ok := fields[f.field]
		return ok && equalValues(v, f.value)
	case opContains:
		items, ok := asSlice(fields[f.field])
		if !ok {
			return false
		}
		for _, it := range items {
			if equalValues(it, f.value) {
				return true
			}
		}
		return false
	case opMatch:
		needle := strings.ToLower(f.value.(string))
		for _, v := range collectPath(fields, strings.Split(f.field, ".")) {
			s, ok := v.(string)
			if ok && strings.Contains(strings.ToLower(s), needle) {
				return true
			}
		}
		return false
	case opAnd:
		for _, c := range f.children {
			if !c.Matches(fields) {
				return false
			}
		}
		return true
	case opOr:
		for _, c := range f.children {
			if c.Matches(fields) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// collectPath returns every leaf value reachable through path, descending
// into arrays element-wise the way Mongo resolves dotted paths.
func collectPath(v any, path []string) []any {
	if items, ok := asSlice(v); ok {
		out := make([]any, 0)
		for _, it := range items {
			out = append(out, collectPath(it, path)...)
		}
		return out
	}
	if len(path) == 0 {
		return []any{v}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	next, ok := m[path[0]]
	if !ok {
		return nil
	}
	return collectPath(next, path[1:])
}
