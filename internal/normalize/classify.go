package normalize

import (
	"reflect"
	"strings"
)

// LegacyState is the shape of a pre-migration scalar image field.
type LegacyState int

const (
	LegacyAbsent LegacyState = iota
	LegacyNull
	LegacyEmpty
	LegacyValue
)

func (s LegacyState) String() string {
	switch s {
	case LegacyAbsent:
		return "absent"
	case LegacyNull:
		return "null"
	case LegacyEmpty:
		return "empty"
	case LegacyValue:
		return "value"
	default:
		return "unknown"
	}
}

// LegacyField is a classified legacy field. Values is set only for
// LegacyValue and holds what should become the canonical sequence.
type LegacyField struct {
	State  LegacyState
	Values []any
}

// CanonicalState is the shape of an array-form image field.
type CanonicalState int

const (
	CanonicalAbsent CanonicalState = iota
	CanonicalNull
	CanonicalMistyped
	CanonicalSequence
)

func (s CanonicalState) String() string {
	switch s {
	case CanonicalAbsent:
		return "absent"
	case CanonicalNull:
		return "null"
	case CanonicalMistyped:
		return "mistyped"
	case CanonicalSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// CanonicalField is a classified canonical field. Items is set for
// CanonicalSequence, Raw for CanonicalMistyped.
type CanonicalField struct {
	State CanonicalState
	Items []any
	Raw   any
}

func classifyLegacy(fields map[string]any, key string) LegacyField {
	v, ok := fields[key]
	if !ok {
		return LegacyField{State: LegacyAbsent}
	}
	if v == nil {
		return LegacyField{State: LegacyNull}
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return LegacyField{State: LegacyEmpty}
		}
		return LegacyField{State: LegacyValue, Values: []any{s}}
	}
	if items, ok := sequence(v); ok {
		kept := make([]any, 0, len(items))
		for _, it := range items {
			if it == nil {
				continue
			}
			if s, ok := it.(string); ok && s == "" {
				continue
			}
			kept = append(kept, it)
		}
		if len(kept) == 0 {
			return LegacyField{State: LegacyEmpty}
		}
		return LegacyField{State: LegacyValue, Values: kept}
	}
	return LegacyField{State: LegacyValue, Values: []any{v}}
}

func classifyCanonical(fields map[string]any, key string) CanonicalField {
	v, ok := fields[key]
	if !ok {
		return CanonicalField{State: CanonicalAbsent}
	}
	if v == nil {
		return CanonicalField{State: CanonicalNull}
	}
	if items, ok := sequence(v); ok {
		return CanonicalField{State: CanonicalSequence, Items: items}
	}
	return CanonicalField{State: CanonicalMistyped, Raw: v}
}

// salvage returns the single-element sequence a mistyped canonical value
// can be kept as, when it is a non-blank string.
func (c CanonicalField) salvage() ([]any, bool) {
	if c.State != CanonicalMistyped {
		return nil, false
	}
	s, ok := c.Raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, false
	}
	return []any{s}, true
}

func sequence(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case nil, string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
