package domain

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// floatTolerance is the epsilon under which two float values are equal.
const floatTolerance = 0.01

// caseFoldedFields are compared ignoring case. The external side rewrites the
// case of names on its own.
var caseFoldedFields = map[string]bool{"name": true}

// richTextFields are compared as rich text regardless of their declared kind.
var richTextFields = map[string]bool{"comment": true}

var htmlTag = regexp.MustCompile(`<[^>]+>`)

// FieldChange describes one field whose stored value differs from the incoming one.
type FieldChange struct {
	Field    string `json:"field"`
	Previous any    `json:"previous"`
	Next     any    `json:"next"`
}

// ValuesEqual compares a stored and an incoming value using the field's kind.
func ValuesEqual(kind FieldKind, field string, stored, incoming any) bool {
	if richTextFields[field] || kind == FieldKindHTML {
		return NormalizeRichText(stored) == NormalizeRichText(incoming)
	}

	switch kind {
	case FieldKindMany2One:
		a, aok := AsInt64(stored)
		b, bok := AsInt64(incoming)
		if !aok || !bok {
			return aok == bok
		}
		return a == b
	case FieldKindMany2Many, FieldKindOne2Many:
		return sameIDSet(AsIDs(stored), AsIDs(incoming))
	case FieldKindBoolean:
		return Truthy(stored) == Truthy(incoming)
	case FieldKindFloat:
		a, _ := AsFloat(stored)
		b, _ := AsFloat(incoming)
		return math.Abs(a-b) <= floatTolerance
	case FieldKindInteger, FieldKindMonetary:
		a, _ := AsFloat(stored)
		b, _ := AsFloat(incoming)
		return math.Trunc(a) == math.Trunc(b)
	case FieldKindChar, FieldKindText:
		a := AsString(stored)
		b := AsString(incoming)
		if caseFoldedFields[field] {
			return strings.EqualFold(a, b)
		}
		return a == b
	case FieldKindDate, FieldKindDatetime:
		return AsString(stored) == AsString(incoming)
	}

	return looseEqual(stored, incoming)
}

// DiffValues returns the fields of incoming whose value differs from stored.
// Fields without a declared kind are compared loosely and engine-internal keys
// are skipped. Changes are ordered by field name.
func DiffValues(kinds map[string]FieldKind, stored, incoming Values) []FieldChange {
	fields := make([]string, 0, len(incoming))
	for field := range incoming {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var changes []FieldChange
	for _, field := range fields {
		if strings.HasPrefix(field, "_") {
			continue
		}
		if ValuesEqual(kinds[field], field, stored[field], incoming[field]) {
			continue
		}
		changes = append(changes, FieldChange{Field: field, Previous: stored[field], Next: incoming[field]})
	}
	return changes
}

// NormalizeRichText strips markup, trims every line, drops blank lines and sorts
// what is left so that reordering and markup differences compare equal.
func NormalizeRichText(value any) string {
	text := ""
	if s, ok := value.(string); ok {
		text = s
	} else if value != nil {
		text = AsString(value)
	}
	text = htmlTag.ReplaceAllString(text, "")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func sameIDSet(a, b []int64) bool {
	left := make(map[int64]struct{}, len(a))
	for _, id := range a {
		left[id] = struct{}{}
	}
	right := make(map[int64]struct{}, len(b))
	for _, id := range b {
		right[id] = struct{}{}
	}
	if len(left) != len(right) {
		return false
	}
	for id := range left {
		if _, ok := right[id]; !ok {
			return false
		}
	}
	return true
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := AsFloat(a); ok {
		if _, isString := a.(string); !isString {
			if fb, ok := AsFloat(b); ok {
				if _, isString := b.(string); !isString {
					return fa == fb
				}
			}
		}
	}
	return AsString(a) == AsString(b)
}
