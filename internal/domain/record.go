package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Values maps internal field names to values.
type Values map[string]any

// Clone returns a shallow copy of the values.
func (v Values) Clone() Values {
	if v == nil {
		return Values{}
	}
	out := make(Values, len(v))
	for key, value := range v {
		out[key] = value
	}
	return out
}

// Has reports whether the key is present, regardless of its value.
func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// Record is a stored row in the local system of record.
type Record struct {
	ID         int64     `json:"id"`
	Collection string    `json:"collection"`
	Values     Values    `json:"values"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewRecord creates an unsaved record for a collection.
func NewRecord(collection string, values Values) Record {
	now := time.Now()
	return Record{
		Collection: collection,
		Values:     values.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Get returns the stored value of a field, nil when unset.
func (r Record) Get(field string) any {
	if r.Values == nil {
		return nil
	}
	return r.Values[field]
}

// String returns the field as trimmed text, empty when unset.
func (r Record) String(field string) string {
	return AsString(r.Get(field))
}

// Active reports whether the record is active. Records without an active flag are active.
func (r Record) Active() bool {
	value, ok := r.Values["active"]
	if !ok || value == nil {
		return true
	}
	return Truthy(value)
}

// WithValues returns a copy of the record with the given values merged in.
func (r Record) WithValues(values Values) Record {
	merged := r.Values.Clone()
	for key, value := range values {
		merged[key] = value
	}
	return Record{
		ID:         r.ID,
		Collection: r.Collection,
		Values:     merged,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  time.Now(),
	}
}

// Operator is a comparison used in record lookups.
type Operator string

const (
	OpEq  Operator = "="
	OpIEq Operator = "=ilike"
	// OpILike matches when the stored text contains the value, ignoring case.
	OpILike Operator = "ilike"
)

// Criterion is one term of a conjunctive record lookup. A nil Value matches
// records where the field is unset, null or empty.
type Criterion struct {
	Field string
	Op    Operator
	Value any
}

// Eq builds an equality criterion.
func Eq(field string, value any) Criterion {
	return Criterion{Field: field, Op: OpEq, Value: value}
}

// SearchOptions tunes a lookup.
type SearchOptions struct {
	IncludeInactive bool
	Limit           int
}

// Truthy mirrors loose truthiness: nil, false, zero numbers, empty strings and
// empty collections are false.
func Truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case bool:
		return typed
	case string:
		return typed != ""
	case []any:
		return len(typed) > 0
	case []int64:
		return len(typed) > 0
	case []string:
		return len(typed) > 0
	case map[string]any:
		return len(typed) > 0
	case Values:
		return len(typed) > 0
	}
	if f, ok := AsFloat(value); ok {
		return f != 0
	}
	return true
}

// IsBlank reports values the outbound side treats as "no value": nil, false, "" and zero.
func IsBlank(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case bool:
		return !typed
	case string:
		return typed == ""
	}
	if f, ok := AsFloat(value); ok {
		return f == 0
	}
	return false
}

// AsString renders scalar values as trimmed text.
func AsString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case bool:
		return strconv.FormatBool(typed)
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// AsFloat converts numeric (and numeric string) values to float64.
func AsFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case json.Number:
		f, err := typed.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(typed, ",", ".")), 64)
		return f, err == nil
	}
	return 0, false
}

// AsInt64 converts integral values to int64. Floats are accepted only when whole.
func AsInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case float64:
		if typed == math.Trunc(typed) {
			return int64(typed), true
		}
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i, true
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// AsIDs normalises relation-to-many values into a slice of ids.
func AsIDs(value any) []int64 {
	switch typed := value.(type) {
	case nil:
		return nil
	case []int64:
		return append([]int64(nil), typed...)
	case []any:
		ids := make([]int64, 0, len(typed))
		for _, item := range typed {
			if id, ok := AsInt64(item); ok {
				ids = append(ids, id)
			}
		}
		return ids
	case []int:
		ids := make([]int64, 0, len(typed))
		for _, item := range typed {
			ids = append(ids, int64(item))
		}
		return ids
	}
	if id, ok := AsInt64(value); ok {
		return []int64{id}
	}
	return nil
}
