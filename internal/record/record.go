// Package record implements the ordered, string-keyed mapping used to hold
// Catalog and Package metadata records.
//
// Values held in a Record are JSON-compatible: string, json.Number, bool,
// nil, []any and *Record. Nested JSON objects are decoded as *Record, so key
// order is preserved at every depth.
package record

import (
	"encoding/json"
	"iter"
	"slices"

	"github.com/google/go-cmp/cmp"
)

// Record is an ordered mapping from field name to a JSON-compatible value.
// The zero value is not usable; use New.
type Record struct {
	keys   []string
	values map[string]any
}

// New returns an empty record.
func New() *Record {
	return &Record{
		values: make(map[string]any),
	}
}

// Len returns the number of keys in r.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Keys returns a copy of r's keys in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.keys)
}

// Get returns the value stored under key and whether the key is present.
func (r *Record) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value stored under key, or nil if absent.
func (r *Record) Value(key string) any {
	v, _ := r.Get(key)
	return v
}

// Has reports whether key is present (possibly with a nil value).
func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// String returns the string stored under key and true, or "" and false
// if the key is absent or holds a non-string value.
func (r *Record) String(key string) (string, bool) {
	s, ok := r.Value(key).(string)
	return s, ok
}

// Set stores v under key. An existing key keeps its position,
// a new key is appended.
func (r *Record) Set(key string, v any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Delete removes key from r and reports whether it was present.
func (r *Record) Delete(key string) bool {
	if _, ok := r.values[key]; !ok {
		return false
	}
	delete(r.values, key)
	i := slices.Index(r.keys, key)
	r.keys = slices.Delete(slices.Clone(r.keys), i, i+1)
	return true
}

// Rename moves the value stored under from to the key to and deletes from.
// If to already exists it is overwritten in place, otherwise it is appended.
// Rename reports whether from was present.
func (r *Record) Rename(from, to string) bool {
	v, ok := r.Get(from)
	if !ok {
		return false
	}
	if from == to {
		return true
	}
	r.Set(to, v)
	r.Delete(from)
	return true
}

// All iterates over r's entries in insertion order.
// Callers may update existing keys while iterating but must not add or delete keys.
func (r *Record) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if r == nil {
			return
		}
		for _, k := range r.keys {
			if !yield(k, r.values[k]) {
				return
			}
		}
	}
}

// DropNulls removes all top-level keys holding a nil value.
func (r *Record) DropNulls() {
	keys := r.keys[:0:0]
	for _, k := range r.keys {
		if r.values[k] == nil {
			delete(r.values, k)
			continue
		}
		keys = append(keys, k)
	}
	r.keys = keys
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := &Record{
		keys:   slices.Clone(r.keys),
		values: make(map[string]any, len(r.values)),
	}
	for k, v := range r.values {
		c.values[k] = CloneValue(v)
	}
	return c
}

// CloneValue returns a deep copy of a JSON-compatible value.
func CloneValue(v any) any {
	switch x := v.(type) {
	case *Record:
		return x.Clone()
	case []any:
		c := make([]any, len(x))
		for i, e := range x {
			c[i] = CloneValue(e)
		}
		return c
	case map[string]any:
		c := make(map[string]any, len(x))
		for k, e := range x {
			c[k] = CloneValue(e)
		}
		return c
	default:
		return v
	}
}

// Equal reports whether r and o hold the same keys with deeply equal values.
// Key order is ignored, as for JSON objects. Numbers compare by value,
// so json.Number("1") equals json.Number("1.0") and the Go int 1.
func (r *Record) Equal(o *Record) bool {
	if r.Len() != o.Len() {
		return false
	}
	for k, v := range r.All() {
		ov, ok := o.Get(k)
		if !ok || !ValueEqual(v, ov) {
			return false
		}
	}
	return true
}

// ValueEqual reports whether two JSON-compatible values are deeply equal.
func ValueEqual(a, b any) bool {
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		return ok && x == y
	}
	switch x := a.(type) {
	case *Record:
		y, ok := b.(*Record)
		return ok && x.Equal(y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !ValueEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, ok := y[k]
			if !ok || !ValueEqual(v, w) {
				return false
			}
		}
		return true
	}
	return cmp.Equal(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Truthy reports whether v is a non-empty value: a non-empty string, list or
// record, a non-zero number, or true.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case *Record:
		return x.Len() > 0
	case map[string]any:
		return len(x) > 0
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}
