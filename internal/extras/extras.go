// Package extras encodes and decodes the Catalog schema's "extras" list,
// the {key, value} pairs that carry fields outside the fixed schema.
package extras

import (
	"strings"

	"github.com/dnswlt/dpmap/internal/record"
)

const (
	// Field is the name of the extras list in a Catalog dataset.
	Field = "extras"

	keyField   = "key"
	valueField = "value"
)

// Entry is a single extras item.
type Entry struct {
	Key   string
	Value any
}

// LooksLikeJSON reports whether s, after trimming whitespace, starts with
// '{' or '['. It is a cheap heuristic, not a validity check.
func LooksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// Unjsonify parses v if it is a string that looks like a JSON object or array.
// Any other value, and any string that fails to parse, is returned unchanged.
func Unjsonify(v any) any {
	s, ok := v.(string)
	if !ok || !LooksLikeJSON(s) {
		return v
	}
	parsed, err := record.ParseValue([]byte(strings.TrimSpace(s)))
	if err != nil {
		return v
	}
	return parsed
}

// DecodeValue decodes the value of an extras entry. Strings holding any JSON
// value are parsed; strings that are not JSON and non-string values are
// returned unchanged.
func DecodeValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	parsed, err := record.ParseValue([]byte(s))
	if err != nil {
		return v
	}
	return parsed
}

// EncodeValue encodes v for storage as the value of an extras entry.
// Records and lists are JSON-encoded. Scalars are stored as they are, except
// strings that DecodeValue would turn into something else (e.g. "123" or
// "null"). Those are not stored raw but JSON-encoded, so that they decode
// back to the same string.
func EncodeValue(v any) any {
	switch x := v.(type) {
	case *record.Record, []any, map[string]any:
		return stringifyOr(v)
	case string:
		if _, err := record.ParseValue([]byte(x)); err == nil {
			return stringifyOr(v)
		}
	}
	return v
}

func stringifyOr(v any) any {
	s, err := record.Stringify(v)
	if err != nil {
		return v
	}
	return s
}

// Entries returns the extras entries of r in order. Items that are not
// objects or lack a string key are skipped.
func Entries(r *record.Record) []Entry {
	list, _ := r.Value(Field).([]any)
	var entries []Entry
	for _, item := range list {
		obj, ok := item.(*record.Record)
		if !ok {
			continue
		}
		key, ok := obj.String(keyField)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Key: key, Value: obj.Value(valueField)})
	}
	return entries
}

// Lookup returns the value of the first extras entry of r with the given key.
func Lookup(r *record.Record, key string) (any, bool) {
	for _, e := range Entries(r) {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Append adds a {key, value} entry to the extras list of r,
// creating the list if needed.
func Append(r *record.Record, key string, value any) {
	list, _ := r.Value(Field).([]any)
	item := record.New()
	item.Set(keyField, key)
	item.Set(valueField, value)
	r.Set(Field, append(list, item))
}
