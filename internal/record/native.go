package record

import "encoding/json"

// Native converts a value tree into plain Go values: records become
// map[string]any, numbers become int64 or float64. Key order is lost.
func Native(v any) any {
	switch x := v.(type) {
	case *Record:
		if x == nil {
			return nil
		}
		m := make(map[string]any, x.Len())
		for k, e := range x.All() {
			m[k] = Native(e)
		}
		return m
	case []any:
		l := make([]any, len(x))
		for i, e := range x {
			l[i] = Native(e)
		}
		return l
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}
	return v
}

// ToMap is Native for a whole record.
func (r *Record) ToMap() map[string]any {
	m, _ := Native(r).(map[string]any)
	return m
}
