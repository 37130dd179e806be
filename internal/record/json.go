package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidJSON is wrapped by all decoding errors returned from this package.
var ErrInvalidJSON = errors.New("invalid JSON")

// Parse decodes data, which must hold exactly one JSON object, into a Record.
func Parse(data []byte) (*Record, error) {
	v, err := ParseValue(data)
	if err != nil {
		return nil, err
	}
	r, ok := v.(*Record)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object, got %s", ErrInvalidJSON, typeName(v))
	}
	return r, nil
}

// MustParse is like Parse but panics on error.
// It simplifies building records from literals, e.g. in tests.
func MustParse(s string) *Record {
	r, err := Parse([]byte(s))
	if err != nil {
		panic(fmt.Sprintf("record.MustParse(%q): %v", s, err))
	}
	return r
}

// ParseValue decodes data, which must hold exactly one JSON value.
// Objects are decoded as *Record, arrays as []any and numbers as json.Number.
func ParseValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if tok, err := dec.Token(); err != io.EOF {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		return nil, fmt.Errorf("%w: unexpected trailing data %v", ErrInvalidJSON, tok)
	}
	return v, nil
}

// ParseList decodes data holding either one JSON object or an array of objects.
func ParseList(data []byte) ([]*Record, error) {
	v, err := ParseValue(data)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case *Record:
		return []*Record{x}, nil
	case []any:
		rs := make([]*Record, len(x))
		for i, e := range x {
			r, ok := e.(*Record)
			if !ok {
				return nil, fmt.Errorf("element #%d: expected an object, got %s", i, typeName(e))
			}
			rs[i] = r
		}
		return rs, nil
	}
	return nil, fmt.Errorf("expected an object or array of objects, got %s", typeName(v))
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		// string, json.Number, bool or nil
		return tok, nil
	}
	switch delim {
	case '{':
		r := New()
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("invalid object key %v", kt)
			}
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			r.Set(key, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return r, nil
	case '[':
		list := []any{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return list, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %v", delim)
}

// MarshalJSON encodes r as a JSON object, keeping key order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into r, replacing its contents.
func (r *Record) UnmarshalJSON(data []byte) error {
	p, err := Parse(data)
	if err != nil {
		return err
	}
	*r = *p
	return nil
}

// Stringify returns the compact JSON encoding of v.
// The output is deterministic: records keep their key order and plain Go maps
// are written with sorted keys.
func Stringify(v any) (string, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MarshalIndent is like MarshalJSON but indents the output.
func MarshalIndent(v any, indent string) ([]byte, error) {
	var compact bytes.Buffer
	if err := encodeValue(&compact, v); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", indent); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case *Record:
		if x == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('{')
		for i, k := range x.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeValue(buf, x.values[k]); err != nil {
				return fmt.Errorf("field %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	}
	return encodeScalar(buf, v)
}

// encodeScalar writes v using encoding/json without HTML escaping.
func encodeScalar(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case *Record:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}
