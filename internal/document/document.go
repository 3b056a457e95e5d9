// Package document decodes JSON into an order-preserving tree and rejects
// objects that repeat a key.
//
// Decoded values are one of Object, []any, string, json.Number, bool or nil.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	ErrMalformed    = errors.New("malformed json document")
	ErrDuplicateKey = errors.New("duplicate key in json object")
)

// SyntaxError reports invalid JSON at a byte offset.
type SyntaxError struct {
	Offset int64
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid json at offset %d: %s", e.Offset, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrMalformed }

// DuplicateKeyError reports a key that appears twice in the same object.
// Path locates the enclosing object, e.g. "$.server.ports[2]".
type DuplicateKeyError struct {
	Key  string
	Path string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q in object at %s", e.Key, e.Path)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// Member is one key/value pair of an Object.
type Member struct {
	Key   string
	Value any
}

// Object is a JSON object that keeps its keys in document order.
type Object []Member

// Get returns the value stored under key.
func (o Object) Get(key string) (any, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in order.
func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, m := range o {
		keys[i] = m.Key
	}
	return keys
}

// Set replaces the value under key or appends a new member.
func (o *Object) Set(key string, value any) {
	for i := range *o {
		if (*o)[i].Key == key {
			(*o)[i].Value = value
			return
		}
	}
	*o = append(*o, Member{Key: key, Value: value})
}

// MarshalJSON writes members in order. A nil Object encodes as {}.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := encode(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := encode(m.Value)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", m.Key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode serializes v, indenting by two spaces when pretty is set.
func Encode(v any, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func encode(v any) ([]byte, error) {
	return Encode(v, false)
}

// Decode parses raw as a JSON document whose top level is an object.
func Decode(raw []byte) (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, syntaxError(dec, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, &SyntaxError{Offset: dec.InputOffset(), Msg: "top-level value must be an object"}
	}

	obj, err := decodeObject(dec, "$")
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return nil, &SyntaxError{Offset: dec.InputOffset(), Msg: "unexpected data after top-level object"}
		}
		return nil, syntaxError(dec, err)
	}
	return obj, nil
}

func decodeObject(dec *json.Decoder, path string) (Object, error) {
	obj := Object{}
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, syntaxError(dec, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &SyntaxError{Offset: dec.InputOffset(), Msg: "object key must be a string"}
		}
		if _, dup := seen[key]; dup {
			return nil, &DuplicateKeyError{Key: key, Path: path}
		}
		seen[key] = struct{}{}

		value, err := decodeValue(dec, path+"."+key)
		if err != nil {
			return nil, err
		}
		obj = append(obj, Member{Key: key, Value: value})
	}
	// closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, syntaxError(dec, err)
	}
	return obj, nil
}

func decodeArray(dec *json.Decoder, path string) ([]any, error) {
	list := []any{}
	for dec.More() {
		value, err := decodeValue(dec, path+"["+strconv.Itoa(len(list))+"]")
		if err != nil {
			return nil, err
		}
		list = append(list, value)
	}
	// closing ']'
	if _, err := dec.Token(); err != nil {
		return nil, syntaxError(dec, err)
	}
	return list, nil
}

func decodeValue(dec *json.Decoder, path string) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, syntaxError(dec, err)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec, path)
		case '[':
			return decodeArray(dec, path)
		}
		return nil, &SyntaxError{Offset: dec.InputOffset(), Msg: fmt.Sprintf("unexpected %q", t)}
	default:
		// string, json.Number, bool or nil
		return t, nil
	}
}

func syntaxError(dec *json.Decoder, err error) error {
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return &SyntaxError{Offset: se.Offset, Msg: se.Error()}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &SyntaxError{Offset: dec.InputOffset(), Msg: "unexpected end of input"}
	}
	return &SyntaxError{Offset: dec.InputOffset(), Msg: err.Error()}
}
