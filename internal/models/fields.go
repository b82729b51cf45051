package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var ErrNotObject = errors.New("json value is not an object")

// Fields is a JSON object that remembers key insertion order. Setting an
// existing key replaces its value in place; new keys are appended.
type Fields struct {
	keys   []string
	values map[string]json.RawMessage
}

func (f *Fields) Len() int {
	return len(f.keys)
}

func (f *Fields) Keys() []string {
	keys := make([]string, len(f.keys))
	copy(keys, f.keys)
	return keys
}

func (f *Fields) Get(key string) (json.RawMessage, bool) {
	raw, ok := f.values[key]
	return raw, ok
}

// GetString returns the value as a string when it is a JSON string.
func (f *Fields) GetString(key string) (string, bool) {
	raw, ok := f.values[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func (f *Fields) Set(key string, raw json.RawMessage) {
	if f.values == nil {
		f.values = make(map[string]json.RawMessage)
	}
	if _, exists := f.values[key]; !exists {
		f.keys = append(f.keys, key)
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	f.values[key] = raw
}

// SetValue marshals v and stores it under key.
func (f *Fields) SetValue(key string, v any) error {
	raw, err := marshalValue(v)
	if err != nil {
		return fmt.Errorf("failed to marshal field %q: %w", key, err)
	}
	f.Set(key, raw)
	return nil
}

func (f *Fields) Delete(key string) {
	if _, exists := f.values[key]; !exists {
		return
	}
	delete(f.values, key)
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i:i], f.keys[i+1:]...)
			break
		}
	}
}

// Overlay copies every key of other into f; other wins on collision.
func (f *Fields) Overlay(other Fields) {
	for _, k := range other.keys {
		f.Set(k, other.values[k])
	}
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalValue(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(f.values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f *Fields) UnmarshalJSON(data []byte) error {
	keys, values, err := decodeObject(data)
	if err != nil {
		return err
	}
	f.keys = keys
	f.values = values
	return nil
}

// decodeObject reads exactly one JSON object, keeping key order. Duplicate
// keys keep their first position and their last value.
func decodeObject(data []byte) ([]string, map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, ErrNotObject
	}

	keys := make([]string, 0)
	values := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = raw
	}

	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, nil, errors.New("unexpected data after json object")
	}

	return keys, values, nil
}

func marshalValue(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
