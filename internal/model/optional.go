package model

import (
	"bytes"
	"encoding/json"
)

// Opt holds a value the statistics source may or may not have reported.
// The zero value is None, which is distinct from a reported zero.
type Opt[T any] struct {
	val T
	ok  bool
}

// Some wraps a reported value.
func Some[T any](v T) Opt[T] { return Opt[T]{val: v, ok: true} }

// None returns an unreported value.
func None[T any]() Opt[T] { return Opt[T]{} }

// Get returns the value and whether it was reported.
func (o Opt[T]) Get() (T, bool) { return o.val, o.ok }

// Valid reports whether the value was reported.
func (o Opt[T]) Valid() bool { return o.ok }

// OrZero returns the value, or the zero value of T when unreported.
func (o Opt[T]) OrZero() T { return o.val }

// MarshalJSON encodes None as null.
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.val)
}

// UnmarshalJSON decodes null as None.
func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Opt[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// MarshalYAML encodes None as a YAML null.
func (o Opt[T]) MarshalYAML() (any, error) {
	if !o.ok {
		return nil, nil
	}
	return o.val, nil
}
