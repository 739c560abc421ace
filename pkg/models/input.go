package models

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"reflect"
)

var null = []byte("null")

// Optional is a string that knows whether it was supplied.
// A present empty string is still present.
type Optional struct {
	value string
	ok    bool
}

// Some returns a present Optional.
func Some(value string) Optional {
	return Optional{value: value, ok: true}
}

// None returns an absent Optional.
func None() Optional {
	return Optional{}
}

// Get returns the value and whether it was present.
func (o Optional) Get() (string, bool) {
	return o.value, o.ok
}

// Present reports if a value was supplied.
func (o Optional) Present() bool {
	return o.ok
}

// Or returns the value when present, otherwise def.
func (o Optional) Or(def string) string {
	if o.ok {
		return o.value
	}
	return def
}

// MarshalJSON writes null when absent.
func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return null, nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON treats null as absent. A missing member never calls this, so
// it stays absent too. A value that is not a string is also absent, it
// degrades to the default instead of failing the whole payload.
func (o *Optional) UnmarshalJSON(b []byte) error {
	var raw json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		*o = None()
		return nil
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		*o = None()
		return nil
	}
	*o = Some(value)
	return nil
}

// Generate allows Optional to be used within quickcheck scenarios.
func (Optional) Generate(r *rand.Rand, size int) reflect.Value {
	if r.Intn(3) == 0 {
		return reflect.ValueOf(None())
	}
	return reflect.ValueOf(Some(randomString(r, size)))
}

// Input is the payload the handler is invoked with.
type Input struct {
	Bucket Optional `json:"bucket"`
	Key    Optional `json:"key"`
}

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789-_./"

func randomString(r *rand.Rand, size int) string {
	b := make([]byte, r.Intn(size+1))
	for k := range b {
		b[k] = alphabet[r.Intn(len(alphabet))]
	}
	return string(b)
}
