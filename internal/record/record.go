// Package record defines the in-flight record type exchanged between the
// broker client and a remote function invocation.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// ErrBadRecord is returned when a key or value is not valid UTF-8 text.
var ErrBadRecord = fmt.Errorf("record: key or value is not valid UTF-8")

// Record is an immutable (key, value) pair read from a broker partition.
// Either field may be absent (nil), matching a Kafka-style record whose
// key or value was not set by the producer.
type Record struct {
	key   *string
	value *string
}

// New builds a Record from raw bytes, decoding each as strict UTF-8 text.
// A nil slice means the field is absent. Non-UTF-8 bytes fail the whole
// record with ErrBadRecord.
func New(key, value []byte) (Record, error) {
	k, err := decode(key)
	if err != nil {
		return Record{}, fmt.Errorf("key: %w", err)
	}
	v, err := decode(value)
	if err != nil {
		return Record{}, fmt.Errorf("value: %w", err)
	}
	return Record{key: k, value: v}, nil
}

func decode(b []byte) (*string, error) {
	if b == nil {
		return nil, nil
	}
	if !utf8.Valid(b) {
		return nil, ErrBadRecord
	}
	s := string(b)
	return &s, nil
}

// Key returns the record's key text and whether it was present.
func (r Record) Key() (string, bool) {
	if r.key == nil {
		return "", false
	}
	return *r.key, true
}

// Value returns the record's value text and whether it was present.
func (r Record) Value() (string, bool) {
	if r.value == nil {
		return "", false
	}
	return *r.value, true
}

// recordJSON mirrors the wire contract: exactly "key" and "value", each a
// JSON string or null. No envelope, no extra fields.
type recordJSON struct {
	Key   *string `json:"key"`
	Value *string `json:"value"`
}

// MarshalJSON implements json.Marshaler with the fixed two-field contract.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{Key: r.key, Value: r.value})
}

// UnmarshalJSON implements json.Unmarshaler, the inverse of MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	var rj recordJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return err
	}
	r.key = rj.Key
	r.value = rj.Value
	return nil
}

// MarshalBatch serializes a batch as a JSON array in insertion order — the
// exact payload shape handed to the remote function invocation.
func MarshalBatch(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	out := buf.Bytes()
	// json.Encoder.Encode appends a trailing newline; the wire contract is
	// the bare array.
	return bytes.TrimRight(out, "\n"), nil
}
