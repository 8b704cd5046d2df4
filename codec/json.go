package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// JSON is a Codec over encoding/json. The zero value is ready to use.
// Decode rejects anything after the first JSON value.
type JSON[V any] struct{}

var _ Typed[struct{}] = JSON[struct{}]{}

func (JSON[V]) MediaType() string { return MediaJSON }

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }

func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return v, errors.New("codec: trailing data after JSON value")
	}
	return v, nil
}
