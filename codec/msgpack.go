package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack is a Codec that serializes values using vmihailenco/msgpack/v5.
// The zero value is ready to use. Struct fields follow `msgpack:"name"` tags;
// unknown fields are an error on Decode.
type Msgpack[V any] struct{}

var _ Typed[struct{}] = Msgpack[struct{}]{}

func (Msgpack[V]) MediaType() string { return MediaMsgpack }

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields(true)
	err := dec.Decode(&v)
	return v, err
}
