// Package codec turns values into bytes and back. The archive package builds
// its backup formats on these.
package codec

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Typed is a Codec that knows the media type of what it produces.
type Typed[V any] interface {
	Codec[V]
	MediaType() string
}

const (
	MediaJSON     = "application/json"
	MediaCBOR     = "application/cbor"
	MediaMsgpack  = "application/msgpack"
	MediaProtobuf = "application/x-protobuf"
)
