package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is wrapped by Limit.Decode when the payload exceeds the cap.
var ErrTooLarge = errors.New("codec: payload too large")

// Limit wraps another codec to cap the payload size accepted by Decode.
// Encode is forwarded unchanged. MaxDecode <= 0 disables the cap.
type Limit[V any] struct {
	Inner     Typed[V]
	MaxDecode int
}

func (c Limit[V]) MediaType() string          { return c.Inner.MediaType() }
func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
