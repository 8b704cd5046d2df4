// Package archive encodes backup snapshots. Every format carries each value as
// its JSON text, so a snapshot restores byte for byte whatever the container.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"sort"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kng-mtd/kvproxy"
	"github.com/kng-mtd/kvproxy/codec"
)

// Format is one archive encoding of a []kvproxy.Pair.
type Format struct {
	Name string
	c    codec.Typed[[]kvproxy.Pair]
}

func (f Format) MediaType() string                           { return f.c.MediaType() }
func (f Format) Encode(pairs []kvproxy.Pair) ([]byte, error) { return f.c.Encode(pairs) }
func (f Format) Decode(b []byte) ([]kvproxy.Pair, error)     { return f.c.Decode(b) }

// WithLimit returns f with Decode capped at maxBytes; see codec.Limit.
func (f Format) WithLimit(maxBytes int) Format {
	return Format{Name: f.Name, c: codec.Limit[[]kvproxy.Pair]{Inner: f.c, MaxDecode: maxBytes}}
}

var (
	JSON     = Format{Name: "json", c: jsonArchive{}}
	CBOR     = Format{Name: "cbor", c: recordArchive{inner: codec.MustCBOR[[]record](true)}}
	Msgpack  = Format{Name: "msgpack", c: recordArchive{inner: codec.Msgpack[[]record]{}}}
	Protobuf = Format{Name: "protobuf", c: protoArchive{inner: codec.NewProtobuf(func() *structpb.ListValue { return &structpb.ListValue{} })}}
)

var formats = []Format{JSON, CBOR, Msgpack, Protobuf}

// Names lists the format names, sorted.
func Names() []string {
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		out = append(out, f.Name)
	}
	sort.Strings(out)
	return out
}

func ByName(name string) (Format, bool) {
	for _, f := range formats {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Format{}, false
}

// ForMediaType resolves a Content-Type value. An empty value means JSON.
func ForMediaType(contentType string) (Format, bool) {
	if strings.TrimSpace(contentType) == "" {
		return JSON, true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Format{}, false
	}
	for _, f := range formats {
		if mt == f.MediaType() {
			return f, true
		}
	}
	if mt == "application/x-msgpack" || mt == "application/vnd.msgpack" {
		return Msgpack, true
	}
	if mt == "application/protobuf" {
		return Protobuf, true
	}
	return Format{}, false
}

// Negotiate picks the format for an Accept header. The first listed type we
// support wins; wildcards and an empty header give JSON. ok is false only when
// every listed type is unsupported.
func Negotiate(accept string) (Format, bool) {
	if strings.TrimSpace(accept) == "" {
		return JSON, true
	}
	for _, part := range strings.Split(accept, ",") {
		mt, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if params["q"] == "0" {
			continue
		}
		if mt == "*/*" || mt == "application/*" {
			return JSON, true
		}
		if f, ok := ForMediaType(mt); ok {
			return f, true
		}
	}
	return Format{}, false
}

// jsonArchive writes a bare array. It reads either that array or the restore
// request shape {"backupData": [...]}.
type jsonArchive struct{}

func (jsonArchive) MediaType() string { return codec.MediaJSON }

func (jsonArchive) Encode(pairs []kvproxy.Pair) ([]byte, error) {
	if pairs == nil {
		pairs = []kvproxy.Pair{}
	}
	return codec.JSON[[]kvproxy.Pair]{}.Encode(pairs)
}

func (jsonArchive) Decode(b []byte) ([]kvproxy.Pair, error) {
	trimmed := bytes.TrimLeft(b, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		env, err := codec.JSON[envelope]{}.Decode(b)
		if err != nil {
			return nil, err
		}
		if env.BackupData == nil {
			return nil, fmt.Errorf("archive: backupData must be an array")
		}
		return env.BackupData, nil
	}
	pairs, err := codec.JSON[[]kvproxy.Pair]{}.Decode(b)
	if err != nil {
		return nil, err
	}
	if pairs == nil {
		return nil, fmt.Errorf("archive: backup data must be an array")
	}
	return pairs, nil
}

type envelope struct {
	BackupData []kvproxy.Pair `json:"backupData"`
}

// record is the binary formats' element: the value is its JSON text.
type record struct {
	Key   string `cbor:"key" msgpack:"key"`
	Value []byte `cbor:"value" msgpack:"value"`
}

type recordArchive struct {
	inner codec.Typed[[]record]
}

func (a recordArchive) MediaType() string { return a.inner.MediaType() }

func (a recordArchive) Encode(pairs []kvproxy.Pair) ([]byte, error) {
	recs := make([]record, len(pairs))
	for i, p := range pairs {
		recs[i] = record{Key: p.Key, Value: []byte(p.Value)}
	}
	return a.inner.Encode(recs)
}

func (a recordArchive) Decode(b []byte) ([]kvproxy.Pair, error) {
	recs, err := a.inner.Decode(b)
	if err != nil {
		return nil, err
	}
	pairs := make([]kvproxy.Pair, len(recs))
	for i, r := range recs {
		pairs[i] = kvproxy.Pair{Key: r.Key, Value: json.RawMessage(r.Value)}
	}
	return pairs, nil
}

// protoArchive is a ListValue of Structs {"key": string, "value": string}.
type protoArchive struct {
	inner codec.Protobuf[*structpb.ListValue]
}

func (a protoArchive) MediaType() string { return a.inner.MediaType() }

func (a protoArchive) Encode(pairs []kvproxy.Pair) ([]byte, error) {
	lv := &structpb.ListValue{Values: make([]*structpb.Value, len(pairs))}
	for i, p := range pairs {
		lv.Values[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"key":   structpb.NewStringValue(p.Key),
			"value": structpb.NewStringValue(string(p.Value)),
		}})
	}
	return a.inner.Encode(lv)
}

func (a protoArchive) Decode(b []byte) ([]kvproxy.Pair, error) {
	lv, err := a.inner.Decode(b)
	if err != nil {
		return nil, err
	}
	pairs := make([]kvproxy.Pair, len(lv.GetValues()))
	for i, v := range lv.GetValues() {
		fields := v.GetStructValue().GetFields()
		p := kvproxy.Pair{Key: fields["key"].GetStringValue()}
		if sv, ok := fields["value"].GetKind().(*structpb.Value_StringValue); ok {
			p.Value = json.RawMessage(sv.StringValue)
		}
		pairs[i] = p
	}
	return pairs, nil
}
