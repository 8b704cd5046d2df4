package kvproxy

import (
	"encoding/json"
	"fmt"
)

// Item is one write addressed by tenant and logical key.
// A nil Value means the field was absent; JSON null arrives as the literal "null".
// TTL is in seconds; 0 means no expiry.
type Item struct {
	Tenant string          `json:"tenant"`
	Key    string          `json:"key"`
	Value  json.RawMessage `json:"value"`
	TTL    int64           `json:"ttl,omitempty"`

	decodeErr error
}

// UnmarshalJSON never fails. A malformed item is kept and rejected when it is
// validated, so one bad element does not sink the batch around it.
// "app" is accepted as an alias of "tenant".
func (it *Item) UnmarshalJSON(b []byte) error {
	var w struct {
		Tenant string          `json:"tenant"`
		App    string          `json:"app"`
		Key    string          `json:"key"`
		Value  json.RawMessage `json:"value"`
		TTL    int64           `json:"ttl"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		*it = Item{decodeErr: err}
		return nil
	}
	if w.Tenant == "" {
		w.Tenant = w.App
	}
	*it = Item{Tenant: w.Tenant, Key: w.Key, Value: w.Value, TTL: w.TTL}
	return nil
}

// Pair is one backup entry: a raw storage key and its JSON value.
type Pair struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`

	decodeErr error
}

// UnmarshalJSON never fails; see Item.UnmarshalJSON.
func (p *Pair) UnmarshalJSON(b []byte) error {
	var w struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		*p = Pair{decodeErr: err}
		return nil
	}
	*p = Pair{Key: w.Key, Value: w.Value}
	return nil
}

// ItemResult is the outcome of one element of a BulkSet or Restore.
type ItemResult struct {
	Index   int    `json:"index"`
	Tenant  string `json:"tenant,omitempty"`
	Key     string `json:"key"`
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BatchResult reports a multi-item write. Results follow input order.
type BatchResult struct {
	Success bool         `json:"success"`
	Written int          `json:"written"`
	Failed  int          `json:"failed"`
	Results []ItemResult `json:"results"`
}

func (r *BatchResult) record(res ItemResult, err error) {
	if err != nil {
		res.Success = false
		res.Code = ErrorCode(err)
		res.Error = ErrorMessage(err)
		if res.Code == EStoreFault || res.Code == EInternal {
			res.Error = res.Code
		}
		r.Failed++
	} else {
		res.Success = true
		r.Written++
	}
	r.Results = append(r.Results, res)
	r.Success = r.Failed == 0
}

func malformed(op string, err error) *Error {
	return invalid(op, fmt.Sprintf("malformed item: %v", err))
}
