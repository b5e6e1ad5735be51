// Package snapshot provides versioned file-backed storage for named
// symbol lists, with one retained prior generation for change detection.
package snapshot

import "encoding/json"

// Record is a single symbol entry in a snapshot list. Attributes beyond
// the symbol identifier are carried through untouched so refresh jobs do
// not need to understand the upstream screener's schema.
type Record struct {
	Symbol string
	Attrs  map[string]json.RawMessage
}

// MarshalJSON flattens the record into a single JSON object with the
// symbol alongside its attributes.
func (r Record) MarshalJSON() ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(r.Attrs)+1)
	for k, v := range r.Attrs {
		obj[k] = v
	}
	sym, err := json.Marshal(r.Symbol)
	if err != nil {
		return nil, err
	}
	obj["symbol"] = sym
	return json.Marshal(obj)
}

// UnmarshalJSON extracts the symbol field and keeps everything else as
// opaque attributes.
func (r *Record) UnmarshalJSON(data []byte) error {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if raw, ok := obj["symbol"]; ok {
		if err := json.Unmarshal(raw, &r.Symbol); err != nil {
			return err
		}
		delete(obj, "symbol")
	}
	r.Attrs = obj
	return nil
}

// NewRecord creates a record with just a symbol, mainly for tests and
// collaborators that only deal in identifiers.
func NewRecord(symbol string) Record {
	return Record{Symbol: symbol}
}

// Symbols returns the symbol identifiers of a record list, in order.
func Symbols(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Symbol
	}
	return out
}
