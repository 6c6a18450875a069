package models

// RawItem is one listing as decoded from the extraction service, before any
// validation. Values are JSON primitives (string, json.Number, bool), nil,
// or []any for list fields.
type RawItem map[string]any

// Has reports whether key is present with a non-null value.
func (r RawItem) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// String returns the value at key if it is a string.
func (r RawItem) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}
