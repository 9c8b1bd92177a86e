// Package config parses Iris's declarative documents (the setup document
// and pipeline documents) into a navigable token tree and reports changes
// on disk. The tokenizer itself is deliberately the standard library's
// encoding/json: Iris's document format is JSON, and nothing about the
// parse step needs a hand-rolled reader.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Token is one node of a parsed document: an object, array, or scalar.
// Iris code never type-switches on the underlying JSON shape directly;
// it goes through the accessor methods below so a future document format
// only has to satisfy this surface.
type Token struct {
	raw any
}

func newToken(raw any) Token { return Token{raw: raw} }

// Get looks up a child by key. It returns the zero Token (IsValid false)
// if the receiver is not an object or the key is absent.
func (t Token) Get(key string) Token {
	obj, ok := t.raw.(map[string]any)
	if !ok {
		return Token{}
	}
	v, ok := obj[key]
	if !ok {
		return Token{}
	}
	return newToken(v)
}

// IsValid reports whether this Token refers to an actual document node.
func (t Token) IsValid() bool { return t.raw != nil }

// Keys returns the object's member names in the order encoding/json's
// decode-into-map gave them (unordered; Iris's document model never
// relies on declaration order between sibling graphs or modules).
func (t Token) Keys() []string {
	obj, ok := t.raw.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return keys
}

// IsArray reports whether the Token is a JSON array.
func (t Token) IsArray() bool {
	_, ok := t.raw.([]any)
	return ok
}

// Size returns the number of elements if the Token is an array, else 0.
func (t Token) Size() int {
	arr, ok := t.raw.([]any)
	if !ok {
		return 0
	}
	return len(arr)
}

// Index returns the i'th element of an array Token, or the zero Token if
// out of range or the receiver is not an array.
func (t Token) Index(i int) Token {
	arr, ok := t.raw.([]any)
	if !ok || i < 0 || i >= len(arr) {
		return Token{}
	}
	return newToken(arr[i])
}

// String returns the scalar's string form regardless of its JSON type,
// so a subscriber can use whichever accessor it prefers (spec §4.E).
func (t Token) String() string {
	switch v := t.raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Number returns the scalar as an int64, truncating a float if needed.
func (t Token) Number() int64 {
	switch v := t.raw.(type) {
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Decimal returns the scalar as a float64.
func (t Token) Decimal() float64 {
	switch v := t.raw.(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// Boolean returns the scalar as a bool.
func (t Token) Boolean() bool {
	switch v := t.raw.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// StringAt, NumberAt, DecimalAt, BooleanAt are the indexed scalar
// accessors an array-valued parameter's subscribers use.
func (t Token) StringAt(i int) string   { return t.Index(i).String() }
func (t Token) NumberAt(i int) int64    { return t.Index(i).Number() }
func (t Token) DecimalAt(i int) float64 { return t.Index(i).Decimal() }
func (t Token) BooleanAt(i int) bool    { return t.Index(i).Boolean() }

// Raw returns the Token's underlying decoded value (map[string]any,
// []any, or a JSON scalar type), for callers outside this package that
// need a plain value to re-marshal — e.g. the admin surface's read-only
// parameter snapshot (§12's Karma.cpp introspection).
func (t Token) Raw() any { return t.raw }

func parseDocument(data []byte) (Token, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Token{}, fmt.Errorf("config: parse document: %w", err)
	}
	return newToken(v), nil
}
