// Package crypto provides the canonical serialization, hashing, and
// Ed25519 signing primitives shared by every DGC service. Every hash in
// the protocol is computed over the canonical JSON encoding of a payload,
// never over whatever byte order a particular json.Marshal call happens
// to produce.
package crypto

import (
	"encoding/json"
	"sort"
)

// CanonicalJSON re-encodes raw with object keys sorted at every nesting
// level so that two semantically equal payloads always produce identical
// bytes, regardless of map iteration order or field order in the source.
func CanonicalJSON(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(canonicalizeValue(v))
}

// MarshalCanonical marshals v and immediately re-canonicalizes the result,
// so callers can pass a struct directly instead of pre-marshaled bytes.
func MarshalCanonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return CanonicalJSON(raw)
}

func canonicalizeValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]interface{}, len(vv))
		for _, k := range keys {
			ordered[k] = canonicalizeValue(vv[k])
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = canonicalizeValue(e)
		}
		return out
	default:
		return vv
	}
}
