// Package resultcache implements a content-addressed compilation result
// cache: deterministic configuration fingerprinting, gzip-compressed
// storage over the kv.Store abstraction, and previousVersion surfacing on
// write. The fingerprinting idiom is JSON marshal of a canonical form,
// then sha256, then a short token.
package resultcache

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"sort"

	"github.com/vitaliisemenov/adblock-compiler/internal/model"
)

// Fingerprint deterministically canonicalizes cfg (object keys sorted
// recursively) and returns a short, stable token.
func Fingerprint(cfg *model.Configuration) (string, error) {
	canonical, err := canonicalize(cfg)
	if err != nil {
		return "", model.NewConfigurationError("failed to canonicalize configuration: %v", err)
	}
	sum := sha256.Sum256(canonical)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// canonicalize marshals cfg through a generic map so json.Marshal's
// built-in key sorting for map[string]interface{} applies recursively,
// making the byte output independent of the struct's field declaration
// order.
func canonicalize(cfg *model.Configuration) ([]byte, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalSorted(generic)
}

// marshalSorted re-encodes v with map keys emitted in sorted order at
// every nesting level. encoding/json already sorts map[string]interface{}
// keys on marshal, but we implement it explicitly so the guarantee holds
// regardless of future encoding/json changes and is easy to unit-test in
// isolation.
func marshalSorted(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte("{")
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, keyJSON...)
			buf = append(buf, ':')
			valJSON, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, valJSON...)
		}
		buf = append(buf, '}')
		return buf, nil

	case []interface{}:
		buf := []byte("[")
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			itemJSON, err := marshalSorted(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, itemJSON...)
		}
		buf = append(buf, ']')
		return buf, nil

	default:
		return json.Marshal(val)
	}
}
