// Package tkassa implements the Т-Касса (Tinkoff) acquiring protocol: the
// canonical request token, the Init request builder, and notification
// verification. The token algorithm must match the provider bit-for-bit.
package tkassa

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Fields excluded from signing. Token is the signature itself; Receipt and
// DATA are structural objects the provider leaves out of the digest.
var unsignedFields = map[string]bool{
	"Token":   true,
	"Receipt": true,
	"DATA":    true,
}

// Token computes the request signature: scalar fields plus a synthetic
// Password pair, sorted by key (bytewise), values concatenated with no
// separator, SHA-256, lowercase hex.
func Token(fields map[string]any, password string) string {
	type pair struct {
		key   string
		value string
	}

	pairs := make([]pair, 0, len(fields)+1)
	for key, raw := range fields {
		if unsignedFields[key] {
			continue
		}
		value, ok := scalarString(raw)
		if !ok {
			continue
		}
		pairs = append(pairs, pair{key: key, value: value})
	}
	pairs = append(pairs, pair{key: "Password", value: password})

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].key < pairs[j].key
	})

	var b strings.Builder
	for _, p := range pairs {
		b.WriteString(p.value)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyToken recomputes the token over the received fields and compares it
// to the payload's Token value. Hex comparison is case-insensitive.
func VerifyToken(fields map[string]any, password string) bool {
	received, ok := fields["Token"].(string)
	if !ok || received == "" {
		return false
	}
	computed := Token(fields, password)
	return strings.EqualFold(received, computed)
}

// scalarString coerces a decoded JSON value to the string form the provider
// hashes. Nested objects and arrays do not participate; nil means absent.
func scalarString(v any) (string, bool) {
	switch typed := v.(type) {
	case nil:
		return "", false
	case string:
		return typed, true
	case bool:
		return strconv.FormatBool(typed), true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	case uint64:
		return strconv.FormatUint(typed, 10), true
	case float64:
		// encoding/json decodes every number to float64; -1 precision keeps
		// integral amounts free of a trailing ".0".
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case json.Number:
		return typed.String(), true
	default:
		return "", false
	}
}
