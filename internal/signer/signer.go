// Package signer produces the HMAC-SHA256 request signature Ticket
// Evolution requires on every call (spec §4.1): a canonical
// method+hostname+path+query string, signed with the shared secret and
// base64-encoded.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// Sign returns the base64-encoded HMAC-SHA256 signature for a TE request.
// hostname and path are combined with the sorted, percent-encoded query
// params into a canonical string; the query component always starts with
// "?", even with zero params — omitting it produces a signature TE
// rejects with 401.
func Sign(secret, method, hostname, path string, params map[string]string) string {
	canonical := CanonicalString(method, hostname, path, params)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// CanonicalString builds the exact string that gets signed, exposed
// separately so callers (and tests) can assert on it directly.
func CanonicalString(method, hostname, path string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var query strings.Builder
	query.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			query.WriteByte('&')
		}
		query.WriteString(encodeSpacesAsPercent20(k))
		query.WriteByte('=')
		query.WriteString(encodeSpacesAsPercent20(params[k]))
	}

	var sb strings.Builder
	sb.WriteString(method)
	sb.WriteByte(' ')
	sb.WriteString(hostname)
	sb.WriteString(path)
	sb.WriteString(query.String())
	return sb.String()
}

// encodeSpacesAsPercent20 percent-encodes a string the way TE expects:
// url.QueryEscape encodes spaces as "+", which TE's signature verifier
// does not accept — it requires "%20".
func encodeSpacesAsPercent20(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
