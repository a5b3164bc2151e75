// Package util holds helpers shared by the flow library and the hosts.
package util

import (
	"encoding/json"
	"strings"
)

const redactedValue = "[REDACTED]"

// sensitiveParams are the OAuth parameters whose values must never reach logs.
var sensitiveParams = map[string]struct{}{
	"code":          {},
	"state":         {},
	"code_verifier": {},
	"access_token":  {},
	"refresh_token": {},
	"id_token":      {},
	"client_secret": {},
}

// IsSensitiveParam reports whether name is an OAuth parameter carrying a credential.
// The comparison ignores case.
func IsSensitiveParam(name string) bool {
	_, ok := sensitiveParams[strings.ToLower(name)]
	return ok
}

// RedactSensitiveJSON redacts credential fields of a JSON payload, at any depth.
// Payloads that are not JSON objects or arrays are returned unchanged.
func RedactSensitiveJSON(body []byte) []byte {
	trim := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trim, "{") && !strings.HasPrefix(trim, "[") {
		return body
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return body
	}
	out, err := json.Marshal(redactValue(v))
	if err != nil {
		return body
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if isSensitiveKey(k) {
				t[k] = redactedValue
				continue
			}
			t[k] = redactValue(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = redactValue(t[i])
		}
		return t
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if IsSensitiveParam(k) {
		return true
	}
	return strings.Contains(k, "token") ||
		strings.Contains(k, "secret") ||
		strings.Contains(k, "password") ||
		strings.Contains(k, "authorization")
}
