package logging

import (
	"net/url"
	"strings"

	"github.com/router-for-me/authflow/internal/util"
)

const maskedValue = "***"

// MaskSensitiveQuery replaces the values of OAuth parameters in a raw query string.
// Order and unrelated parameters are preserved. Unparsable pairs are kept as-is.
func MaskSensitiveQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	parts := strings.Split(rawQuery, "&")
	for i, part := range parts {
		key, _, hasValue := strings.Cut(part, "=")
		if !hasValue {
			continue
		}
		name, err := url.QueryUnescape(key)
		if err != nil {
			continue
		}
		if util.IsSensitiveParam(name) {
			parts[i] = key + "=" + maskedValue
		}
	}
	return strings.Join(parts, "&")
}
