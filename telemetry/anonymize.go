package telemetry

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// sensitiveKeys are property keys whose values are hashed when anonymizing.
var sensitiveKeys = map[string]bool{
	"email":    true,
	"username": true,
	"path":     true,
	"filePath": true,
	"url":      true,
}

// IsSensitive reports whether key is anonymized.
func IsSensitive(key string) bool {
	return sensitiveKeys[key]
}

// Hash returns a deterministic, non-cryptographic digest of value. Equal
// inputs always yield equal digests so anonymized values still correlate.
func Hash(value string) string {
	return "anon_" + strconv.FormatUint(xxhash.Sum64String(value), 16)
}

// Anonymize returns a copy of props with sensitive values hashed. Nil values
// are kept as nil.
func Anonymize(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if sensitiveKeys[k] && v != nil {
			out[k] = Hash(fmt.Sprint(v))
			continue
		}
		out[k] = v
	}
	return out
}
