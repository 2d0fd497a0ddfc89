package diaglog

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveKeys are payload keys whose values never reach the log file.
// Matching is case-insensitive.
var sensitiveKeys = map[string]bool{
	"token":         true,
	"access_token":  true,
	"authorization": true,
	"password":      true,
	"secret":        true,
	"cookie":        true,
}

// bearerRe finds bearer credentials embedded in free text, such as an error
// message that echoes a request header.
var bearerRe = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`)

// Redact returns a copy of v with sensitive values replaced by "[REDACTED]".
// Maps and slices are walked recursively and bearer credentials inside
// strings are masked.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return redactString(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if sensitiveKeys[strings.ToLower(k)] {
				out[k] = redacted
				continue
			}
			out[k] = Redact(child)
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if sensitiveKeys[strings.ToLower(k)] {
				out[k] = redacted
				continue
			}
			out[k] = redactString(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = Redact(elem)
		}
		return out
	default:
		return v
	}
}

func redactString(s string) string {
	if !strings.Contains(strings.ToLower(s), "bearer") {
		return s
	}
	return bearerRe.ReplaceAllString(s, "Bearer "+redacted)
}
