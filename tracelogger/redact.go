package tracelogger

import "strings"

const redactionMask = "<<redacted>>"

// redactPayload masks the values of configured keys, recursing through
// nested maps and slices. Keys are compared case-insensitively; the keys
// slice is expected to be lowercased already. Non-map payloads pass
// through untouched.
func redactPayload(payload any, keys []string) any {
	if len(keys) == 0 {
		return payload
	}
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return redactValue(payload, set)
}

func redactValue(value any, keys map[string]struct{}) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if _, ok := keys[strings.ToLower(key)]; ok {
				out[key] = redactionMask
			} else {
				out[key] = redactValue(val, keys)
			}
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if _, ok := keys[strings.ToLower(key)]; ok {
				out[key] = redactionMask
			} else {
				out[key] = val
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(item, keys)
		}
		return out
	default:
		return value
	}
}
