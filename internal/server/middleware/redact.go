package middleware

import (
	"encoding/json"
	"mime"
	"net/url"
	"strings"
)

// RedactedValue replaces sensitive fields in logged request bodies.
const RedactedValue = "[REDACTED]"

// redactedFields are matched case-insensitively at any depth.
var redactedFields = map[string]struct{}{
	"password":      {},
	"token":         {},
	"authorization": {},
}

func isRedactedField(name string) bool {
	_, ok := redactedFields[strings.ToLower(name)]
	return ok
}

// Redact returns a copy of v with every redacted field replaced by
// RedactedValue. Maps and slices are copied; v is never modified.
func Redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if isRedactedField(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = Redact(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = Redact(child)
		}
		return out
	default:
		return v
	}
}

// RedactBody decodes body according to contentType and returns a redacted
// value suitable for logging. Bodies that cannot be decoded are summarized by
// size only, so their contents never reach the log.
func RedactBody(contentType string, body []byte) any {
	if len(body) == 0 {
		return nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			break
		}
		form := make(map[string]any, len(values))
		for k, vs := range values {
			if isRedactedField(k) {
				form[k] = RedactedValue
				continue
			}
			if len(vs) == 1 {
				form[k] = vs[0]
			} else {
				form[k] = vs
			}
		}
		return form
	case mediaType == "" || mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			return Redact(decoded)
		}
	}

	return map[string]any{"unparsed_bytes": len(body)}
}
