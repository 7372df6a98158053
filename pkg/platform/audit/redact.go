package audit

import (
	"encoding/json"
	"net/url"
	"strings"
	"unicode"
)

// RedactedValue replaces the value of every sensitive field.
const RedactedValue = "[REDACTED]"

// sensitiveWords match anywhere inside a key segment; otpWord must start one.
var sensitiveWords = []string{"password", "passwd", "token", "secret"}

const otpWord = "otp"

// codeWord must be a whole key segment. It covers one-time codes and OAuth
// authorization codes.
const codeWord = "code"

// IsSensitiveKey reports whether a field name looks like it holds a secret.
// Keys are split into words on punctuation and camel case, so
// "access_token", "clientSecret", "otpCode" and "code" match but "footprint"
// and "barcode" do not.
func IsSensitiveKey(key string) bool {
	for _, word := range splitWords(key) {
		if word == codeWord || strings.HasPrefix(word, otpWord) {
			return true
		}
		for _, s := range sensitiveWords {
			if strings.Contains(word, s) {
				return true
			}
		}
	}
	return false
}

func splitWords(key string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(key)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

// Redact returns a copy of v with sensitive map keys replaced at any depth.
// v is expected to be a decoded JSON value.
func Redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Redact(val)
		}
		return out
	default:
		return v
	}
}

// RedactJSON decodes body and redacts it. Bodies that are not JSON are
// summarized instead of stored, since their fields cannot be inspected.
func RedactJSON(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return map[string]any{"unparsed_bytes": len(body)}
	}
	return Redact(decoded)
}

// RedactQuery converts query parameters into a redacted map. Single values
// are kept as strings.
func RedactQuery(values url.Values) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, vs := range values {
		switch {
		case IsSensitiveKey(k):
			out[k] = RedactedValue
		case len(vs) == 1:
			out[k] = vs[0]
		default:
			list := make([]any, len(vs))
			for i, v := range vs {
				list[i] = v
			}
			out[k] = list
		}
	}
	return out
}
