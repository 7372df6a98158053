package audit

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"password", true},
		{"Password", true},
		{"newPassword", true},
		{"access_token", true},
		{"refreshToken", true},
		{"client_secret", true},
		{"clientSecret", true},
		{"otp", true},
		{"OTP", true},
		{"otpCode", true},
		{"otp_code", true},
		{"code", true},
		{"verificationCode", true},
		{"barcode", false},
		{"verificationSessionId", false},
		{"footprint", false},
		{"phoneNumber", false},
		{"note", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSensitiveKey(tt.key))
		})
	}
}

func TestRedactJSON(t *testing.T) {
	t.Run("nested objects and arrays", func(t *testing.T) {
		body := []byte(`{
			"phoneNumber": "+251911223344",
			"credentials": {"password": "hunter2", "hint": "pet"},
			"tokens": [{"access_token": "at"}, {"id": 1}],
			"otp": "123456"
		}`)

		got, ok := RedactJSON(body).(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "+251911223344", got["phoneNumber"])
		assert.Equal(t, RedactedValue, got["otp"])
		assert.Equal(t, RedactedValue, got["tokens"], "a key containing token is redacted as a whole")

		creds := got["credentials"].(map[string]any)
		assert.Equal(t, RedactedValue, creds["password"])
		assert.Equal(t, "pet", creds["hint"])
	})

	t.Run("redacts inside arrays", func(t *testing.T) {
		got := RedactJSON([]byte(`[{"secret":"s"},{"name":"n"}]`)).([]any)
		assert.Equal(t, RedactedValue, got[0].(map[string]any)["secret"])
		assert.Equal(t, "n", got[1].(map[string]any)["name"])
	})

	t.Run("empty body", func(t *testing.T) {
		assert.Nil(t, RedactJSON(nil))
	})

	t.Run("non JSON is summarized", func(t *testing.T) {
		got := RedactJSON([]byte("password=hunter2"))
		assert.Equal(t, map[string]any{"unparsed_bytes": 16}, got)
	})

	t.Run("does not modify the input", func(t *testing.T) {
		in := map[string]any{"password": "p"}
		_ = Redact(in)
		assert.Equal(t, "p", in["password"])
	})
}

func TestRedactQuery(t *testing.T) {
	got := RedactQuery(url.Values{
		"fin":   {"FIN-1"},
		"token": {"abc"},
		"tag":   {"a", "b"},
		"code":  {"authorization-code"},
		"state": {"st-1"},
	})
	assert.Equal(t, "FIN-1", got["fin"])
	assert.Equal(t, RedactedValue, got["code"])
	assert.Equal(t, "st-1", got["state"])
	assert.Equal(t, RedactedValue, got["token"])
	assert.Equal(t, []any{"a", "b"}, got["tag"])
	assert.Nil(t, RedactQuery(nil))
}
