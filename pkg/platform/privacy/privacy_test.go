package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	tests := map[string]string{
		"192.168.1.47":                 "192.168.1.0",
		"::ffff:10.1.2.3":              "10.1.2.0",
		"2001:db8:85a3::8a2e:370:7334": "2001:db8:85a3::",
		"":                             "unknown",
		"unknown":                      "unknown",
		"not-an-ip":                    "invalid",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, AnonymizeIP(in))
		})
	}
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+********3344", MaskPhone("+251911223344"))
	assert.Equal(t, "******3344", MaskPhone("0911223344"))
	assert.Equal(t, "****", MaskPhone("123"))
}
