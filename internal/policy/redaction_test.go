package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactPII(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		markers []string
	}{
		{
			name:    "contact details",
			in:      "write to ana@example.org or call +44 20 7946 0958",
			markers: []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]"},
		},
		{
			name:    "card number",
			in:      "pay with 4242 4242 4242 4242 please",
			markers: []string{"[REDACTED_CARD]"},
		},
		{
			name:    "wallet private key",
			in:      "my key is 0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318 ok",
			markers: []string{"[REDACTED_KEY]"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, changed := RedactPII(tc.in)
			assert.True(t, changed)
			for _, m := range tc.markers {
				assert.Contains(t, out, m)
			}
		})
	}
}

func TestRedactPIIKeepsCommands(t *testing.T) {
	for _, in := range []string{"/setSpeed 1.5", "/setGPT 4", "translate to french: good morning"} {
		out, changed := RedactPII(in)
		assert.False(t, changed, in)
		assert.Equal(t, in, out)
	}
}

func TestLogText(t *testing.T) {
	assert.Equal(t, "你好世界…", LogText("你好世界朋友", 4))
	assert.Equal(t, "short", LogText("short", 10))
}
