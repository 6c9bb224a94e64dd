package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Sure! Here it is: {"a":1} hope that helps`, `{"a":1}`},
		{"trailing comma", "{\"a\":[1,2,],\n\"b\":2,}", "{\"a\":[1,2],\n\"b\":2}"},
		{"comment", "{\n\"a\": 1, // first\n\"b\": 2\n}", "{\n\"a\": 1,\n\"b\": 2\n}"},
		{"url kept", `{"u": "http://x.io/a"}`, `{"u": "http://x.io/a"}`},
		{"nested", `{"a":{"b":{}}}`, `{"a":{"b":{}}}`},
		{"none", "no json here", ""},
		{"reversed braces", "} {", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}
