package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello there", "hello there"},
		{"strips name prefix", "Ladle: hello there", "hello there"},
		{"name prefix case insensitive", "ladle: hi", "hi"},
		{"strips double quotes", `"hello there"`, "hello there"},
		{"strips single quotes", "'hello there'", "hello there"},
		{"prefix then quotes", `Ladle: "hello there"`, "hello there"},
		{"nested quotes", `"'hello'"`, "hello"},
		{"inner quotes kept", `say "cheese" now`, `say "cheese" now`},
		{"whitespace trimmed", "  hi  ", "hi"},
		{"lone quote kept", `"`, `"`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanResponse("Ladle", tt.in))
		})
	}
}
