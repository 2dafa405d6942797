package jsonrpc

import "testing"

func TestExtractID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ID
	}{
		{"numeric id", `{"jsonrpc":"2.0","id":42,"method":"m"`, Int64ID(42)},
		{"negative id", `{"id": -7, "method":"m"}`, Int64ID(-7)},
		{"string id", `{"jsonrpc":"2.0","id":"req-9","method"`, StringID("req-9")},
		{"null id", `{"jsonrpc":"2.0","id":null}`, ID{}},
		{"no id field", `{"jsonrpc":"2.0","method":"m"}`, ID{}},
		{"whitespace after colon", `{"id" :   13}`, Int64ID(13)},
		{"truncated after colon", `{"id":`, ID{}},
		{"unterminated string", `{"id":"abc`, ID{}},
		{"garbage value", `{"id":@!}`, ID{}},
		{"empty input", ``, ID{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractID([]byte(tt.raw)); got != tt.want {
				t.Errorf("ExtractID(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}
