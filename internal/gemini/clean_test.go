package gemini

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "bare object",
			raw:  `{"category": "通信費"}`,
			want: `{"category": "通信費"}`,
		},
		{
			name: "json fence",
			raw:  "```json\n{\"category\": \"通信費\"}\n```",
			want: `{"category": "通信費"}`,
		},
		{
			name: "plain fence",
			raw:  "```\n[1, 2]\n```",
			want: `[1, 2]`,
		},
		{
			name: "leading prose",
			raw:  "Here is the JSON you asked for:\n{\"total\": 500}",
			want: `{"total": 500}`,
		},
		{
			name: "trailing prose",
			raw:  "{\"total\": 500}\nLet me know if you need anything else.",
			want: `{"total": 500}`,
		},
		{
			name: "whitespace only trimmed",
			raw:  "  not json at all  ",
			want: "not json at all",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.raw); got != tt.want {
				t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	long := strings.Repeat("消", 250)

	got := truncateRunes(long, 200)
	if utf8.RuneCountInString(got) != 200 {
		t.Errorf("rune count = %d, want 200", utf8.RuneCountInString(got))
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a multi-byte rune")
	}

	if got := truncateRunes("短い", 200); got != "短い" {
		t.Errorf("short string changed: %q", got)
	}
}
