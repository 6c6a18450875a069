package llm

import "testing"

func TestStripCodeFence(t *testing.T) {
	const body = `{"products": []}`

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unfenced", body, body},
		{"unfenced with whitespace", "\n  " + body + "  \n", body},
		{"fenced with language", "```json\n" + body + "\n```", body},
		{"fenced without language", "```\n" + body + "\n```", body},
		{"leading fence only", "```json\n" + body, body},
		{"trailing fence only", body + "\n```", body},
		{"single line fence", "```json " + body + "```", body},
		{"surrounding blank lines", "\n\n```json\n" + body + "\n```\n\n", body},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFence(tt.in); got != tt.want {
				t.Fatalf("StripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
