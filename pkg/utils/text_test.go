package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"Hallo", 10, "Hallo"},
		{"Hallo Welt", 5, "Hallo..."},
		{"x", 0, "x"},
		{"Grüße aus Köln", 5, "Grüße..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestOneLine(t *testing.T) {
	in := "Conversation with: Anna\n---\n[Anna]:  hi"
	if got := OneLine(in); got != "Conversation with: Anna --- [Anna]: hi" {
		t.Errorf("got %q", got)
	}
}
