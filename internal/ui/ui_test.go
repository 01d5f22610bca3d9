package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"yes please\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := Confirm(strings.NewReader(tt.in), &out, "Cancel entry 5000000001?")
		if err != nil {
			t.Fatalf("Confirm(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if !strings.Contains(out.String(), "[y/N]") {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestRenderStatus_NoColor(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	for _, s := range []string{"saved", "exited", "cancelled", "draft"} {
		if got := RenderStatus(s); got != s {
			t.Errorf("RenderStatus(%q) = %q", s, got)
		}
	}
}

func TestRenderStatus_Color(t *testing.T) {
	old := noColor
	noColor = false
	defer func() { noColor = old }()

	got := RenderStatus("cancelled")
	if !strings.Contains(got, "\x1b[38;5;167m") || !strings.HasSuffix(got, "\x1b[0m") {
		t.Errorf("RenderStatus(cancelled) = %q", got)
	}
	if RenderMessageType("X") != "X" {
		t.Error("unknown message type should be returned unchanged")
	}
}
