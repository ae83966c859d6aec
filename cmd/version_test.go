package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunVersion(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	var buf bytes.Buffer
	if err := runVersion(&buf); err != nil {
		t.Fatalf("runVersion() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "docent "+AppVersion) {
		t.Errorf("output missing version line, got %q", out)
	}
	if strings.Contains(out, "test-key") {
		t.Error("output leaks the API key")
	}
	if !strings.Contains(out, "GEMINI_API_KEY: configured") {
		t.Errorf("output missing key status, got %q", out)
	}
}

func TestRunVersionNoKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	var buf bytes.Buffer
	if err := runVersion(&buf); err != nil {
		t.Fatalf("runVersion() error = %v", err)
	}
	if !strings.Contains(buf.String(), "GEMINI_API_KEY: not set") {
		t.Errorf("expected not-set status, got %q", buf.String())
	}
}
