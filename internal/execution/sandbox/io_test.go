package sandbox

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeInput(t *testing.T) {
	raw, err := encodeInput([]interface{}{float64(1), "a"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if string(raw) != "[1,\"a\"]\n" {
		t.Fatalf("unexpected encoding: %q", raw)
	}

	raw, err = encodeInput(nil)
	if err != nil {
		t.Fatalf("encode nil failed: %v", err)
	}
	if raw != nil {
		t.Fatalf("nil input must produce empty stdin, got %q", raw)
	}
}

func TestSanitizeOutput(t *testing.T) {
	if got := sanitizeOutput([]byte("  15\n")); got != "15" {
		t.Fatalf("expected trimmed output, got %q", got)
	}
	if got := sanitizeOutput([]byte{0xff, 'o', 'k'}); !strings.HasSuffix(got, "ok") {
		t.Fatalf("invalid utf-8 must be replaced, got %q", got)
	}
}

func TestLimitWriterCaps(t *testing.T) {
	var buf bytes.Buffer
	w := newLimitWriter(&buf, 4)
	n, err := w.Write([]byte("abcdef"))
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if n != 6 {
		t.Fatalf("writer must report full write, got %d", n)
	}
	if buf.String() != "abcd" {
		t.Fatalf("expected capped output, got %q", buf.String())
	}
	if _, err := w.Write([]byte("gh")); err != nil {
		t.Fatalf("overflow write failed: %v", err)
	}
	if buf.String() != "abcd" {
		t.Fatalf("overflow must be discarded, got %q", buf.String())
	}
}
