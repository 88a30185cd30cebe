package sandbox

import (
	"encoding/json"
	"io"
	"strings"

	"codegrade/internal/execution/model"
)

// encodeInput serialises a test case input for the child's stdin. Inputs are
// always JSON so the harness and stdin-mode programs share one wire format.
func encodeInput(input model.Value) ([]byte, error) {
	if input == nil {
		return nil, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	raw = append(raw, '\n')
	return raw, nil
}

// sanitizeOutput decodes captured bytes permissively. Invalid UTF-8 is
// replaced rather than failing the case, and surrounding whitespace is
// trimmed the way judges conventionally do.
func sanitizeOutput(raw []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), "�"))
}

// limitWriter keeps at most limit bytes and silently discards the rest, so a
// runaway print loop cannot exhaust memory.
type limitWriter struct {
	dst   io.Writer
	limit int64
	n     int64
}

func newLimitWriter(dst io.Writer, limit int64) *limitWriter {
	return &limitWriter{dst: dst, limit: limit}
}

func (w *limitWriter) Write(p []byte) (int, error) {
	total := len(p)
	if w.n >= w.limit {
		return total, nil
	}
	if remaining := w.limit - w.n; int64(total) > remaining {
		p = p[:remaining]
	}
	written, err := w.dst.Write(p)
	w.n += int64(written)
	if err != nil {
		return written, err
	}
	return total, nil
}
