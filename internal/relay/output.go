package relay

import (
	"io"
	"strings"
)

type flusher interface {
	Flush() error
}

// WriteLine writes msg terminated by exactly one newline and flushes w when
// it buffers.
func WriteLine(w io.Writer, msg string) error {
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	if _, err := io.WriteString(w, msg); err != nil {
		return err
	}
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// WriteResult routes successes to out and failures to errOut.
func WriteResult(out, errOut io.Writer, r Result) error {
	if r.OK() {
		return WriteLine(out, r.Message)
	}
	return WriteLine(errOut, r.Message)
}
