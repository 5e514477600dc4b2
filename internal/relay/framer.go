package relay

import (
	"errors"
	"unicode/utf8"
)

// DefaultMaxLineBytes bounds the unterminated fragment a LineFramer will hold.
const DefaultMaxLineBytes = 1 << 20

var (
	// ErrLineTooLong is returned when an unterminated line outgrows the
	// framer's limit. The pending bytes are discarded.
	ErrLineTooLong = errors.New("line exceeds maximum length")
	// ErrInvalidEncoding is returned when a complete line is not valid UTF-8.
	ErrInvalidEncoding = errors.New("line is not valid utf-8")
)

// LineFramer turns a byte stream into newline-delimited lines.
//
// Any character of the newline class (LF, VT, FF, CR, NEL, LS, PS) ends a
// line. Empty lines are dropped; whitespace-only lines are not. The
// unterminated tail is kept for the next Feed, so the sequence of lines does
// not depend on how the stream was chunked. A LineFramer is owned by a single
// reader and is not safe for concurrent use.
type LineFramer struct {
	buf     []byte
	scanned int
	max     int
}

func NewLineFramer(maxLineBytes int) *LineFramer {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &LineFramer{max: maxLineBytes}
}

// Feed appends p and returns every complete, non-empty line now available.
// Lines extracted before an error are still returned alongside it.
func (f *LineFramer) Feed(p []byte) ([]string, error) {
	f.buf = append(f.buf, p...)

	var (
		lines []string
		err   error
	)
	start := 0
	i := f.scanned
scan:
	for i < len(f.buf) {
		b := f.buf[i]
		if b < utf8.RuneSelf {
			if isNewlineByte(b) {
				if i > start {
					line := f.buf[start:i]
					if !utf8.Valid(line) {
						err = ErrInvalidEncoding
						break scan
					}
					lines = append(lines, string(line))
				}
				i++
				start = i
				continue
			}
			i++
			continue
		}
		if !utf8.FullRune(f.buf[i:]) {
			// Partial multi-byte sequence at the tail; wait for more input.
			break
		}
		r, size := utf8.DecodeRune(f.buf[i:])
		if isNewlineRune(r) {
			if i > start {
				line := f.buf[start:i]
				if !utf8.Valid(line) {
					err = ErrInvalidEncoding
					break scan
				}
				lines = append(lines, string(line))
			}
			i += size
			start = i
			continue
		}
		i += size
	}

	if err != nil {
		f.Reset()
		return lines, err
	}

	f.buf = append(f.buf[:0], f.buf[start:]...)
	f.scanned = i - start
	if len(f.buf) > f.max {
		f.Reset()
		return lines, ErrLineTooLong
	}
	return lines, nil
}

// Pending returns the number of buffered bytes not yet resolved into a line.
func (f *LineFramer) Pending() int { return len(f.buf) }

// Reset discards any buffered partial line.
func (f *LineFramer) Reset() {
	f.buf = f.buf[:0]
	f.scanned = 0
}

func isNewlineByte(b byte) bool {
	switch b {
	case '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func isNewlineRune(r rune) bool {
	switch r {
	case '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}
