package repl

import (
	"bytes"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

const (
	esc = 0x1b
	bel = 0x07

	// maxHeldEscape bounds how much of an unterminated escape sequence is kept
	// back for the next chunk. Anything longer is malformed; flush it.
	maxHeldEscape = 4096
)

// Sanitizer strips terminal escape sequences from raw output chunks. It keeps
// an escape sequence or a multi-byte rune that is cut off at the end of a
// chunk and completes it with the next one, so the framer never sees a
// fragment of either.
type Sanitizer struct {
	pending []byte
}

// Write sanitizes one chunk and returns the printable text that is safe to
// frame now.
func (s *Sanitizer) Write(chunk []byte) string {
	buf := make([]byte, 0, len(s.pending)+len(chunk))
	buf = append(buf, s.pending...)
	buf = append(buf, chunk...)
	s.pending = nil

	n := flushablePrefixLen(buf)
	if n < len(buf) {
		s.pending = append([]byte(nil), buf[n:]...)
	}
	if n == 0 {
		return ""
	}
	return ansi.Strip(string(buf[:n]))
}

// Flush returns whatever was held back, sanitized as-is.
func (s *Sanitizer) Flush() string {
	rest := s.pending
	s.pending = nil
	if len(rest) == 0 {
		return ""
	}
	return ansi.Strip(string(rest))
}

func flushablePrefixLen(b []byte) int {
	n := escapePrefixLen(b)
	return n - partialRuneLen(b[:n])
}

func escapePrefixLen(b []byte) int {
	last := bytes.LastIndexByte(b, esc)
	if last < 0 {
		return len(b)
	}
	tail := b[last:]
	if len(tail) > maxHeldEscape || escapeComplete(tail) {
		return len(b)
	}
	return last
}

// partialRuneLen returns the length of an incomplete UTF-8 sequence at the
// end of b, or 0.
func partialRuneLen(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if utf8.FullRune(b[len(b)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}

// escapeComplete reports whether seq, which starts with ESC, holds a whole
// escape sequence.
func escapeComplete(seq []byte) bool {
	if len(seq) < 2 {
		return false
	}
	switch seq[1] {
	case '[':
		// CSI: parameters 0x30-0x3F, intermediates 0x20-0x2F, final 0x40-0x7E.
		for _, c := range seq[2:] {
			switch {
			case c >= 0x20 && c <= 0x3f:
				continue
			default:
				return true
			}
		}
		return false
	case ']', 'P', '_', '^', 'X':
		// String sequences end with BEL or ST (ESC \).
		body := seq[2:]
		return bytes.IndexByte(body, bel) >= 0 || bytes.Contains(body, []byte{esc, '\\'})
	}
	if seq[1] >= 0x20 && seq[1] <= 0x2f {
		// nF sequences such as ESC ( B need a final byte after the intermediates.
		for _, c := range seq[2:] {
			if c < 0x20 || c > 0x2f {
				return true
			}
		}
		return false
	}
	return true
}
