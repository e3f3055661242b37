package repl

import "bytes"

// Framer cuts sanitized output into frames delimited by the session sentinel.
// The sentinel may arrive split across any number of Feed calls.
type Framer struct {
	sentinel []byte
	buf      []byte
}

// NewFramer returns a Framer for the given sentinel.
func NewFramer(sentinel string) *Framer {
	return &Framer{sentinel: []byte(sentinel)}
}

// Feed appends text and returns every frame it completes, in order. A frame is
// the text before the sentinel; text after it starts the next frame.
func (f *Framer) Feed(text string) []string {
	if text == "" {
		return nil
	}
	start := len(f.buf) - len(f.sentinel) + 1
	if start < 0 {
		start = 0
	}
	f.buf = append(f.buf, text...)

	var frames []string
	for {
		idx := bytes.Index(f.buf[start:], f.sentinel)
		if idx < 0 {
			break
		}
		idx += start
		frames = append(frames, string(f.buf[:idx]))
		f.buf = append(f.buf[:0], f.buf[idx+len(f.sentinel):]...)
		start = 0
	}
	return frames
}

// Pending returns the text accumulated since the last frame.
func (f *Framer) Pending() string {
	return string(f.buf)
}
