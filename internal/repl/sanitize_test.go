package repl

import (
	"bytes"
	"testing"
)

func TestSanitizerStripsColorCodes(t *testing.T) {
	var s Sanitizer
	got := s.Write([]byte("\x1b[1;31merror\x1b[0m: bad\n"))
	if got != "error: bad\n" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizerHoldsSplitCSI(t *testing.T) {
	var s Sanitizer
	first := s.Write([]byte("abc\x1b[3"))
	if first != "abc" {
		t.Fatalf("first=%q", first)
	}
	second := s.Write([]byte("2mdef"))
	if second != "def" {
		t.Fatalf("second=%q", second)
	}
}

func TestSanitizerHoldsLoneEscape(t *testing.T) {
	var s Sanitizer
	if got := s.Write([]byte("x\x1b")); got != "x" {
		t.Fatalf("got %q", got)
	}
	if got := s.Write([]byte("[0my")); got != "y" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizerHoldsSplitOSC(t *testing.T) {
	var s Sanitizer
	if got := s.Write([]byte("a\x1b]0;tit")); got != "a" {
		t.Fatalf("got %q", got)
	}
	if got := s.Write([]byte("le\x07b")); got != "b" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizerFlushReleasesHeldTail(t *testing.T) {
	var s Sanitizer
	_ = s.Write([]byte("\x1b["))
	if got := s.Flush(); got != "" {
		t.Fatalf("flush=%q", got)
	}
	if got := s.Write([]byte("plain")); got != "plain" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizerKeepsNewlines(t *testing.T) {
	var s Sanitizer
	if got := s.Write([]byte("{\"a\":1}\r\n{\"b\":2}\n")); got != "{\"a\":1}\r\n{\"b\":2}\n" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizerHoldsSplitRune(t *testing.T) {
	out := []byte("{\"doc\":\"café\"}\n--ABCD--")
	cut := bytes.IndexByte(out, 0xc3) + 1
	for _, split := range []int{cut, cut + 1, len(out) - 3} {
		var s Sanitizer
		f := NewFramer("--ABCD--")
		frames := f.Feed(s.Write(out[:split]))
		frames = append(frames, f.Feed(s.Write(out[split:]))...)
		if len(frames) != 1 || frames[0] != "{\"doc\":\"café\"}\n" {
			t.Fatalf("split %d: frames=%q", split, frames)
		}
		got := Classify(frames[0])
		if string(got.Primary) != `{"doc":"café"}` {
			t.Fatalf("split %d: primary=%s", split, got.Primary)
		}
	}
}

func TestSanitizerSplitRuneBeforeColoredSentinel(t *testing.T) {
	var s Sanitizer
	first := s.Write([]byte("\xe2\x82"))
	if first != "" {
		t.Fatalf("first=%q", first)
	}
	second := s.Write([]byte("\xac\x1b[31m--ABCD--\x1b[0m"))
	if second != "€--ABCD--" {
		t.Fatalf("second=%q", second)
	}
}

func TestSanitizerDoesNotHoldInvalidBytes(t *testing.T) {
	var s Sanitizer
	s.Write([]byte("a\xff"))
	if len(s.pending) != 0 {
		t.Fatalf("invalid byte held: %q", s.pending)
	}
	if got := s.Write([]byte("b\xf0\x9f")); got != "b" {
		t.Fatalf("got %q", got)
	}
	if string(s.pending) != "\xf0\x9f" {
		t.Fatalf("pending=%q", s.pending)
	}
}
