package repl

import (
	"strings"
	"testing"
)

func TestClassifyDiagnosticsOnly(t *testing.T) {
	pub := `{"uri":"file:///a.carp","diagnostics":[{"message":"boom"}]}`
	frame := Classify(pub + "\n")
	if frame.HasPrimary() {
		t.Fatalf("unexpected primary %s", frame.Primary)
	}
	if len(frame.Diagnostics) != 1 || string(frame.Diagnostics[0]) != pub {
		t.Fatalf("diagnostics=%q", frame.Diagnostics)
	}
}

func TestClassifyPrimaryThenDiagnostics(t *testing.T) {
	pub := `{"uri":"file:///a.carp","diagnostics":[]}`
	frame := Classify("{\"foo\":1}\n" + pub + "\n")
	if string(frame.Primary) != `{"foo":1}` {
		t.Fatalf("primary=%s", frame.Primary)
	}
	if len(frame.Diagnostics) != 1 || string(frame.Diagnostics[0]) != pub {
		t.Fatalf("diagnostics=%q", frame.Diagnostics)
	}
}

func TestClassifyDiagnosticsBeforePrimary(t *testing.T) {
	frame := Classify(`{"diagnostics":[]}` + "\n" + `{"contents":"x"}` + "\n")
	if string(frame.Primary) != `{"contents":"x"}` {
		t.Fatalf("primary=%s", frame.Primary)
	}
	if len(frame.Diagnostics) != 1 {
		t.Fatalf("diagnostics=%q", frame.Diagnostics)
	}
}

func TestClassifyEmpty(t *testing.T) {
	frame := Classify("")
	if frame.HasPrimary() || frame.Diagnostics == nil || len(frame.Diagnostics) != 0 {
		t.Fatalf("frame=%+v", frame)
	}
}

func TestClassifyDropsNoise(t *testing.T) {
	text := strings.Join([]string{
		"Loading file...",
		"{not json",
		"42",
		`"string"`,
		"null",
		`[{"name":"main"}]`,
		`{"second":true}`,
	}, "\n")
	frame := Classify(text)
	if string(frame.Primary) != `[{"name":"main"}]` {
		t.Fatalf("primary=%s", frame.Primary)
	}
	if frame.Discarded != 6 {
		t.Fatalf("discarded=%d", frame.Discarded)
	}
}

func TestClassifyMultiplePublicationsKeptInOrder(t *testing.T) {
	first := `{"uri":"file:///a","diagnostics":[{"message":"1"}]}`
	second := `{"uri":"file:///a","diagnostics":[]}`
	frame := Classify(first + "\r\n" + second + "\r\n")
	if len(frame.Diagnostics) != 2 || string(frame.Diagnostics[0]) != first || string(frame.Diagnostics[1]) != second {
		t.Fatalf("diagnostics=%q", frame.Diagnostics)
	}
}

func TestClassifyDiagnosticsFieldMustBeArray(t *testing.T) {
	frame := Classify(`{"diagnostics":"none"}`)
	if !frame.HasPrimary() || len(frame.Diagnostics) != 0 {
		t.Fatalf("frame=%+v", frame)
	}
}

func TestLines(t *testing.T) {
	got := Lines("a\r\n\n  \nb\n")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("lines=%q", got)
	}
	if Lines("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}
