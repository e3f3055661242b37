package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antonkrylov/carplsp/internal/transcript"
)

func writeTranscript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl.zst")
	w, err := transcript.Create(path, "s-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w.RecordFrame(0, "Welcome\n")
	w.RecordCommand(1, `(Analysis.validate "a.carp")`)
	w.RecordFrame(1, "{\"diagnostics\":[]}\nline two\n")
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

func TestTranscriptCmdTable(t *testing.T) {
	path := writeTranscript(t)
	var out bytes.Buffer
	cmd := newTranscriptCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "TIME") {
		t.Fatalf("out=%s", out.String())
	}
	if f := strings.Fields(lines[2]); len(f) < 4 || f[1] != "1" || f[2] != "in" || !strings.HasSuffix(lines[2], `(Analysis.validate "a.carp")`) {
		t.Fatalf("command line=%q", lines[2])
	}
	if !strings.Contains(lines[3], `{"diagnostics":[]}\nline two`) {
		t.Fatalf("frame line=%q", lines[3])
	}
}

func TestTranscriptCmdJSONFiltered(t *testing.T) {
	path := writeTranscript(t)
	var out bytes.Buffer
	cmd := newTranscriptCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--json", "--dir", "in", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	var e transcript.Entry
	if err := json.Unmarshal(out.Bytes(), &e); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if e.Seq != 1 || e.Dir != transcript.DirCommand || e.Session != "s-1" {
		t.Fatalf("entry=%+v", e)
	}
}

func TestPrintTranscriptRejectsUnknownDir(t *testing.T) {
	if err := printTranscript(&bytes.Buffer{}, nil, "sideways", false); err == nil {
		t.Fatalf("expected error")
	}
}
