package repl

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Frame is the classified output of one command.
type Frame struct {
	// Text is the sanitized output, sentinel excluded.
	Text string `json:"-"`
	// Primary is the direct answer to the command, nil when absent.
	Primary json.RawMessage `json:"response"`
	// Diagnostics holds every diagnostics publication, in emission order.
	Diagnostics []json.RawMessage `json:"diagnostics"`
	// Discarded counts lines that were not structured output, plus any
	// structured value beyond the first primary result.
	Discarded int `json:"discarded,omitempty"`
}

// HasPrimary reports whether the frame carries a primary result.
func (f Frame) HasPrimary() bool {
	return len(f.Primary) > 0
}

// Lines splits text into its non-blank lines. A trailing carriage return is
// dropped so pty output splits the same way as pipe output.
func Lines(text string) []string {
	if text == "" {
		return nil
	}
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Classify parses each line of a frame as JSON. Lines that are not a JSON
// object or array are log noise and dropped. Values with a "diagnostics"
// array are diagnostics publications wherever they appear; the first other
// value is the primary result.
func Classify(text string) Frame {
	frame := Frame{Text: text, Diagnostics: []json.RawMessage{}}
	for _, line := range Lines(text) {
		line = strings.TrimSpace(line)
		if !gjson.Valid(line) {
			frame.Discarded++
			continue
		}
		value := gjson.Parse(line)
		if !value.IsObject() && !value.IsArray() {
			frame.Discarded++
			continue
		}
		raw := json.RawMessage(line)
		if IsDiagnosticPublication(value) {
			frame.Diagnostics = append(frame.Diagnostics, raw)
			continue
		}
		if frame.Primary == nil {
			frame.Primary = raw
			continue
		}
		frame.Discarded++
	}
	return frame
}

// IsDiagnosticPublication reports whether value is shaped like a
// publishDiagnostics payload.
func IsDiagnosticPublication(value gjson.Result) bool {
	return value.IsObject() && value.Get("diagnostics").IsArray()
}
