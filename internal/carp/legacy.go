package carp

import (
	"strconv"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

const (
	legacySeparator = "<--->"
	legacyErrorHead = "[ERROR]"
)

// ParseLegacyErrors reads the plain-text error report older compilers print
// for a check: blocks separated by "<--->", each starting with "[ERROR]"
// followed by "path:line:column message". Blocks that do not match are
// skipped. Each error becomes its own publication, in output order.
func ParseLegacyErrors(text string) []protocol.PublishDiagnosticsParams {
	var out []protocol.PublishDiagnosticsParams
	for _, block := range strings.Split(text, legacySeparator) {
		block = strings.TrimSpace(strings.ReplaceAll(block, "\r\n", "\n"))
		rest, ok := strings.CutPrefix(block, legacyErrorHead)
		if !ok {
			continue
		}
		rest = strings.TrimLeft(rest, " \t\n")
		location, message := rest, ""
		if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
			location, message = rest[:i], rest[i+1:]
		}
		path, line, column, ok := splitLocation(location)
		if !ok {
			continue
		}
		start := protocol.Position{Line: uint32(line - 1), Character: uint32(column)}
		end := protocol.Position{Line: start.Line, Character: start.Character + 1}
		out = append(out, protocol.PublishDiagnosticsParams{
			URI: uri.File(path),
			Diagnostics: []protocol.Diagnostic{{
				Range:    protocol.Range{Start: start, End: end},
				Severity: protocol.DiagnosticSeverityError,
				Source:   "carp",
				Message:  strings.TrimSpace(message),
			}},
		})
	}
	return out
}

// splitLocation splits "path:line:column" from the right so paths that
// contain colons survive.
func splitLocation(s string) (string, int, int, bool) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", 0, 0, false
	}
	column, err := strconv.Atoi(s[i+1:])
	if err != nil || column < 0 {
		return "", 0, 0, false
	}
	s = s[:i]
	j := strings.LastIndexByte(s, ':')
	if j <= 0 {
		return "", 0, 0, false
	}
	line, err := strconv.Atoi(s[j+1:])
	if err != nil || line < 1 {
		return "", 0, 0, false
	}
	return s[:j], line, column, true
}
