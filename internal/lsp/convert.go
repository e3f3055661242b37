package lsp

import (
	"net/url"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

const fileScheme = uri.FileScheme + "://"

// CarpPosition converts an editor position (zero-based line and character)
// to the compiler's convention: one-based line, zero-based column.
func CarpPosition(pos protocol.Position) (line, column int) {
	return int(pos.Line) + 1, int(pos.Character)
}

// PathFromURI strips the file scheme from a document URI. Other schemes are
// passed through untouched.
func PathFromURI(u protocol.DocumentURI) string {
	s := string(u)
	if !strings.HasPrefix(s, fileScheme) {
		return s
	}
	if _, err := url.ParseRequestURI(s); err != nil {
		return strings.TrimPrefix(s, fileScheme)
	}
	return u.Filename()
}

// DocumentURI normalizes a location reported by the compiler, which may be a
// bare path, into a file URI.
func DocumentURI(s string) protocol.DocumentURI {
	if s == "" || strings.Contains(s, "://") {
		return protocol.DocumentURI(s)
	}
	return uri.File(s)
}
