package lsp

import (
	"sort"
	"sync"

	"go.lsp.dev/protocol"
)

// DiagnosticStore keeps the diagnostics last published per document. A new
// publication for a document replaces what was there.
type DiagnosticStore struct {
	mu   sync.Mutex
	docs map[protocol.DocumentURI][]protocol.Diagnostic
}

func NewDiagnosticStore() *DiagnosticStore {
	return &DiagnosticStore{docs: make(map[protocol.DocumentURI][]protocol.Diagnostic)}
}

// Apply merges pubs by document, in first-seen order, and replaces each
// document's set. Every document in always is included even when no
// publication mentions it, which clears it. The returned publications are
// what the editor should be sent.
func (s *DiagnosticStore) Apply(pubs []protocol.PublishDiagnosticsParams, always ...protocol.DocumentURI) []protocol.PublishDiagnosticsParams {
	var order []protocol.DocumentURI
	merged := make(map[protocol.DocumentURI][]protocol.Diagnostic)
	add := func(doc protocol.DocumentURI, diags []protocol.Diagnostic) {
		if _, ok := merged[doc]; !ok {
			order = append(order, doc)
			merged[doc] = []protocol.Diagnostic{}
		}
		merged[doc] = append(merged[doc], diags...)
	}
	for _, pub := range pubs {
		add(DocumentURI(string(pub.URI)), pub.Diagnostics)
	}
	for _, doc := range always {
		add(doc, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.PublishDiagnosticsParams, 0, len(order))
	for _, doc := range order {
		diags := merged[doc]
		if len(diags) == 0 {
			delete(s.docs, doc)
		} else {
			s.docs[doc] = diags
		}
		out = append(out, protocol.PublishDiagnosticsParams{URI: doc, Diagnostics: diags})
	}
	return out
}

// Clear forgets a document and returns the empty publication that clears it
// in the editor.
func (s *DiagnosticStore) Clear(doc protocol.DocumentURI) protocol.PublishDiagnosticsParams {
	s.mu.Lock()
	delete(s.docs, doc)
	s.mu.Unlock()
	return protocol.PublishDiagnosticsParams{URI: doc, Diagnostics: []protocol.Diagnostic{}}
}

// Get returns the current diagnostics for a document.
func (s *DiagnosticStore) Get(doc protocol.DocumentURI) []protocol.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Diagnostic(nil), s.docs[doc]...)
}

// Documents lists documents that currently have diagnostics.
func (s *DiagnosticStore) Documents() []protocol.DocumentURI {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.DocumentURI, 0, len(s.docs))
	for doc := range s.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
