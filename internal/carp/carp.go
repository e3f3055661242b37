// Package carp speaks the Carp compiler's analysis vocabulary over a REPL
// session and decodes its answers into LSP protocol types.
package carp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.lsp.dev/protocol"

	"github.com/antonkrylov/carplsp/internal/repl"
)

// QuitCommand asks the REPL to exit.
const QuitCommand = "(quit)"

// Executor runs one command on a REPL. *repl.Session implements it.
type Executor interface {
	Execute(ctx context.Context, command string) (repl.Frame, error)
	Quit(ctx context.Context, command string) error
}

// Response is the decoded answer to one analysis command. Result is nil when
// the REPL printed no primary value or it did not decode into T.
type Response[T any] struct {
	Result      *T                                  `json:"response"`
	Diagnostics []protocol.PublishDiagnosticsParams `json:"diagnostics"`
}

type Client struct {
	exec   Executor
	logger *slog.Logger
}

func NewClient(exec Executor, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{exec: exec, logger: logger}
}

// Hover describes the symbol at line (one-based) and column (zero-based).
func (c *Client) Hover(ctx context.Context, path string, line, column int) (Response[protocol.Hover], error) {
	frame, err := c.exec.Execute(ctx, HoverCommand(path, line, column))
	if err != nil {
		return Response[protocol.Hover]{}, err
	}
	return decode(c.logger, frame, decodeJSON[protocol.Hover]), nil
}

// Definition locates where the symbol at line/column is defined.
func (c *Client) Definition(ctx context.Context, path string, line, column int) (Response[[]protocol.Location], error) {
	frame, err := c.exec.Execute(ctx, DefinitionCommand(path, line, column))
	if err != nil {
		return Response[[]protocol.Location]{}, err
	}
	return decode(c.logger, frame, decodeOneOrMany[protocol.Location]), nil
}

func (c *Client) DocumentSymbols(ctx context.Context, path string) (Response[[]protocol.SymbolInformation], error) {
	frame, err := c.exec.Execute(ctx, DocumentSymbolCommand(path))
	if err != nil {
		return Response[[]protocol.SymbolInformation]{}, err
	}
	return decode(c.logger, frame, decodeJSON[[]protocol.SymbolInformation]), nil
}

// Completion lists completion candidates for the file.
func (c *Client) Completion(ctx context.Context, path string) (Response[[]protocol.CompletionItem], error) {
	frame, err := c.exec.Execute(ctx, CompletionCommand(path))
	if err != nil {
		return Response[[]protocol.CompletionItem]{}, err
	}
	return decode(c.logger, frame, decodeCompletions), nil
}

// Validate type checks the file. Publications are gathered from every
// diagnostics-shaped value in the output; older compilers that print
// [ERROR] blocks instead are parsed as a fallback.
func (c *Client) Validate(ctx context.Context, path string) (Response[[]protocol.PublishDiagnosticsParams], error) {
	frame, err := c.exec.Execute(ctx, ValidateCommand(path))
	if err != nil {
		return Response[[]protocol.PublishDiagnosticsParams]{}, err
	}
	resp := decode(c.logger, frame, decodeJSON[[]protocol.PublishDiagnosticsParams])
	if len(resp.Diagnostics) == 0 && resp.Result == nil {
		if legacy := ParseLegacyErrors(frame.Text); len(legacy) > 0 {
			c.logger.Debug("validate: parsed legacy error output", "publications", len(legacy))
			resp.Diagnostics = legacy
		}
	}
	return resp, nil
}

// Publications returns every publication carried by a validate response,
// primary result first.
func Publications(resp Response[[]protocol.PublishDiagnosticsParams]) []protocol.PublishDiagnosticsParams {
	var out []protocol.PublishDiagnosticsParams
	if resp.Result != nil {
		out = append(out, *resp.Result...)
	}
	return append(out, resp.Diagnostics...)
}

// Quit sends (quit) behind any pending commands and releases the process.
func (c *Client) Quit(ctx context.Context) error {
	return c.exec.Quit(ctx, QuitCommand)
}

func HoverCommand(path string, line, column int) string {
	return fmt.Sprintf("(Analysis.text-document/hover %s %d %d)", Quote(path), line, column)
}

func DefinitionCommand(path string, line, column int) string {
	return fmt.Sprintf("(Analysis.text-document/definition %s %d %d)", Quote(path), line, column)
}

func DocumentSymbolCommand(path string) string {
	return fmt.Sprintf("(Analysis.text-document/document-symbol %s)", Quote(path))
}

func CompletionCommand(path string) string {
	return fmt.Sprintf("(Analysis.text-document/completion %s)", Quote(path))
}

func ValidateCommand(path string) string {
	return fmt.Sprintf("(Analysis.validate %s)", Quote(path))
}

var quoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Quote renders s as a Carp string literal. The result never spans lines.
func Quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}

func decode[T any](logger *slog.Logger, frame repl.Frame, result func(json.RawMessage) (T, error)) Response[T] {
	resp := Response[T]{Diagnostics: make([]protocol.PublishDiagnosticsParams, 0, len(frame.Diagnostics))}
	if frame.HasPrimary() {
		v, err := result(frame.Primary)
		if err != nil {
			logger.Debug("dropping undecodable result", "err", err, "bytes", len(frame.Primary))
		} else {
			resp.Result = &v
		}
	}
	for _, raw := range frame.Diagnostics {
		var pub protocol.PublishDiagnosticsParams
		if err := json.Unmarshal(raw, &pub); err != nil {
			logger.Debug("dropping undecodable publication", "err", err)
			continue
		}
		if pub.Diagnostics == nil {
			pub.Diagnostics = []protocol.Diagnostic{}
		}
		resp.Diagnostics = append(resp.Diagnostics, pub)
	}
	return resp
}

func decodeJSON[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

// decodeOneOrMany accepts either a single value or an array of them.
func decodeOneOrMany[T any](raw json.RawMessage) ([]T, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		return decodeJSON[[]T](raw)
	}
	one, err := decodeJSON[T](raw)
	if err != nil {
		return nil, err
	}
	return []T{one}, nil
}

// decodeCompletions accepts a bare item array or a CompletionList.
func decodeCompletions(raw json.RawMessage) ([]protocol.CompletionItem, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		return decodeJSON[[]protocol.CompletionItem](raw)
	}
	list, err := decodeJSON[protocol.CompletionList](raw)
	if err != nil {
		return nil, err
	}
	if list.Items == nil {
		return nil, fmt.Errorf("completion list has no items field")
	}
	return list.Items, nil
}
