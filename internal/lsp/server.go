// Package lsp adapts the Carp analysis client to the Language Server
// Protocol over a JSON-RPC stream.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/antonkrylov/carplsp/internal/carp"
	"github.com/antonkrylov/carplsp/internal/repl"
)

// LSP error codes outside the JSON-RPC base set.
const (
	CodeRequestCancelled jsonrpc2.Code = -32800
	CodeRequestFailed    jsonrpc2.Code = -32803
)

// Backend answers analysis requests. *carp.Client implements it.
type Backend interface {
	Hover(ctx context.Context, path string, line, column int) (carp.Response[protocol.Hover], error)
	Definition(ctx context.Context, path string, line, column int) (carp.Response[[]protocol.Location], error)
	DocumentSymbols(ctx context.Context, path string) (carp.Response[[]protocol.SymbolInformation], error)
	Completion(ctx context.Context, path string) (carp.Response[[]protocol.CompletionItem], error)
	Validate(ctx context.Context, path string) (carp.Response[[]protocol.PublishDiagnosticsParams], error)
	Quit(ctx context.Context) error
}

type Options struct {
	Backend Backend
	Logger  *slog.Logger
	Name    string
	Version string
	// ShutdownTimeout bounds how long shutdown waits for pending commands
	// before the REPL is released. Default: 10 seconds.
	ShutdownTimeout time.Duration
}

type Server struct {
	opts   Options
	logger *slog.Logger
	store  *DiagnosticStore

	conn         jsonrpc2.Conn
	shuttingDown atomic.Bool
	exited       atomic.Bool
	quitOnce     sync.Once
	quitErr      error
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Name == "" {
		opts.Name = "carp-lsp"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Server{opts: opts, logger: opts.Logger, store: NewDiagnosticStore()}
}

// Diagnostics exposes the per-document diagnostics published so far.
func (s *Server) Diagnostics() *DiagnosticStore { return s.store }

// Serve runs the protocol on rwc until the editor sends exit, the stream
// ends, or ctx is cancelled. The REPL is always asked to quit before Serve
// returns.
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	s.conn = conn

	async := jsonrpc2.AsyncHandler(s.handle)
	conn.Go(ctx, func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		// exit bypasses the request queue so a stuck command cannot hold it.
		if req.Method() == protocol.MethodExit {
			s.exited.Store(true)
			s.logger.Info("exit received")
			err := reply(ctx, nil, nil)
			_ = conn.Close()
			return err
		}
		return async(ctx, reply, req)
	})

	select {
	case <-conn.Done():
	case <-ctx.Done():
		_ = conn.Close()
		<-conn.Done()
	}

	quitCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.quit(quitCtx); err != nil {
		s.logger.Warn("repl quit", "err", err)
	}

	err := conn.Err()
	if s.exited.Load() || ctx.Err() != nil || isClosedStream(err) {
		return nil
	}
	return err
}

func isClosedStream(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed)
}

func (s *Server) quit(ctx context.Context) error {
	s.quitOnce.Do(func() {
		s.quitErr = s.opts.Backend.Quit(ctx)
	})
	return s.quitErr
}

func (s *Server) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	method := req.Method()
	s.logger.Debug("lsp request", "method", method)

	if s.shuttingDown.Load() && isAnalysis(method) {
		return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidRequest, "server is shutting down"))
	}

	switch method {
	case protocol.MethodInitialize:
		return reply(ctx, s.initializeResult(), nil)

	case protocol.MethodInitialized:
		return reply(ctx, nil, nil)

	case protocol.MethodShutdown:
		s.shuttingDown.Store(true)
		quitCtx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.quit(quitCtx); err != nil {
			s.logger.Warn("repl quit on shutdown", "err", err)
		}
		return reply(ctx, nil, nil)

	case protocol.MethodTextDocumentHover:
		var params protocol.HoverParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		line, column := CarpPosition(params.Position)
		resp, err := s.opts.Backend.Hover(ctx, PathFromURI(params.TextDocument.URI), line, column)
		if err != nil {
			return reply(ctx, nil, s.requestError(method, err))
		}
		s.publish(ctx, resp.Diagnostics)
		return reply(ctx, resp.Result, nil)

	case protocol.MethodTextDocumentDefinition:
		var params protocol.DefinitionParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		line, column := CarpPosition(params.Position)
		resp, err := s.opts.Backend.Definition(ctx, PathFromURI(params.TextDocument.URI), line, column)
		if err != nil {
			return reply(ctx, nil, s.requestError(method, err))
		}
		s.publish(ctx, resp.Diagnostics)
		if resp.Result == nil {
			return reply(ctx, nil, nil)
		}
		locations := *resp.Result
		for i := range locations {
			locations[i].URI = DocumentURI(string(locations[i].URI))
		}
		return reply(ctx, locations, nil)

	case protocol.MethodTextDocumentDocumentSymbol:
		var params protocol.DocumentSymbolParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		resp, err := s.opts.Backend.DocumentSymbols(ctx, PathFromURI(params.TextDocument.URI))
		if err != nil {
			return reply(ctx, nil, s.requestError(method, err))
		}
		s.publish(ctx, resp.Diagnostics)
		if resp.Result == nil {
			return reply(ctx, nil, nil)
		}
		symbols := *resp.Result
		for i := range symbols {
			symbols[i].Location.URI = DocumentURI(string(symbols[i].Location.URI))
		}
		return reply(ctx, symbols, nil)

	case protocol.MethodTextDocumentCompletion:
		var params protocol.CompletionParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		resp, err := s.opts.Backend.Completion(ctx, PathFromURI(params.TextDocument.URI))
		if err != nil {
			return reply(ctx, nil, s.requestError(method, err))
		}
		s.publish(ctx, resp.Diagnostics)
		if resp.Result == nil {
			return reply(ctx, nil, nil)
		}
		return reply(ctx, *resp.Result, nil)

	case protocol.MethodTextDocumentDidOpen:
		var params protocol.DidOpenTextDocumentParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		s.validate(ctx, params.TextDocument.URI)
		return reply(ctx, nil, nil)

	case protocol.MethodTextDocumentDidSave:
		var params protocol.DidSaveTextDocumentParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		s.validate(ctx, params.TextDocument.URI)
		return reply(ctx, nil, nil)

	case protocol.MethodTextDocumentDidClose:
		var params protocol.DidCloseTextDocumentParams
		if err := decodeParams(req, &params); err != nil {
			return reply(ctx, nil, err)
		}
		s.notify(ctx, s.store.Clear(DocumentURI(string(params.TextDocument.URI))))
		return reply(ctx, nil, nil)

	case protocol.MethodTextDocumentDidChange:
		// Carp analyses files on disk; unsaved edits are not sent to it.
		return reply(ctx, nil, nil)
	}
	return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
}

func isAnalysis(method string) bool {
	switch method {
	case protocol.MethodTextDocumentHover,
		protocol.MethodTextDocumentDefinition,
		protocol.MethodTextDocumentDocumentSymbol,
		protocol.MethodTextDocumentCompletion:
		return true
	}
	return false
}

func (s *Server) initializeResult() *protocol.InitializeResult {
	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
				Save:      &protocol.SaveOptions{},
			},
			HoverProvider:          true,
			DefinitionProvider:     true,
			DocumentSymbolProvider: true,
			CompletionProvider:     &protocol.CompletionOptions{},
		},
		ServerInfo: &protocol.ServerInfo{Name: s.opts.Name, Version: s.opts.Version},
	}
}

// validate runs a check on a document and publishes the result. The
// validated document is always published so fixed errors disappear.
func (s *Server) validate(ctx context.Context, doc protocol.DocumentURI) {
	if s.shuttingDown.Load() {
		return
	}
	resp, err := s.opts.Backend.Validate(ctx, PathFromURI(doc))
	if err != nil {
		s.logger.Error("validate failed", "uri", string(doc), "err", err)
		return
	}
	for _, pub := range s.store.Apply(carp.Publications(resp), DocumentURI(string(doc))) {
		s.notify(ctx, pub)
	}
}

func (s *Server) publish(ctx context.Context, pubs []protocol.PublishDiagnosticsParams) {
	if len(pubs) == 0 {
		return
	}
	for _, pub := range s.store.Apply(pubs) {
		s.notify(ctx, pub)
	}
}

func (s *Server) notify(ctx context.Context, pub protocol.PublishDiagnosticsParams) {
	if err := s.conn.Notify(ctx, protocol.MethodTextDocumentPublishDiagnostics, pub); err != nil {
		s.logger.Warn("publish diagnostics", "uri", string(pub.URI), "err", err)
	}
}

func (s *Server) requestError(method string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return jsonrpc2.NewError(CodeRequestCancelled, err.Error())
	case errors.Is(err, repl.ErrSessionTerminated), errors.Is(err, repl.ErrCommandTimeout):
		s.logger.Error("request failed", "method", method, "err", err)
		return jsonrpc2.NewError(CodeRequestFailed, err.Error())
	default:
		s.logger.Error("request failed", "method", method, "err", err)
		return jsonrpc2.NewError(jsonrpc2.InternalError, err.Error())
	}
}

func decodeParams(req jsonrpc2.Request, v any) error {
	if err := json.Unmarshal(req.Params(), v); err != nil {
		return jsonrpc2.NewError(jsonrpc2.InvalidParams, fmt.Sprintf("%s: %v", req.Method(), err))
	}
	return nil
}
