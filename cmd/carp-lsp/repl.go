package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/antonkrylov/carplsp/internal/carp"
	"github.com/antonkrylov/carplsp/internal/lsp"
	"github.com/antonkrylov/carplsp/internal/repl"
)

const consoleHelp = `commands:
  :hover FILE LINE COLUMN   type and docs at a position (LINE is 1-based)
  :def FILE LINE COLUMN     definition of the symbol at a position
  :symbols FILE             symbols defined in FILE
  :complete FILE            completion candidates for FILE
  :validate FILE            check FILE and print its diagnostics
  :quit                     quit the REPL and exit
anything else is sent to carp as-is`

func newReplCmd(root *rootOptions) *cobra.Command {
	flags := &sessionFlags{}
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive console against one Carp REPL session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := root.resolve(flags)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := openRuntime(ctx, settings, root.logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.start(ctx, settings); err != nil {
				return err
			}
			// Unblock the line reader on interrupt.
			stop := context.AfterFunc(ctx, func() { _ = os.Stdin.Close() })
			defer stop()

			c := &console{
				exec:    rt.session,
				backend: rt.client,
				out:     cmd.OutOrStdout(),
			}
			if term.IsTerminal(int(os.Stdin.Fd())) {
				c.prompt = "carp> "
				fmt.Fprintln(c.out, "type :help for commands")
			}
			return c.run(ctx, cmd.InOrStdin())
		},
	}
	flags.register(cmd)
	return cmd
}

type console struct {
	exec    carp.Executor
	backend lsp.Backend
	out     io.Writer
	prompt  string
}

// run reads one command per line. On :quit or end of input the REPL is asked
// to quit before run returns.
func (c *console) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		if c.prompt != "" {
			fmt.Fprint(c.out, c.prompt)
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit, err := c.handle(ctx, line)
		if quit {
			return err
		}
		if err != nil {
			if errors.Is(err, repl.ErrSessionTerminated) || ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return c.backend.Quit(ctx)
}

func (c *console) handle(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, ":") {
		frame, err := c.exec.Execute(ctx, line)
		if err != nil {
			return false, err
		}
		if !frame.HasPrimary() && len(frame.Diagnostics) == 0 {
			if frame.Text != "" {
				fmt.Fprintln(c.out, frame.Text)
			}
			return false, nil
		}
		return false, c.print(frame)
	}

	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	switch name {
	case ":quit", ":q":
		return true, c.backend.Quit(ctx)
	case ":help", ":h":
		fmt.Fprintln(c.out, consoleHelp)
		return false, nil
	case ":hover", ":def":
		path, lineNo, column, err := parsePosition(args)
		if err != nil {
			return false, fmt.Errorf("%s: %w", name, err)
		}
		if name == ":hover" {
			resp, err := c.backend.Hover(ctx, path, lineNo, column)
			if err != nil {
				return false, err
			}
			return false, c.print(resp)
		}
		resp, err := c.backend.Definition(ctx, path, lineNo, column)
		if err != nil {
			return false, err
		}
		return false, c.print(resp)
	case ":symbols", ":complete", ":validate":
		if len(args) != 1 {
			return false, fmt.Errorf("%s: expected FILE", name)
		}
		var (
			resp any
			err  error
		)
		switch name {
		case ":symbols":
			resp, err = c.backend.DocumentSymbols(ctx, args[0])
		case ":complete":
			resp, err = c.backend.Completion(ctx, args[0])
		default:
			resp, err = c.backend.Validate(ctx, args[0])
		}
		if err != nil {
			return false, err
		}
		return false, c.print(resp)
	}
	return false, fmt.Errorf("unknown command %s (try :help)", name)
}

func parsePosition(args []string) (string, int, int, error) {
	if len(args) != 3 {
		return "", 0, 0, errors.New("expected FILE LINE COLUMN")
	}
	line, err := strconv.Atoi(args[1])
	if err != nil || line < 1 {
		return "", 0, 0, fmt.Errorf("invalid line %q", args[1])
	}
	column, err := strconv.Atoi(args[2])
	if err != nil || column < 0 {
		return "", 0, 0, fmt.Errorf("invalid column %q", args[2])
	}
	return args[0], line, column, nil
}

func (c *console) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
