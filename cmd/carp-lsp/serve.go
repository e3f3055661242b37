package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/carplsp/internal/lsp"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	flags := &sessionFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the language server on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, flags *sessionFlags) error {
	settings, err := root.resolve(flags)
	if err != nil {
		return err
	}
	logger := root.logger

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := openRuntime(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.start(ctx, settings); err != nil {
		logger.Error("carp repl failed to start; requests will fail", "err", err)
	}

	srv := lsp.NewServer(lsp.Options{
		Backend: rt.client,
		Logger:  logger,
		Version: version,
	})
	logger.Info("language server ready", "version", version, "commit", commit, "build_time", buildTime)
	return srv.Serve(ctx, lsp.Stdio())
}
