package main

import (
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	cliconfig "github.com/antonkrylov/carplsp/internal/cli/config"
)

var (
	version   = "dev"
	commit    = ""
	buildTime = ""
)

type rootOptions struct {
	configPath  string
	profileName string
	logLevel    string
	verbose     bool
	logJSON     bool
	logger      *slog.Logger
}

func (r *rootOptions) prepare() error {
	r.logger = newLogger(os.Stderr, r.logLevel, r.verbose, r.logJSON)
	return nil
}

// resolve turns the root and per-command flags into session settings.
func (r *rootOptions) resolve(flags *sessionFlags) (*cliconfig.Settings, error) {
	o := cliconfig.Overrides{
		ConfigPath:  r.configPath,
		ProfileName: r.profileName,
	}
	if flags != nil {
		o.Executable = flags.executable
		o.PTY = flags.pty
		o.CommandTimeout = flags.commandTimeout
		o.Transcript = flags.transcript
		o.HealthAddr = flags.healthAddr
	}
	return cliconfig.ResolveSettings(o)
}

type sessionFlags struct {
	executable     string
	pty            bool
	commandTimeout time.Duration
	transcript     string
	healthAddr     string
	stdio          bool
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.executable, "executable", "", "carp executable (overrides profile and CARP_LSP_EXECUTABLE)")
	cmd.Flags().BoolVar(&f.pty, "pty", false, "run the REPL on a pseudo-terminal")
	cmd.Flags().DurationVar(&f.commandTimeout, "command-timeout", 0, "fail a command and end the session when its prompt does not return in time; 0 waits forever")
	cmd.Flags().StringVar(&f.transcript, "transcript", "", "write a zstd-compressed JSONL transcript of the REPL traffic")
	cmd.Flags().StringVar(&f.healthAddr, "health-addr", "", "serve gRPC health checks for the REPL on this address")
	// Editors pass --stdio; it is the only transport.
	cmd.Flags().BoolVar(&f.stdio, "stdio", true, "use stdin/stdout for the language server protocol")
	_ = cmd.Flags().MarkHidden("stdio")
}

func main() {
	opts := &rootOptions{}
	serveFlags := &sessionFlags{}
	rootCmd := &cobra.Command{
		Use:           "carp-lsp",
		Short:         "Language server bridge for the Carp REPL",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, serveFlags)
		},
	}
	defaultConfig := os.Getenv("CARP_LSP_CONFIG")
	if defaultConfig == "" {
		defaultConfig = cliconfig.DefaultConfigPath()
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "path to carp-lsp config file (default $HOME/.carp-lsp/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.profileName, "profile", "", "profile name within the config (overrides currentProfile)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable verbose debug logging (same as --log-level=debug)")
	rootCmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "write logs to stderr as JSON")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return opts.prepare()
	}
	serveFlags.register(rootCmd)

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newReplCmd(opts))
	rootCmd.AddCommand(newDoctorCmd())
	rootCmd.AddCommand(newTranscriptCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
