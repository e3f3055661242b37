package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	cliconfig "github.com/antonkrylov/carplsp/internal/cli/config"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Print local diagnostic information for troubleshooting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			exe, _ := os.Executable()
			exe = strings.TrimSpace(exe)
			look, _ := exec.LookPath("carp-lsp")
			look = strings.TrimSpace(look)

			fmt.Fprintf(out, "carp_lsp_executable=%s\n", exe)
			fmt.Fprintf(out, "carp_lsp_version=%s\n", version)
			if look != "" {
				fmt.Fprintf(out, "carp_lsp_on_path=%s\n", look)
			}
			if exe != "" && look != "" {
				absExe, _ := filepath.EvalSymlinks(exe)
				absLook, _ := filepath.EvalSymlinks(look)
				if absExe != "" && absLook != "" && absExe != absLook {
					fmt.Fprintln(out, "warning=you_are_not_running_the_same_carp-lsp_as_on_PATH (editors usually launch the one on PATH)")
				}
			}
			fmt.Fprintf(out, "PATH=%s\n", os.Getenv("PATH"))
			if env := strings.TrimSpace(os.Getenv("CARP_LSP_EXECUTABLE")); env != "" {
				fmt.Fprintf(out, "CARP_LSP_EXECUTABLE=%s\n", env)
			}

			cfgPath := effectiveConfigPath(cmd)
			fmt.Fprintf(out, "config_path=%s\n", cfgPath)
			cfg, err := cliconfig.Load(cfgPath)
			if err != nil {
				fmt.Fprintf(out, "config_error=%s\n", err.Error())
				return nil
			}
			fmt.Fprintf(out, "config_present=%t\n", cfg != nil)
			if cfg != nil {
				fmt.Fprintf(out, "current_profile=%s\n", strings.TrimSpace(cfg.CurrentProfile))
			}

			for _, name := range cfg.Names() {
				settings, err := cliconfig.ResolveSettings(cliconfig.Overrides{ConfigPath: cfgPath, ProfileName: name})
				if err != nil {
					fmt.Fprintf(out, "profile=%s error=%s\n", name, err.Error())
					continue
				}
				found, lookErr := exec.LookPath(settings.Launch.Executable)
				if lookErr != nil {
					found = "missing"
				}
				fmt.Fprintf(out, "profile=%s executable=%s resolved=%s argv=%q pty=%t command_timeout=%s\n",
					name,
					settings.Launch.Executable,
					found,
					settings.Launch.Argv("<sentinel>"),
					settings.Launch.PTY,
					settings.CommandTimeout,
				)
			}
			return nil
		},
	}
	return cmd
}

func effectiveConfigPath(cmd *cobra.Command) string {
	if cmd != nil && cmd.Root() != nil {
		if v, err := cmd.Root().PersistentFlags().GetString("config"); err == nil && strings.TrimSpace(v) != "" {
			return v
		}
	}
	if v := strings.TrimSpace(os.Getenv("CARP_LSP_CONFIG")); v != "" {
		return v
	}
	return cliconfig.DefaultConfigPath()
}
