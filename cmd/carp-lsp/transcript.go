package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/carplsp/internal/transcript"
)

func newTranscriptCmd() *cobra.Command {
	var asJSON bool
	var dir string
	cmd := &cobra.Command{
		Use:   "transcript FILE",
		Short: "Print a transcript written by --transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := transcript.ReadFile(args[0])
			if err != nil {
				return err
			}
			return printTranscript(cmd.OutOrStdout(), entries, dir, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON entry per line")
	cmd.Flags().StringVar(&dir, "dir", "", "only show entries in this direction: in|out")
	return cmd
}

func printTranscript(out io.Writer, entries []transcript.Entry, dir string, asJSON bool) error {
	dir = strings.TrimSpace(dir)
	if dir != "" && dir != transcript.DirCommand && dir != transcript.DirFrame {
		return fmt.Errorf("invalid --dir %q (expected %s|%s)", dir, transcript.DirCommand, transcript.DirFrame)
	}
	if asJSON {
		enc := json.NewEncoder(out)
		for _, e := range entries {
			if dir != "" && e.Dir != dir {
				continue
			}
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSEQ\tDIR\tTEXT")
	for _, e := range entries {
		if dir != "" && e.Dir != dir {
			continue
		}
		text := strings.ReplaceAll(strings.TrimRight(e.Text, "\n"), "\n", `\n`)
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Time.Format(time.RFC3339Nano), e.Seq, e.Dir, text)
	}
	return tw.Flush()
}
