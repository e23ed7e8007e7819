package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"voxcanvas/internal/realtime"
	"voxcanvas/internal/session"
)

func sessionsClient(cfg *Config) (*realtime.SessionsClient, error) {
	base, err := realtime.HTTPBase(cfg.URL)
	if err != nil {
		return nil, err
	}
	return realtime.NewSessionsClient(base, nil), nil
}

func newSessionsCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List persisted sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := sessionsClient(cfg)
			if err != nil {
				return err
			}
			list, err := c.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), list)
			return nil
		},
	}
}

func newLoadCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "load <name>",
		Short: "Print the history of a persisted session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := sessionsClient(cfg)
			if err != nil {
				return err
			}
			entries, err := c.FetchSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
}

func newExportCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the current session archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := sessionsClient(cfg)
			if err != nil {
				return err
			}
			path, err := c.Export(cmd.Context(), cfg.ExportDir, "session")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfg.ExportDir, "out", "o", cfg.ExportDir, "directory to write the archive to")
	return cmd
}

func printSessions(w io.Writer, list []realtime.SessionInfo) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODIFIED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Modified)
	}
	tw.Flush()
}

func printHistory(w io.Writer, entries []session.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "Empty session.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTIMESTAMP\tQUESTION\tIMAGE")
	for i, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, e.Timestamp, e.Question, e.ArtifactRef)
	}
	tw.Flush()
}
