package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ls"},
		Short:   "List known sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := client().ListSessions()
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			if len(sessions) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDEPTH\tFRAMING\tFRAMED PID\tSSHARGS")
			for _, s := range sessions {
				pid := "-"
				if s.FramedPID != nil {
					pid = fmt.Sprintf("%d", *s.FramedPID)
				}
				fmt.Fprintf(w, "%s\t%d\t%v\t%s\t%s\n", s.ClientUniqueID, s.Depth, s.Framing, pid, s.SSHArgs)
			}
			w.Flush()
			return nil
		},
	}

	close := &cobra.Command{
		Use:   "close [id]",
		Short: "Close a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().CloseSession(args[0]); err != nil {
				return fmt.Errorf("close session: %w", err)
			}
			fmt.Println("closed", args[0])
			return nil
		},
	}
	cmd.AddCommand(close)
	return cmd
}
