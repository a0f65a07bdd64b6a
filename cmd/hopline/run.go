package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [id] [cmdline...]",
		Short: "Run a one-shot background command on an open session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			cmdline := joinArgs(args[1:])
			out, status, err := client().RunCommand(id, cmdline)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			os.Stdout.Write(out)
			fmt.Println()
			if status != 0 {
				os.Exit(status)
			}
			return nil
		},
	}
}
