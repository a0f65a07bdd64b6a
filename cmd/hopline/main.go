// hopline is the human-facing CLI for the conductor daemon (cmd/hoplined):
// open a hop, list/recover sessions, run one-shot remote commands, and
// drive the file RPC façade. Shape grounded on the teacher's cmd/wt
// (cobra root command, a small per-resource subcommand tree, a thin client
// built from on-disk config).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hopline/conductor/internal/ipc"
)

func defaultSocketPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/hopline.sock"
	}
	return filepath.Join(home, ".hopline", "hopline.sock")
}

var socketPath string

func client() *ipc.Client {
	return ipc.NewClient(socketPath)
}

func main() {
	root := &cobra.Command{
		Use:   "hopline",
		Short: "hopline — remote session conductor CLI",
		Long:  "Drives a hoplined daemon: open remote hops, run commands, and move files over a nested framer-backed session.",
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", defaultSocketPath(), "hoplined control socket")

	root.AddCommand(
		openCmd(),
		sessionsCmd(),
		runCmd(),
		fileCmd(),
		watchCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
