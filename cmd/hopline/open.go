package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// openCmd opens a new hop and hands the terminal to a simple line-oriented
// input loop: each line is forwarded as interactive keystrokes over the
// conductor's SendKeys path. The terminal emulator that would normally
// render the framer's responses is a stated external collaborator (§1) the
// daemon owns on the server side; this CLI drives input and otherwise
// points the user at `hopline watch` for the observable event stream.
func openCmd() *cobra.Command {
	var run string

	cmd := &cobra.Command{
		Use:   "open [sshargs...]",
		Short: "Open a new remote hop",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sshargs := joinArgs(args)
			sum, err := client().OpenSession(sshargs)
			if err != nil {
				return fmt.Errorf("open session: %w", err)
			}
			fmt.Printf("opened %s (%s)\n", sum.ClientUniqueID, sum.SSHArgs)
			fmt.Println("use `hopline watch " + sum.ClientUniqueID + "` in another terminal to follow lifecycle events")

			if run != "" {
				out, status, err := client().RunCommand(sum.ClientUniqueID, run)
				if err != nil {
					return err
				}
				os.Stdout.Write(out)
				fmt.Println()
				if status != 0 {
					return fmt.Errorf("command exited %d", status)
				}
				return nil
			}

			fmt.Println("type lines to send as keystrokes; Ctrl-D to detach (the session keeps running)")
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if err := client().SendKeys(sum.ClientUniqueID, append(scanner.Bytes(), '\n')); err != nil {
					return fmt.Errorf("send keys: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&run, "run", "", "run one command non-interactively instead of attaching stdin")
	return cmd
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}
