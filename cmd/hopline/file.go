package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func fileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Remote file operations (§4.7 file RPC façade)",
	}
	cmd.AddCommand(
		fileLsCmd(),
		fileStatCmd(),
		fileGetCmd(),
		filePutCmd(),
		fileRmCmd(),
		fileMvCmd(),
		fileLnCmd(),
		fileMkdirCmd(),
	)
	return cmd
}

func fileStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat [id] [path]",
		Short: "Show size/modification-time metadata for a remote path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client().Stat(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("size=%d mtime=%s\n", st.Size, time.Unix(st.MTime, 0).Format(time.RFC3339))
			return nil
		},
	}
}

func fileLsCmd() *cobra.Command {
	var byDate bool
	cmd := &cobra.Command{
		Use:   "ls [id] [path]",
		Short: "List a remote directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := client().ListFiles(args[0], args[1], byDate)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDIR\tSIZE\tMODIFIED")
			for _, f := range files {
				mtime := ""
				if f.ModTime != 0 {
					mtime = time.Unix(f.ModTime, 0).Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%v\t%d\t%s\n", f.Name, f.IsDir, f.Size, mtime)
			}
			w.Flush()
			return nil
		},
	}
	cmd.Flags().BoolVar(&byDate, "by-date", false, "sort by modification date instead of name")
	return cmd
}

func fileGetCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "get [id] [remote-path]",
		Short: "Download a remote file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := client().Download(args[0], args[1])
			if err != nil {
				return err
			}
			if out == "" {
				os.Stdout.Write(content)
				return nil
			}
			return os.WriteFile(out, content, 0o644)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "local path to write to (default: stdout)")
	return cmd
}

func filePutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put [id] [local-path] [remote-path]",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}
			return client().Upload(args[0], args[2], content)
		},
	}
	return cmd
}

func fileRmCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "rm [id] [path]",
		Short: "Remove a remote path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().Delete(args[0], args[1], recursive)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "remove directories recursively")
	return cmd
}

func fileMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv [id] [source] [dest]",
		Short: "Move/rename a remote path",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().Move(args[0], args[1], args[2])
		},
	}
}

func fileLnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ln [id] [source] [symlink]",
		Short: "Create a remote symlink",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().Link(args[0], args[1], args[2])
		},
	}
}

func fileMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir [id] [path]",
		Short: "Create a remote directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().Mkdir(args[0], args[1])
		},
	}
}
