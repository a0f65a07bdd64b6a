package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/hopline/conductor/internal/conductor"
	"github.com/hopline/conductor/internal/observer"
)

func watchCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "watch [id]",
		Short: "Follow a session's lifecycle/state events over the observer feed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			url := "ws://" + addr + "/watch"
			return observer.Watch(ctx, url, id, func(ev conductor.Event) {
				fmt.Printf("%s depth=%d %s %s\n", ev.ClientUniqueID, ev.Depth, ev.Kind, ev.Detail)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "observer-addr", "localhost:7777", "hoplined's observer listen address")
	return cmd
}
