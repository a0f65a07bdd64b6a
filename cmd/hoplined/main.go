package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hopline/conductor/internal/ipc"
	"github.com/hopline/conductor/internal/logger"
	"github.com/hopline/conductor/internal/observer"
	"github.com/hopline/conductor/internal/registry"
)

func defaultSocketPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/hopline.sock"
	}
	return filepath.Join(home, ".hopline", "hopline.sock")
}

func main() {
	var (
		socketPath   string
		sessionsDir  string
		observerAddr string
		logLevel     string
		logFile      string
		persistEvery time.Duration
	)

	root := &cobra.Command{
		Use:   "hoplined",
		Short: "hopline session daemon",
		Long:  "Owns a tree of remote-session conductors so a hopline CLI invocation can disconnect and reattach.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logLevel, logFile); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			if sessionsDir == "" {
				dir, err := registry.SessionsDir()
				if err != nil {
					return err
				}
				sessionsDir = dir
			}
			reg, err := registry.New(sessionsDir)
			if err != nil {
				return err
			}

			var hub *observer.Hub
			if observerAddr != "" {
				hub = observer.NewHub(logger.Log)
			}

			d := NewDaemon(reg, hub, logger.Log)

			recovered, loadErrs := reg.LoadAll()
			for _, err := range loadErrs {
				logger.Warn("hoplined: session load error", "error", err)
			}
			for _, c := range recovered {
				d.adopt(c)
				logger.Info("hoplined: recovered session armed for reconnect", "id", c.ClientUniqueID)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			srv := ipc.NewServer(d, socketPath, logger.Log)

			var observerSrv *http.Server
			if hub != nil {
				mux := http.NewServeMux()
				mux.Handle("/watch", hub)
				observerSrv = &http.Server{Addr: observerAddr, Handler: mux}
				go func() {
					logger.Info("hoplined: observer listening", "addr", observerAddr)
					if err := observerSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("hoplined: observer server", "error", err)
					}
				}()
			}

			ticker := time.NewTicker(persistEvery)
			defer ticker.Stop()
			go func() {
				for {
					select {
					case <-ticker.C:
						if err := reg.PersistAll(); err != nil {
							logger.Warn("hoplined: periodic persist failed", "error", err)
						}
					case <-ctx.Done():
						return
					}
				}
			}()

			logger.Info("hoplined: listening", "socket", socketPath)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe(ctx) }()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					logger.Error("hoplined: ipc server exited", "error", err)
				}
			}

			if observerSrv != nil {
				shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				observerSrv.Shutdown(shutCtx)
				cancel()
			}
			if err := reg.PersistAll(); err != nil {
				logger.Warn("hoplined: final persist failed", "error", err)
			}
			logger.Info("hoplined: shut down")
			return nil
		},
	}

	root.Flags().StringVar(&socketPath, "socket", defaultSocketPath(), "unix socket for the control API")
	root.Flags().StringVar(&sessionsDir, "sessions-dir", "", "directory to persist session snapshots (default ~/.hopline/sessions)")
	root.Flags().StringVar(&observerAddr, "observer-addr", ":7777", "address to serve the WebSocket observer feed on (empty disables it)")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.Flags().StringVar(&logFile, "log-file", "", "additional log file (stdout is always on)")
	root.Flags().DurationVar(&persistEvery, "persist-interval", 30*time.Second, "how often to flush session snapshots to disk")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
