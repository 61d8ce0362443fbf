// cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"meal-scale/internal/link"
	"meal-scale/internal/server"
	"meal-scale/internal/storage"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		host       string
		port       int
		dbPath     string
		linkListen string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the companion: link receiver, meal store and HTTP/MCP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("host") {
				a.cfg.Server.Host = host
			}
			if flags.Changed("port") {
				a.cfg.Server.Port = port
			}
			if flags.Changed("db-path") {
				a.cfg.Server.DBPath = dbPath
			}
			if flags.Changed("link-listen") {
				a.cfg.Server.LinkListen = linkListen
			}
			cfg, err := a.validated()
			if err != nil {
				return err
			}
			groups, err := a.groups()
			if err != nil {
				return err
			}
			loc := a.location()

			store, err := storage.NewSQLiteStorage(cfg.Server.DBPath)
			if err != nil {
				return fmt.Errorf("open meal store: %w", err)
			}
			defer store.Close()

			srv, err := server.NewMealLogServer(&server.Config{
				Host:     cfg.Server.Host,
				Port:     cfg.Server.Port,
				Location: loc,
				Version:  Version,
			}, store, groups, a.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 2)
			go func() {
				errCh <- srv.Start(ctx)
			}()

			if cfg.Server.LinkListen != "" {
				recv := &link.Receiver{Sink: store, Groups: groups, Location: loc, Logger: a.logger}
				go func() {
					errCh <- recv.ListenAndServe(ctx, cfg.Server.LinkListen)
				}()
			}

			var runErr error
			select {
			case <-ctx.Done():
				a.logger.Info("received shutdown signal")
			case runErr = <-errCh:
				if runErr != nil {
					a.logger.Error("server error", "error", runErr)
				}
			}

			a.logger.Info("shutting down")
			stop()
			if err := srv.Stop(); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("error during shutdown", "error", err)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "HTTP listen host (server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP listen port (server.port)")
	cmd.Flags().StringVar(&dbPath, "db-path", "", "SQLite database path (server.db_path)")
	cmd.Flags().StringVar(&linkListen, "link-listen", "", "address for scale link connections (server.link_listen)")
	return cmd
}
