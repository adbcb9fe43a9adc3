package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard HTTP API",
	Long: `Starts the tick loop and the log feed and serves the panel API, the SSE
stream and the Prometheus endpoint over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.ListenAddr = addr
		}
		if cmd.Flags().Changed("no-autostart") {
			cfg.AutoStart = false
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		// Background loops outlive the signal context; Close stops them.
		if err := a.startBackground(context.WithoutCancel(ctx)); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           a.panelServer().Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			printBanner(cmd.ErrOrStderr(), srv.Addr)
			logger.Info("panel listening", slog.String("addr", srv.Addr))
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			logger.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("graceful shutdown did not complete", slog.String("error", err.Error()))
				_ = srv.Close()
			}
			logger.Info("panel stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides listen_addr)")
	serveCmd.Flags().Bool("no-autostart", false, "Do not start the tick loop and log feed")
}
