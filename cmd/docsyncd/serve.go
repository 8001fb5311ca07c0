package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/c0deZ3R0/go-docsync/remote/httpdoc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an in-memory remote document server",
	Long: `Serve starts the in-memory document server speaking the wire API
the engine syncs against. Data lives in memory only; this is meant for
development and integration testing, not production.`,
	RunE: serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("listen", ":8080", "listen address")
	viper.BindPFlag("listen", f.Lookup("listen"))
}

func serve(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	addr := viper.GetString("listen")

	srv := &http.Server{
		Addr:    addr,
		Handler: httpdoc.NewServer().Handler(),
		// No WriteTimeout: watch responses stream indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("document server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
