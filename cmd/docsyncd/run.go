package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	docsync "github.com/c0deZ3R0/go-docsync"
	"github.com/c0deZ3R0/go-docsync/remote"
	"github.com/c0deZ3R0/go-docsync/remote/httpdoc"
	"github.com/c0deZ3R0/go-docsync/storage/sqlite"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync engine until interrupted",
	Long: `Run starts a sync session for the configured owner: queued local
writes forward to the remote server and remote changes stream back into
the local database. The process runs until SIGINT or SIGTERM.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.String("owner", "", "owner identifier to sync for (required)")
	f.String("remote", "http://localhost:8080", "base URL of the remote document server")
	f.Duration("drain-interval", docsync.DefaultDrainInterval, "pause between queue drain cycles")

	viper.BindPFlag("owner", f.Lookup("owner"))
	viper.BindPFlag("remote", f.Lookup("remote"))
	viper.BindPFlag("drain_interval", f.Lookup("drain-interval"))
}

// fixedAuth emits one owner at startup and never changes. The daemon has
// no interactive sign-in; the owner comes from configuration.
type fixedAuth struct {
	ownerID string
}

func (a fixedAuth) OnAuthStateChanged(fn func(ownerID string)) func() {
	fn(a.ownerID)
	return func() {}
}

func runSync(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	ownerID := viper.GetString("owner")
	if ownerID == "" {
		return fmt.Errorf("--owner is required")
	}

	sc, err := loadSchema()
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}

	store, err := sqlite.New(&sqlite.Config{
		DataSourceName: viper.GetString("db"),
		Schema:         sc,
		EnableWAL:      true,
	})
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer store.Close()

	gateway := remote.NewGateway(httpdoc.NewClient(viper.GetString("remote")))

	engine := docsync.New(sc, store, gateway, &docsync.Options{
		DrainInterval: viper.GetDuration("drain_interval"),
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting sync",
		"owner_id", ownerID,
		"db", viper.GetString("db"),
		"remote", viper.GetString("remote"))

	err = engine.Run(ctx, fixedAuth{ownerID: ownerID})
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}
