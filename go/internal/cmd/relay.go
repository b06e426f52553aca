package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/dbconfig"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/outbox"
)

func newRelayCommand(rootOpts *RootOptions) *cobra.Command {
	var healthAddr string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay lifting events from the outbox to JetStream",
		Long: `Listen for new rows in the lifting outbox and publish them to the
MEET_EVENTS JetStream stream, sweeping for missed rows on an interval.

Example:
  NATS_URL=nats://scoreboard:4222 powermeet relay`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd.Context(), rootOpts, healthAddr)
		},
	}
	cmd.Flags().StringVar(&healthAddr, "health-addr", ":8081", "Address for the relay health endpoint, empty to disable")
	return cmd
}

func runRelay(parent context.Context, opts *RootOptions, healthAddr string) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := dbconfig.NewConfigFromEnv()
	db, err := setupDatabase(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	natsURL := cfg.NATS.URL
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	nc, err := outbox.ConnectNATS(natsURL, "powermeet-relay")
	if err != nil {
		return err
	}
	defer nc.Close()

	publisher, err := outbox.NewJetStreamPublisher(ctx, nc, outbox.DefaultStreamConfig())
	if err != nil {
		return err
	}

	metrics := outbox.NewOTelMetrics(nil)
	app := outbox.NewApp(outbox.NewRepository(db), cfg.Outbox.Source)

	if healthAddr != "" {
		health := &http.Server{
			Addr:    healthAddr,
			Handler: outbox.NewHealthChecker(db, app, nc),
		}
		go func() {
			if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("relay health endpoint failed")
			}
		}()
		defer health.Close()
	}

	relayCfg := outbox.DefaultRelayConfig()
	relayCfg.DatabaseURL = dbCfg.DSN()
	relayCfg.FallbackInterval = cfg.Outbox.FallbackInterval
	relayCfg.BatchSize = cfg.Outbox.BatchSize

	relay := outbox.NewRelay(app, outbox.NewMetricPublisher(publisher, metrics), metrics, relayCfg)
	if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("relay stopped")
	return nil
}
