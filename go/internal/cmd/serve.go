package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

type ServeOptions struct {
	*RootOptions
	Day      int
	Platform int
	Flight   string
}

func newServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the platform control surface",
		Long: `Run the control surface of one platform together with its mirror
channels, the WebSocket gateway for browser displays and the operator RPC API.

Example:
  powermeet serve --config meet.yaml
  powermeet serve --day 1 --platform 2 --flight B`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.Day, "day", 0, "select this day on startup")
	cmd.Flags().IntVar(&opts.Platform, "platform", 0, "select this platform on startup")
	cmd.Flags().StringVar(&opts.Flight, "flight", "", "select this flight on startup")
	return cmd
}

func runServe(parent context.Context, opts *ServeOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("component", name).Msg("component stopped")
			}
		}()
	}

	run("timers", services.Surface.Run)
	run("gateway", services.Gateway.Start)
	for _, p := range services.Primaries {
		run("mirror_probe", p.Run)
	}
	if services.Listener != nil {
		run("roster_listener", services.Listener.Start)
	}

	if opts.Day > 0 && opts.Platform > 0 && opts.Flight != "" {
		key := models.FlightKey{Day: opts.Day, Platform: opts.Platform, Flight: opts.Flight}
		if _, err := services.Surface.SelectFlight(ctx, key); err != nil {
			log.Error().Err(err).Str("flight", key.String()).Msg("failed to select startup flight")
		}
	}

	server := setupServer(cfg, services)
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("store", cfg.Store.Driver).
			Bool("nats", cfg.NATS.URL != "").
			Msg("starting powermeet server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server exited unexpectedly")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	wg.Wait()
	log.Info().Msg("graceful shutdown complete")
	return nil
}
