package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/dbconfig"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/roster"
)

type SeedOptions struct {
	*RootOptions
	SQLite bool
}

type entryUpserter interface {
	UpsertEntry(ctx context.Context, e models.Entry) error
}

func newSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <roster.json>",
		Short: "Load a roster into the entry store",
		Long: `Upsert every entry of a JSON roster into Postgres, or into the
SQLite file named by the config with --sqlite.

Example:
  powermeet seed ./roster/day1.json
  powermeet seed --sqlite ./roster/day1.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.SQLite, "sqlite", false, "seed the SQLite store instead of Postgres")
	return cmd
}

func runSeed(ctx context.Context, opts *SeedOptions, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	entries, err := loadEntries(path)
	if err != nil {
		return err
	}

	var store entryUpserter
	if opts.SQLite {
		cfg, err := loadConfig(opts.ConfigPath)
		if err != nil {
			return err
		}
		repo, err := roster.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		defer repo.Close()
		store = repo
	} else {
		pool, err := setupPool(ctx, dbconfig.NewConfigFromEnv())
		if err != nil {
			return err
		}
		defer pool.Close()
		store = roster.NewRepository(pool)
	}

	var (
		total    = len(entries)
		upserted int
		errs     int
	)
	for _, e := range entries {
		if err := store.UpsertEntry(ctx, e); err != nil {
			log.Error().Err(err).Str("entry_id", e.ID.String()).Str("name", e.Name).Msg("error upserting entry")
			errs++
			continue
		}
		upserted++
	}

	log.Info().
		Int("total", total).
		Int("upserted", upserted).
		Int("errors", errs).
		Msg("roster seed complete")
	if errs > 0 {
		return fmt.Errorf("%d of %d entries failed", errs, total)
	}
	return nil
}
