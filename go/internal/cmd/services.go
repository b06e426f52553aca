package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/RJSeERMJ/feperjv3-sub001/go/clients/records_client"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/dbconfig"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/control"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/gateway"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/mirror"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/outbox"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/roster"
)

type Services struct {
	Surface   *control.Surface
	Gateway   *gateway.Service
	Primaries []*mirror.Primary
	Listener  *roster.ChangeListener
	Outbox    *outbox.App

	db      *sql.DB
	pool    *pgxpool.Pool
	sqlite  *roster.SQLiteRepository
	nc      *nats.Conn
	bus     *mirror.Bus
	natsChs []*mirror.NATSChannel
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Roster app → Control surface → Mirror primaries → Gateway
	s := &Services{}
	clock := clockwork.NewRealClock()

	repo, err := s.setupStore(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	rosterApp := roster.NewApp(repo)

	deps := control.Deps{
		Store: rosterApp,
		Clock: clock,
	}
	if cfg.Records.URL != "" {
		deps.Records = records_client.NewRecordsClient(cfg.Records.URL, cfg.Records.APIKey)
	}
	if s.Outbox != nil {
		deps.Events = s.Outbox
	} else {
		deps.Events = outbox.LogRecorder{}
	}

	if cfg.NATS.URL != "" {
		nc, err := outbox.ConnectNATS(cfg.NATS.URL, "powermeet-primary")
		if err != nil {
			s.Close()
			return nil, err
		}
		s.nc = nc
	} else {
		s.bus = mirror.NewBus()
	}

	views := cfg.views()
	var bindings []gateway.ViewBinding
	for _, viewType := range []mirror.ViewType{mirror.ViewLiftingTable, mirror.ViewAthletePanel} {
		view := views[viewType]
		p := s.newPrimary(cfg, clock, view)
		if err := p.Attach(ctx, s.openChannel(cfg, view.ChannelName)); err != nil {
			s.Close()
			return nil, fmt.Errorf("attach %s primary: %w", viewType, err)
		}
		s.Primaries = append(s.Primaries, p)
		deps.Publishers = append(deps.Publishers, p)
		bindings = append(bindings, gateway.ViewBinding{Primary: p, Channel: s.openChannel(cfg, view.ChannelName)})
	}

	s.Surface = control.New(deps, cfg.Control)

	s.Gateway, err = gateway.NewService(gateway.DefaultConfig(), s.Surface, bindings...)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create gateway: %w", err)
	}

	if s.pool != nil {
		lcfg := roster.DefaultListenerConfig()
		lcfg.DatabaseURL = dbconfig.NewConfigFromEnv().DSN()
		s.Listener, err = roster.NewChangeListener(lcfg, s.refreshOnChange)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("create roster listener: %w", err)
		}
	}

	return s, nil
}

func (s *Services) setupStore(ctx context.Context, cfg *Config) (roster.EntryRepository, error) {
	switch cfg.Store.Driver {
	case "postgres":
		dbCfg := dbconfig.NewConfigFromEnv()
		pool, err := setupPool(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		db, err := setupDatabase(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.Outbox = outbox.NewApp(outbox.NewRepository(db), cfg.Outbox.Source)
		return roster.NewRepository(pool), nil

	case "sqlite":
		repo, err := roster.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.sqlite = repo
		if cfg.Store.RosterFile != "" {
			entries, err := loadEntries(cfg.Store.RosterFile)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				if err := repo.UpsertEntry(ctx, e); err != nil {
					return nil, fmt.Errorf("import %s: %w", e.Name, err)
				}
			}
		}
		return repo, nil

	default:
		repo := roster.NewMemoryRepository()
		if cfg.Store.RosterFile != "" {
			entries, err := loadEntries(cfg.Store.RosterFile)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				repo.Put(e)
			}
		}
		return repo, nil
	}
}

func (s *Services) newPrimary(cfg *Config, clock clockwork.Clock, view mirror.ViewConfig) *mirror.Primary {
	opts := []mirror.PrimaryOption{
		mirror.WithClock(clock),
		mirror.WithBaseURL(cfg.Server.BaseURL),
		mirror.WithProbeInterval(cfg.Mirror.ProbeInterval),
		mirror.WithWatcher(mirror.NewPollingWatcher(clock, cfg.Mirror.WatchInterval)),
		mirror.WithConnectionListener(func(connected bool) {
			log.Info().Str("view", string(view.Type)).Bool("connected", connected).Msg("mirror liveness changed")
		}),
	}
	if cfg.Mirror.OpenWindows {
		opts = append(opts, mirror.WithOpener(mirror.DefaultExecOpener()))
	}
	return mirror.NewPrimary(view, opts...)
}

func (s *Services) openChannel(cfg *Config, name string) mirror.Channel {
	if s.nc != nil {
		ch := mirror.NewNATSChannel(s.nc, cfg.NATS.SubjectPrefix, name)
		s.natsChs = append(s.natsChs, ch)
		return ch
	}
	return s.bus.Open(name)
}

// refreshOnChange reloads the flight when the roster editor touched it.
// A zero change means notifications may have been lost.
func (s *Services) refreshOnChange(ctx context.Context, change roster.EntryChange) {
	key, ok := s.Surface.Selected()
	if !ok {
		return
	}
	if change != (roster.EntryChange{}) && !change.Matches(roster.FilterFor(key)) {
		return
	}
	if _, err := s.Surface.Refresh(ctx); err != nil && !errors.Is(err, control.ErrClosed) {
		log.Error().Err(err).Str("flight", key.String()).Msg("failed to refresh flight after roster change")
	}
}

func (s *Services) Close() {
	if s.Surface != nil {
		s.Surface.Close()
	}
	for _, p := range s.Primaries {
		if err := p.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to close mirror primary")
		}
	}
	for _, ch := range s.natsChs {
		_ = ch.Close()
	}
	if s.nc != nil {
		s.nc.Close()
	}
	if s.sqlite != nil {
		_ = s.sqlite.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// healthChecker only includes the parts this process actually opened.
func (s *Services) healthChecker() *outbox.HealthChecker {
	var (
		db      outbox.Pinger
		backlog outbox.Backlogger
		conn    outbox.ConnectionStatus
	)
	if s.db != nil {
		db = s.db
	}
	if s.Outbox != nil {
		backlog = s.Outbox
	}
	if s.nc != nil {
		conn = s.nc
	}
	return outbox.NewHealthChecker(db, backlog, conn)
}
