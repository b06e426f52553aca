package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/mirror"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/outbox"
)

type MirrorOptions struct {
	*RootOptions
	View string
}

func newMirrorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MirrorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Follow a platform's view over NATS",
		Long: `Join a view's mirror channel on NATS as a replica and log every
state the primary publishes. Useful on scoreboard machines to check that
the platform is reachable.

Example:
  NATS_URL=nats://platform-a:4222 powermeet mirror --view athlete-panel`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirror(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.View, "view", string(mirror.ViewLiftingTable), "view to follow (lifting-table|athlete-panel)")
	return cmd
}

func runMirror(parent context.Context, opts *MirrorOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	viewType, err := mirror.ParseViewType(opts.View)
	if err != nil {
		return err
	}
	if cfg.NATS.URL == "" {
		return errors.New("NATS_URL is required to follow a remote primary")
	}
	view := cfg.views()[viewType]

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := outbox.ConnectNATS(cfg.NATS.URL, "powermeet-mirror")
	if err != nil {
		return err
	}
	defer nc.Close()

	ch := mirror.NewNATSChannel(nc, cfg.NATS.SubjectPrefix, view.ChannelName)
	defer ch.Close()

	replica := mirror.NewReplica(view, clockwork.NewRealClock(), func(state json.RawMessage) {
		log.Info().
			Str("view", string(viewType)).
			RawJSON("state", state).
			Msg("state received")
	})
	if err := replica.Attach(ch); err != nil {
		return err
	}

	rendered := replica.Render()
	log.Info().
		Str("view", string(viewType)).
		Str("subject", ch.Subject()).
		Str("message", rendered.Message).
		Msg("mirror following primary")

	<-ctx.Done()
	return replica.Close(context.Background())
}
