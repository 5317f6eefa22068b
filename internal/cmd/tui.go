package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wethinkt/go-threadview/internal/config"
	"github.com/wethinkt/go-threadview/internal/mediaurl"
	"github.com/wethinkt/go-threadview/internal/tui"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

var tuiConversation string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive conversation browser",
	Long: `Launch the interactive conversation browser (default command).

Keys:
  tab        switch between the list and the conversation
  ↑/↓ pgup   scroll (older messages load near the top)
  [ ]        previous / next message
  v          select messages; space toggles, d deletes, esc cancels
  b          bookmark the focused message
  q          quit`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

// purgeInterval is how often stale refreshed URLs are dropped.
const purgeInterval = 10 * time.Minute

func runTUI(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	c := newClient(cfg.Client)

	ctx, cancel := signalContext()
	defer cancel()

	deps := tui.Deps{
		Pages:     c,
		Lister:    c,
		Deleter:   c,
		Bookmarks: c,
		Events:    c.StreamEvents(ctx),
	}
	if cfg.Media.SignURL != "" {
		deps.Refresher = mediaurl.NewRefresher(c.Signer(cfg.Media.SignURL), cfg.Media.RefreshTTLDuration())
	}

	opts := tui.RunOptions{Conversation: tuiConversation}
	if path, err := config.Path(); err == nil {
		opts.ConfigPath = path
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Quitting the view ends the session.
		defer cancel()
		return tui.Run(ctx, deps, cfg.View, opts)
	})
	if deps.Refresher != nil {
		g.Go(func() error {
			purgeLoop(ctx, deps.Refresher)
			return nil
		})
	}
	return g.Wait()
}

func purgeLoop(ctx context.Context, r *mediaurl.Refresher) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Purge(); n > 0 {
				tuilog.Log.Debug("purgeLoop: dropped refreshed urls", "count", n)
			}
		}
	}
}
