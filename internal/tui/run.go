package tui

import (
	"context"
	"os"

	tea "charm.land/bubbletea/v2"
	"golang.org/x/term"

	"github.com/wethinkt/go-threadview/internal/config"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

func termSizeOpts() []tea.ProgramOption {
	var opts []tea.ProgramOption
	for _, fd := range []int{int(os.Stdout.Fd()), int(os.Stdin.Fd()), int(os.Stderr.Fd())} {
		if term.IsTerminal(fd) {
			w, h, err := term.GetSize(fd)
			if err == nil && w > 0 && h > 0 {
				opts = append(opts, tea.WithWindowSize(w, h))
				break
			}
		}
	}
	return opts
}

// RunOptions configure a terminal session.
type RunOptions struct {
	// Conversation is opened on start when set.
	Conversation string
	// ConfigPath is watched for view setting changes when set.
	ConfigPath string
}

// Run starts the terminal view and blocks until the user quits or ctx is done.
func Run(ctx context.Context, deps Deps, cfg config.ViewConfig, opts RunOptions) error {
	defer tuilog.Log.Timed("tui.Run")()

	app := NewApp(deps, cfg, opts.Conversation)
	p := tea.NewProgram(app, append(termSizeOpts(), tea.WithContext(ctx))...)

	if opts.ConfigPath != "" {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			err := config.Watch(watchCtx, opts.ConfigPath, func(c config.Config) {
				p.Send(configMsg{cfg: c.View})
			})
			if err != nil && watchCtx.Err() == nil {
				tuilog.Log.Warn("tui.Run: config watch stopped", "error", err)
			}
		}()
	}

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
