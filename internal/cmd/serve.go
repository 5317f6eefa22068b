package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wethinkt/go-threadview/internal/config"
	"github.com/wethinkt/go-threadview/internal/server"
	"github.com/wethinkt/go-threadview/internal/store"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// Serve command flags
var (
	serveHost  string
	servePort  int
	serveToken string
	serveDB    string
	serveQuiet bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversation backend",
	Long: `Run the conversation backend: a REST API over a local DuckDB store, a
WebSocket change feed at /api/v1/events and Prometheus metrics at /metrics.

Examples:
  threadview serve
  threadview serve --port 9000 --token secret
  threadview serve --db ./conversations.duckdb`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "require this bearer token")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "DuckDB file (default ~/.threadview/threadview.duckdb)")
	serveCmd.Flags().BoolVarP(&serveQuiet, "quiet", "q", false, "disable HTTP access logs")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig().Server
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveToken != "" {
		cfg.Token = serveToken
	}
	if serveDB != "" {
		cfg.DBPath = serveDB
	}
	if cfg.DBPath == "" {
		path, err := config.DefaultDBPath()
		if err != nil {
			return err
		}
		cfg.DBPath = path
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	tuilog.Log.Info("runServe: store opened", "path", st.Path())

	srv := server.New(st, server.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		Token:             cfg.Token,
		UserID:            cfg.UserID,
		Quiet:             serveQuiet,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	})

	ctx, cancel := signalContext()
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	g.Go(func() error {
		// Closing the hub ends every open change feed.
		<-ctx.Done()
		st.Changes().Close()
		return nil
	})
	return g.Wait()
}
