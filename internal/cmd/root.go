// Package cmd provides the CLI commands for threadview.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/wethinkt/go-threadview/internal/config"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// global flags
var (
	logPath    string
	verbose    bool
	outputJSON bool
)

// rootCmd is the root command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "threadview",
	Short: "Browse long conversations with a stable, incrementally loaded view",
	Long: `threadview shows conversations stored by a threadview server. Older
messages load as you scroll up without moving what you are reading, new
messages follow the bottom while you are there, and media produced by tools
resolves inline.

Running without a subcommand launches the interactive TUI.

Examples:
  threadview serve                      # Start the backend on 127.0.0.1:8790
  threadview                            # Browse conversations
  threadview -c <id>                    # Open one conversation
  threadview conversations list         # List conversations
  threadview messages index <id>        # Print the media index as JSON`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := tuilog.Init(logPath); err != nil {
			return fmt.Errorf("init log: %w", err)
		}
		if verbose {
			tuilog.Log.SetLevel(tuilog.LevelDebug)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return tuilog.Log.Close()
	},
	SilenceUsage: true,
	RunE:         runTUI,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "write log to file (default $"+tuilog.EnvLogFile+")")

	// The TUI runs from the root too, so both carry its flags.
	for _, c := range []*cobra.Command{rootCmd, tuiCmd} {
		c.Flags().StringVarP(&tuiConversation, "conversation", "c", "", "conversation id to open")
		addClientFlags(c)
	}

	conversationsListCmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	versionCmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")

	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsCreateCmd)
	conversationsCmd.AddCommand(conversationsRenameCmd)
	messagesCmd.AddCommand(messagesIndexCmd)
	messagesCmd.AddCommand(messagesAppendCmd)
	messagesCmd.AddCommand(messagesEditCmd)

	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(versionCmd)
}

// signalContext returns a context cancelled on interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// loadConfig reads the config file, falling back to defaults with a warning.
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		tuilog.Log.Warn("loadConfig: using defaults", "error", err)
		fmt.Fprintf(os.Stderr, "warning: config: %v (using defaults)\n", err)
		return config.Default()
	}
	return cfg
}
