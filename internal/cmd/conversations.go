package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wethinkt/go-threadview/internal/thread"
)

var (
	conversationsLimit int
	conversationsAll   bool
	createModel        string
	createMessage      string
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recently active first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		c := newClient(cfg.Client)
		ctx, cancel := signalContext()
		defer cancel()

		var all []thread.ConversationSummary
		cursor := ""
		for {
			page, err := c.ListConversations(ctx, cursor, conversationsLimit)
			if err != nil {
				return err
			}
			all = append(all, page.Conversations...)
			if !conversationsAll || page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}

		if outputJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(all)
		}
		if len(all) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tMODEL\tLAST ACTIVITY")
		for _, s := range all {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Title, s.Model, s.LastActivity.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var conversationsCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a conversation and print its id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		c := newClient(cfg.Client)
		ctx, cancel := signalContext()
		defer cancel()

		conv, err := c.CreateConversation(ctx, strings.Join(args, " "), createModel, createMessage)
		if err != nil {
			return err
		}
		fmt.Println(conv.ID)
		return nil
	},
}

var conversationsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Change a conversation's title",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		c := newClient(cfg.Client)
		ctx, cancel := signalContext()
		defer cancel()

		return c.RenameConversation(ctx, args[0], strings.Join(args[1:], " "))
	},
}

func init() {
	conversationsListCmd.Flags().IntVarP(&conversationsLimit, "limit", "n", 50, "rows per request")
	conversationsListCmd.Flags().BoolVarP(&conversationsAll, "all", "a", false, "follow cursors to the end of the list")
	conversationsCreateCmd.Flags().StringVar(&createModel, "model", "", "model name shown in the list")
	conversationsCreateCmd.Flags().StringVarP(&createMessage, "message", "m", "", "first user message")
	for _, c := range []*cobra.Command{conversationsListCmd, conversationsCreateCmd, conversationsRenameCmd} {
		addClientFlags(c)
	}
}
