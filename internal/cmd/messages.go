package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wethinkt/go-threadview/internal/mediaindex"
	"github.com/wethinkt/go-threadview/internal/thread"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

var (
	appendRole  string
	appendModel string
	indexPage   int
)

var messagesCmd = &cobra.Command{
	Use:     "messages",
	Aliases: []string{"msg"},
	Short:   "Inspect and write conversation messages",
}

var messagesIndexCmd = &cobra.Command{
	Use:   "index <conversation-id>",
	Short: "Print the media index of a conversation as JSON",
	Long: `Load every page of a conversation, oldest first, and print the derived
media index: images, uploads, videos, link previews, thumbnails, titles,
prompts, source images and dimensions.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer tuilog.Log.Timed("messages index")()
		cfg := loadConfig()
		c := newClient(cfg.Client)
		ctx, cancel := signalContext()
		defer cancel()

		log := thread.NewLog(args[0])
		var cursor int64
		for {
			page, err := c.FetchPage(ctx, thread.PageRequest{ConversationID: args[0], Cursor: cursor, PageSize: indexPage})
			if err != nil {
				return err
			}
			log.PrependPage(page.Messages)
			if !page.HasMore || len(page.Messages) == 0 {
				break
			}
			cursor = log.OldestSequence()
		}

		x := mediaindex.NewBuilder().Build(log.Records())
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(x)
	},
}

var messagesAppendCmd = &cobra.Command{
	Use:   "append <conversation-id> <text>",
	Short: "Append a text message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role := thread.Role(appendRole)
		if role != thread.RoleUser && role != thread.RoleAssistant {
			return fmt.Errorf("invalid role %q: use user or assistant", appendRole)
		}
		cfg := loadConfig()
		c := newClient(cfg.Client)
		ctx, cancel := signalContext()
		defer cancel()

		m, err := c.AppendMessage(ctx, args[0], thread.Message{
			Role:  role,
			Model: appendModel,
			Parts: textParts(args[1:]),
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d\n", m.ID, m.Sequence)
		return nil
	},
}

var messagesEditCmd = &cobra.Command{
	Use:   "edit <conversation-id> <message-id> <text>",
	Short: "Replace the text of a message",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		c := newClient(cfg.Client)
		ctx, cancel := signalContext()
		defer cancel()

		m, err := c.UpdateMessage(ctx, args[0], args[1], thread.Patch{Parts: textParts(args[2:])})
		if err != nil {
			return err
		}
		fmt.Printf("%s\tv%d\n", m.ID, m.Version)
		return nil
	},
}

func textParts(words []string) []thread.ContentPart {
	return []thread.ContentPart{{Type: thread.PartText, Text: strings.Join(words, " ")}}
}

func init() {
	messagesIndexCmd.Flags().IntVar(&indexPage, "page-size", 100, "messages per request")
	messagesAppendCmd.Flags().StringVar(&appendRole, "role", "user", "message role: user or assistant")
	messagesAppendCmd.Flags().StringVar(&appendModel, "model", "", "model that produced the message")
	for _, c := range []*cobra.Command{messagesIndexCmd, messagesAppendCmd, messagesEditCmd} {
		addClientFlags(c)
	}
}
