package cmd

import (
	"github.com/spf13/cobra"

	"github.com/wethinkt/go-threadview/internal/client"
	"github.com/wethinkt/go-threadview/internal/config"
)

// Client flags override the [client] section of the config.
var (
	clientURL   string
	clientToken string
	clientUser  string
)

func addClientFlags(c *cobra.Command) {
	c.Flags().StringVar(&clientURL, "url", "", "server URL (default from config)")
	c.Flags().StringVar(&clientToken, "token", "", "bearer token (default from config)")
	c.Flags().StringVar(&clientUser, "user", "", "user id for bookmarks (default from config)")
}

func newClient(cfg config.ClientConfig) *client.Client {
	if clientURL != "" {
		cfg.URL = clientURL
	}
	if clientToken != "" {
		cfg.Token = clientToken
	}
	if clientUser != "" {
		cfg.UserID = clientUser
	}
	return client.New(cfg.URL, cfg.Token, client.WithUser(cfg.UserID))
}
