package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wethinkt/go-threadview/internal/mediaurl"
)

type signBody struct {
	URL string `json:"url"`
}

// Signer returns a media URL signer that posts {"url": expired} to endpoint
// and reads the fresh URL from the response. An endpoint starting with "/"
// is relative to the server.
func (c *Client) Signer(endpoint string) mediaurl.Signer {
	u := endpoint
	if strings.HasPrefix(endpoint, "/") {
		u = c.baseURL + endpoint
	}
	return mediaurl.SignerFunc(func(ctx context.Context, expired string) (string, error) {
		payload, err := json.Marshal(signBody{URL: expired})
		if err != nil {
			return "", fmt.Errorf("marshal sign request: %w", err)
		}
		var out signBody
		if _, err := c.once(ctx, http.MethodPost, u, payload, &out); err != nil {
			return "", err
		}
		if out.URL == "" {
			return "", errors.New("sign: empty url in response")
		}
		return out.URL, nil
	})
}
