package client

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/wethinkt/go-threadview/internal/thread"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

const (
	maxReconnectDelay  = 30 * time.Second
	baseReconnectDelay = 1 * time.Second
)

// Event is one item of the change feed. An event with Reconnected set carries
// no change: it is sent when the stream comes back after a drop, and the
// receiver should refetch its list since changes in between were missed.
type Event struct {
	thread.ConversationEvent
	Reconnected bool
}

// StreamEvents connects to the server's change feed and delivers events until
// ctx is cancelled. It reconnects with exponential backoff. The returned
// channel is closed when the stream stops.
func (c *Client) StreamEvents(ctx context.Context) <-chan Event {
	ch := make(chan Event, 64)
	go c.streamLoop(ctx, ch)
	return ch
}

func (c *Client) eventsURL() string {
	u := c.baseURL + "/api/v1/events"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c *Client) streamLoop(ctx context.Context, ch chan<- Event) {
	defer close(ch)

	failures := 0
	reconnected := false
	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := c.streamOnce(ctx, ch, reconnected)
		if ctx.Err() != nil {
			return
		}
		if connected {
			failures = 0
		}
		failures++
		reconnected = true
		tuilog.Log.Warn("Client.StreamEvents: disconnected", "error", err, "failures", failures)

		select {
		case <-time.After(reconnectDelay(failures)):
		case <-ctx.Done():
			return
		}
	}
}

func reconnectDelay(failures int) time.Duration {
	delay := time.Duration(float64(baseReconnectDelay) * math.Pow(2, float64(min(failures-1, 5))))
	return min(delay, maxReconnectDelay)
}

// streamOnce runs one connection. It reports whether the dial succeeded.
func (c *Client) streamOnce(ctx context.Context, ch chan<- Event, reconnected bool) (bool, error) {
	// The dial must not inherit the request timeout of the REST client.
	opts := &websocket.DialOptions{HTTPClient: &http.Client{Transport: c.http.Transport}}
	if c.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + c.token}}
	}

	conn, _, err := websocket.Dial(ctx, c.eventsURL(), opts)
	if err != nil {
		return false, err
	}
	defer conn.CloseNow()
	tuilog.Log.Info("Client.StreamEvents: connected", "url", c.eventsURL())

	if reconnected {
		if !send(ctx, ch, Event{Reconnected: true}) {
			return true, ctx.Err()
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}

		var ev thread.ConversationEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			tuilog.Log.Debug("Client.StreamEvents: bad event", "error", err)
			continue
		}
		if !send(ctx, ch, Event{ConversationEvent: ev}) {
			conn.Close(websocket.StatusNormalClosure, "client closing")
			return true, ctx.Err()
		}
	}
}

func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
