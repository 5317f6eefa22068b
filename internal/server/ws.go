package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/wethinkt/go-threadview/internal/tuilog"
)

// wsPingInterval keeps idle change-feed connections alive through proxies.
const wsPingInterval = 30 * time.Second

// handleEvents upgrades to WebSocket and streams conversation-list events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		tuilog.Log.Error("Server.handleEvents: accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Reads are only for control frames; the client never sends data.
	ctx := conn.CloseRead(r.Context())

	ch, unsub := s.backend.Changes().Subscribe()
	defer unsub()

	wsConnectionsActive.Inc()
	defer wsConnectionsActive.Dec()
	tuilog.Log.Info("Server.handleEvents: client connected", "remote", r.RemoteAddr)

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ping.C:
			if err := conn.Ping(ctx); err != nil {
				tuilog.Log.Debug("Server.handleEvents: ping failed", "error", err)
				return
			}
		case ev, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				tuilog.Log.Debug("Server.handleEvents: write failed", "error", err)
				return
			}
			eventsSentTotal.WithLabelValues(string(ev.Kind)).Inc()
		}
	}
}
