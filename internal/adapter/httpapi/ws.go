package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/saltline/polar-engine/internal/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from the same process or a local chartplotter;
	// origin checks add nothing on an onboard network.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	wsWriteWait  = 5 * time.Second
	wsPingPeriod = 30 * time.Second
)

// handleStatusStream upgrades the connection and pushes one JSON status
// message per processed sample. A slow client skips snapshots instead of
// back-pressuring the broadcaster.
func (s *Server) handleStatusStream(status StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		updates := make(chan engine.Status, 8)
		unsubscribe := status.Subscribe(func(st engine.Status) {
			select {
			case updates <- st:
			default: // client is behind, drop this snapshot
			}
		})
		defer unsubscribe()

		// Reader loop drains control frames and detects the close.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		// Send the latest snapshot immediately so the UI never starts blank.
		if err := writeStatus(conn, status.Status()); err != nil {
			return
		}

		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case st := <-updates:
				if err := writeStatus(conn, st); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}

func writeStatus(conn *websocket.Conn, st engine.Status) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(st)
}
