package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"smokealert/internal/logger"
	"smokealert/internal/status"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	eventBuffer  = 32
)

// EventsHandler streams board events over a websocket. The first frame is the
// current view so a client starts in a consistent state.
type EventsHandler struct {
	Board    *status.Board
	Upgrader websocket.Upgrader
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("events")

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := h.Board.Subscribe(eventBuffer)
	defer cancel()

	// reader detects the client going away and handles pongs
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := write(conn, map[string]any{"kind": "view", "view": h.Board.View()}); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := write(conn, ev); err != nil {
				log.Debug().Err(err).Msg("event write failed")
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func write(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
