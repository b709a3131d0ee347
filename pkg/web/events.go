package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/accentid/pkg/jsontime"
	"github.com/haivivi/accentid/pkg/pipeline"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = pingPeriod + 10*time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEvents streams pipeline events as JSON text frames. The first
// frame is the current state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("web: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.runner.Subscribe()
	defer unsubscribe()

	// The client never sends anything meaningful; reading detects close
	// and handles pongs.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
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

	state, id := s.runner.State()
	if err := s.send(conn, pipeline.Event{RequestID: id, State: state, Label: state.Label(), At: jsontime.Now()}); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.send(conn, ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, ev pipeline.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ev); err != nil {
		s.logger.Debug("web: websocket write failed", "error", err)
		return err
	}
	return nil
}
