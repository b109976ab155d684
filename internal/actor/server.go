package actor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/klingon-exchange/tangle-wallet-core/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	readLimit  = 1 << 20
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// Server exposes an Actor over a websocket: each connection reads tagged
// Messages and writes back a correlated Response per message, the same
// framing the teacher's WSHub uses for broadcast events but one-to-one
// request/reply instead of pub/sub.
type Server struct {
	actor *Actor
	log   *logging.Logger
}

// NewServer wraps actor for websocket serving.
func NewServer(a *Actor) *Server {
	return &Server{actor: a, log: logging.Default().Component("actor-server")}
}

// ServeHTTP upgrades the connection and serves it until the client
// disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	go s.serveConn(conn)
}

func (s *Server) serveConn(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	send := make(chan []byte, 64)
	done := make(chan struct{})
	go s.writePump(conn, send, done)
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug("websocket read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			resp, _ := json.Marshal(Response{Error: "actor: malformed message: " + err.Error()})
			send <- resp
			continue
		}

		go func() {
			resp := s.actor.Dispatch(context.Background(), msg)
			encoded, err := json.Marshal(resp)
			if err != nil {
				return
			}
			select {
			case send <- encoded:
			case <-done:
			}
		}()
	}
}

func (s *Server) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
