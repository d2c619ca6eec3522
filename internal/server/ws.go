package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/noorimat/realtime-task-board/internal/config"
	"github.com/noorimat/realtime-task-board/internal/hub"
	"github.com/noorimat/realtime-task-board/internal/protocol"
	"github.com/noorimat/realtime-task-board/internal/registry"
)

const maxInboundBytes = 1 << 20

// gateway upgrades HTTP requests to websocket sessions and bridges them to
// the hub: inbound frames become intents, the session queue drains to the
// wire.
type gateway struct {
	hub        *hub.Hub
	upgrader   websocket.Upgrader
	sendBuffer int
	writeWait  time.Duration
	pingEvery  time.Duration
}

func newGateway(h *hub.Hub, cfg *config.Config) *gateway {
	origins := map[string]bool{}
	allowAll := false
	for _, o := range cfg.Server.CORSOrigins {
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}
	g := &gateway{
		hub:        h,
		sendBuffer: cfg.Sync.SendBuffer,
		writeWait:  time.Duration(cfg.Sync.WriteTimeoutSecs) * time.Second,
		pingEvery:  time.Duration(cfg.Sync.PingIntervalSecs) * time.Second,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// non-browser clients send no Origin header
			return allowAll || origin == "" || origins[origin]
		},
	}
	return g
}

func (g *gateway) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.hub.Logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := registry.NewSession(g.sendBuffer)
	if err := g.hub.Connect(r.Context(), s); err != nil {
		g.hub.Logger.Error("session snapshot failed", "session", s.ID, "error", err)
		conn.Close()
		return
	}
	g.hub.Metrics.SessionsConnected.Inc()
	g.hub.Logger.Info("session connected", "session", s.ID, "remote", r.RemoteAddr)

	go g.writePump(conn, s)
	g.readPump(conn, s)

	g.hub.Registry.Remove(s.ID)
	g.hub.Metrics.SessionsConnected.Dec()
	g.hub.Logger.Info("session disconnected", "session", s.ID)
}

// readPump consumes inbound intent envelopes until the connection dies. It
// owns the read side: deadlines advance on every frame and every pong.
func (g *gateway) readPump(conn *websocket.Conn, s *registry.Session) {
	defer conn.Close()
	conn.SetReadLimit(maxInboundBytes)
	readWait := 2 * g.pingEvery
	if readWait <= 0 {
		readWait = time.Minute
	}
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.hub.Logger.Warn("session read failed", "session", s.ID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readWait))
		g.hub.HandleIntent(context.Background(), s.ID, env)
	}
}

// writePump drains the session queue to the wire and keeps the connection
// alive with pings. It owns the write side of conn.
func (g *gateway) writePump(conn *websocket.Conn, s *registry.Session) {
	pingEvery := g.pingEvery
	if pingEvery <= 0 {
		pingEvery = 30 * time.Second
	}
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case env, ok := <-s.Outbound():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(g.writeWait))
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(g.writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done():
			conn.SetWriteDeadline(time.Now().Add(g.writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
