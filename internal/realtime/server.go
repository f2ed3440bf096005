package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cjmeyer/gridverse/internal/config"
)

// Server accepts websocket connections and runs one read loop per
// connection, forwarding decoded frames to the engine. Transport concerns
// stop here; protocol logic lives in the Engine.
type Server struct {
	engine   *Engine
	cfg      config.RealtimeConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a websocket Server.
//
// Precondition: engine and logger must be non-nil; cfg must be validated.
func NewServer(engine *Engine, cfg config.RealtimeConfig, logger *zap.Logger) *Server {
	return &Server{
		engine: engine,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from arbitrary origins; token
			// verification happens at join time.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and services the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	client := NewClient(conn, s.cfg, s.logger)
	s.logger.Info("client connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("conn_id", client.ID()),
	)

	go client.WritePump()
	s.readLoop(r.Context(), conn, client)
}

// readLoop consumes frames until the transport closes or errors, then
// synthesizes the disconnect transition exactly once.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, client *Client) {
	start := time.Now()
	sess := s.engine.NewSession(client)

	conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read failed", zap.String("conn_id", client.ID()), zap.Error(err))
			}
			break
		}
		s.engine.HandleFrame(ctx, sess, data)
	}

	s.engine.Disconnect(sess)
	s.logger.Info("client disconnected",
		zap.String("conn_id", client.ID()),
		zap.Duration("session", time.Since(start)),
	)
}
