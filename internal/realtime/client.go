package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cjmeyer/gridverse/internal/config"
)

// Client is one persistent websocket connection. It owns a buffered outbound
// queue drained by a dedicated write goroutine, so room broadcasts enqueue
// and return without ever touching the socket.
type Client struct {
	id     string
	conn   *websocket.Conn
	cfg    config.RealtimeConfig
	logger *zap.Logger

	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewClient wraps an upgraded websocket connection.
//
// Precondition: conn and logger must be non-nil; cfg must be validated.
func NewClient(conn *websocket.Conn, cfg config.RealtimeConfig, logger *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		conn:   conn,
		cfg:    cfg,
		logger: logger.With(zap.String("conn_id", id)),
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// ID returns the connection's unique identifier.
func (c *Client) ID() string {
	return c.id
}

// Enqueue appends a frame to the outbound queue without blocking. A full
// queue means the client cannot keep up with its room; the connection is
// closed rather than allowed to stall broadcasts.
//
// Postcondition: Returns true if the frame was queued, false if the client
// is closed or was closed due to overflow.
func (c *Client) Enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("outbound queue overflow, closing connection")
		c.Close()
		return false
	}
}

// WritePump drains the outbound queue to the socket and keeps the connection
// alive with periodic pings. It returns when the client is closed.
//
// Precondition: must be called exactly once, from its own goroutine.
func (c *Client) WritePump() {
	pingPeriod := c.cfg.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// Flush anything already queued before closing the socket.
			for {
				select {
				case data := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

// Close signals teardown. The write pump flushes queued frames and closes
// the underlying socket, which in turn unblocks the read loop. Safe to call
// multiple times; only the first call has any effect.
//
// Postcondition: Enqueue returns false and the socket closes shortly after.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
