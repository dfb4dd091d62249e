package notifications

import (
	"log/slog"
	"time"

	"gallery/internal/middleware"
	"gallery/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait = 10 * time.Second
	// A viewer that misses pongs for this long is dropped.
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	// Viewers only ever send control frames.
	maxInboundBytes = 512
	queueSize       = 64
)

// Client is one open event stream. The hub fills queue; Serve drains it onto
// the socket.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	queue chan []byte
	// UserID is "" for anonymous viewers.
	UserID string
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{hub: hub, conn: conn, UserID: userID, queue: make(chan []byte, queueSize)}
}

// Serve runs the stream until the viewer disconnects or the hub closes the
// queue. The websocket handler must not return before Serve does.
func (c *Client) Serve() {
	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writeLoop()
	}()

	c.readLoop()
	c.hub.Unregister(c)
	<-written
}

// readLoop only exists to process pongs and notice the close.
func (c *Client) readLoop() {
	c.conn.SetReadLimit(maxInboundBytes)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			middleware.Logger.Warn("event stream read failed",
				slog.String("user_id", c.UserID),
				slog.String("error", err.Error()),
			)
		}
		return
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		var err error
		select {
		case msg, open := <-c.queue:
			if !open {
				_ = c.write(websocket.CloseMessage, nil)
				return
			}
			err = c.write(websocket.TextMessage, msg)
		case <-ping.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}

// offer queues msg without blocking. Slow viewers lose messages rather than
// stall the broadcast; the page re-fetches counts on its next load.
func (c *Client) offer(msg []byte) {
	defer func() {
		// The hub closed the queue between lookup and send.
		if recover() != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues("closed").Inc()
		}
	}()

	select {
	case c.queue <- msg:
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues("full").Inc()
	}
}
