package handler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

// client is one websocket watcher. Snapshots are state, not events, so a
// slow client only ever gets the newest pending one.
type client struct {
	conn      *websocket.Conn
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	config    WSConfig
}

func newClient(conn *websocket.Conn, cfg WSConfig) *client {
	return &client{
		conn:   conn,
		out:    make(chan []byte, 1),
		done:   make(chan struct{}),
		config: cfg,
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// forward encodes snapshots until the watch ends or the client goes away.
func (c *client) forward(ctx context.Context, snapshots <-chan domain.Snapshot) {
	for {
		select {
		case <-c.done:
			return
		case snap, ok := <-snapshots:
			if !ok {
				c.close()
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				l := log.Ctx(ctx)
				l.Error().Err(err).Msg("failed to encode snapshot")
				continue
			}
			c.enqueue(data)
		}
	}
}

func (c *client) enqueue(data []byte) {
	select {
	case c.out <- data:
		return
	default:
	}
	select {
	case <-c.out:
	default:
	}
	c.out <- data
}

// readPump only services control frames; the UI never sends data here.
func (c *client) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
