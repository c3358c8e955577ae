package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

type WSConfig struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// WSHandler streams session snapshots to UI clients.
type WSHandler struct {
	sessions Sessions
	upgrader websocket.Upgrader
	config   WSConfig
}

func NewWSHandler(sessions Sessions, cfg WSConfig) *WSHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	return &WSHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		config: cfg,
	}
}

// HandleWebSocket upgrades the request and pushes every snapshot until the
// client goes away.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := log.Ctx(c.Request.Context())

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(conn, h.config)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.writePump()
	go client.forward(ctx, h.sessions.Watch(ctx))

	client.readPump()
}
