package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/session"
	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
	"github.com/weiawesome/wes-io-live/viewer/pkg/response"
)

// Sessions is the session controller as seen by the UI bridge.
type Sessions interface {
	Open(ctx context.Context, partial domain.PartialIdentity) (string, error)
	Close() error
	SetForeground(foreground bool)
	Snapshot() domain.Snapshot
	Watch(ctx context.Context) <-chan domain.Snapshot
}

// Handler handles HTTP requests for the viewer session.
type Handler struct {
	sessions Sessions
	ws       *WSHandler
}

// NewHandler creates a new HTTP handler.
func NewHandler(sessions Sessions, ws *WSHandler) *Handler {
	return &Handler{sessions: sessions, ws: ws}
}

// OpenSessionRequest names the stream to watch. One field is enough.
type OpenSessionRequest struct {
	Username     string `json:"username"`
	LiveStreamID *int64 `json:"live_stream_id"`
	ProfileID    string `json:"profile_id"`
}

type OpenSessionResponse struct {
	SessionID string `json:"session_id"`
}

type AppStateRequest struct {
	Foreground *bool `json:"foreground" binding:"required"`
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		sess := api.Group("/session")
		{
			sess.POST("", h.OpenSession)
			sess.GET("", h.GetSession)
			sess.DELETE("", h.CloseSession)
			sess.POST("/app-state", h.SetAppState)
		}
	}
	if h.ws != nil {
		r.GET("/ws", h.ws.HandleWebSocket)
	}
}

// OpenSession replaces the current session with one for the requested stream.
func (h *Handler) OpenSession(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind open session request")
		response.BadRequest(c, err.Error())
		return
	}

	id, err := h.sessions.Open(ctx, domain.PartialIdentity{
		Username:     req.Username,
		LiveStreamID: req.LiveStreamID,
		ProfileID:    req.ProfileID,
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrEmptyIdentity):
			response.BadRequest(c, err.Error())
		case errors.Is(err, session.ErrClosed):
			response.Conflict(c, err.Error())
		default:
			l.Error().Err(err).Msg("failed to open session")
			response.InternalError(c, "failed to open session")
		}
		return
	}

	c.Set(log.FieldSessionID, id)
	response.Created(c, OpenSessionResponse{SessionID: id})
}

// GetSession returns the latest snapshot.
func (h *Handler) GetSession(c *gin.Context) {
	snap := h.sessions.Snapshot()
	if snap.SessionID != "" {
		c.Set(log.FieldSessionID, snap.SessionID)
	}
	response.Success(c, snap)
}

// CloseSession ends the current session.
func (h *Handler) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(); err != nil {
		if errors.Is(err, session.ErrNoSession) {
			response.NotFound(c, "no active session")
			return
		}
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("failed to close session")
		response.InternalError(c, "failed to close session")
		return
	}
	response.Success(c, h.sessions.Snapshot())
}

// SetAppState reports app foreground/background transitions.
func (h *Handler) SetAppState(c *gin.Context) {
	var req AppStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.sessions.SetForeground(*req.Foreground)
	response.Success(c, gin.H{"foreground": *req.Foreground})
}
