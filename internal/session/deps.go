package session

import (
	"context"

	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/feed"
	"github.com/weiawesome/wes-io-live/viewer/internal/overlay"
	"github.com/weiawesome/wes-io-live/viewer/internal/resolver"
	"github.com/weiawesome/wes-io-live/viewer/internal/transport"
	"github.com/weiawesome/wes-io-live/viewer/internal/viewercount"
)

// Heartbeat is the presence writer of a live session.
type Heartbeat interface {
	Start(ctx context.Context, liveStreamID int64, viewerID string, foreground bool) error
	SetForeground(foreground bool)
	Stop()
}

// Subscriber is a per-stream feed consumer such as the overlay coalescer or
// the viewer-count tracker.
type Subscriber interface {
	Start(ctx context.Context, liveStreamID int64) error
	Stop()
}

// Factories build the per-session collaborators. Every session gets fresh
// instances so nothing is shared across generations.
type Factories struct {
	Adapter     func(sessionID string, listener transport.Listener) transport.Adapter
	Heartbeat   func() Heartbeat
	Coalescer   func(sink overlay.Sink) (Subscriber, error)
	ViewerCount func(sink viewercount.Sink) Subscriber
}

type Deps struct {
	Resolver  resolver.Resolver
	Factories Factories
	// Feeds supplies the stream-status feed. Nil disables the watch.
	Feeds        feed.Source
	Viewer       domain.ViewerIdentity
	TimelineSize int
}
