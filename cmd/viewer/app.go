package main

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/viewer/internal/cache"
	"github.com/weiawesome/wes-io-live/viewer/internal/client"
	"github.com/weiawesome/wes-io-live/viewer/internal/config"
	"github.com/weiawesome/wes-io-live/viewer/internal/domain"
	"github.com/weiawesome/wes-io-live/viewer/internal/feed"
	"github.com/weiawesome/wes-io-live/viewer/internal/overlay"
	"github.com/weiawesome/wes-io-live/viewer/internal/presence"
	"github.com/weiawesome/wes-io-live/viewer/internal/repository"
	"github.com/weiawesome/wes-io-live/viewer/internal/resolver"
	"github.com/weiawesome/wes-io-live/viewer/internal/session"
	"github.com/weiawesome/wes-io-live/viewer/internal/store"
	"github.com/weiawesome/wes-io-live/viewer/internal/transport"
	"github.com/weiawesome/wes-io-live/viewer/internal/viewercount"
	"github.com/weiawesome/wes-io-live/viewer/internal/webrtc"
	"github.com/weiawesome/wes-io-live/viewer/pkg/database"
	pkglog "github.com/weiawesome/wes-io-live/viewer/pkg/log"
	"github.com/weiawesome/wes-io-live/viewer/pkg/pubsub"
)

// app holds the wired controller and everything that needs closing on
// shutdown, in the order it must be closed.
type app struct {
	controller *session.Controller
	closers    []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func buildApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}

	db, sqlDB, err := openDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	lookups := repository.NewGormLookupRepository(db)
	presenceStore := store.NewGormPresenceStore(db, cfg.Presence.StalenessWindow)

	// Lookup cache is optional
	var identityCache cache.IdentityCache
	if cfg.Cache.Enabled {
		rc, err := cache.NewRedisIdentityCache(cache.RedisConfig{
			Address:  cfg.Cache.Address,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			Prefix:   cfg.Cache.Prefix,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("lookup cache unavailable, continuing without it")
		} else {
			identityCache = rc
			a.closers = append(a.closers, rc)
		}
	}

	ps, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		for _, c := range a.closers {
			c.Close()
		}
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create pubsub: %w", err)
	}
	logger.Info().Str(pkglog.FieldDriver, cfg.PubSub.Driver).Msg("change feeds connected")
	feeds := feed.NewPubSubSource(ps)
	announcingStore := store.NewPublishingPresenceStore(presenceStore, ps)

	tokens := client.NewTokenClient(cfg.Token.BaseURL, cfg.Token.Path, cfg.Viewer.AccessToken, cfg.Token.Timeout)
	newRoom := webrtc.NewRoomFactory(webrtc.NewPeerManager(cfg.Transport.ICEServers), nil)
	clock := clockwork.NewRealClock()

	viewer := domain.ViewerIdentity{
		ViewerID:    cfg.Viewer.ID,
		DisplayName: cfg.Viewer.Username,
		Platform:    cfg.Viewer.Platform,
		DeviceID:    cfg.Viewer.DeviceID,
	}

	a.controller = session.NewController(session.Deps{
		Resolver:     resolver.NewResolver(lookups, identityCache, cfg.Cache.TTL),
		Feeds:        feeds,
		Viewer:       viewer,
		TimelineSize: cfg.Overlay.TimelineSize,
		Factories: session.Factories{
			Adapter: func(sessionID string, l transport.Listener) transport.Adapter {
				return transport.NewAdapter(transport.Config{
					Viewer:                   viewer,
					SessionID:                sessionID,
					GroupRoomName:            cfg.Transport.GroupRoomName,
					ExcludedIdentityPrefixes: cfg.Transport.ExcludedIdentityPrefixes,
					AllowedSchemes:           cfg.Token.AllowedSchemes,
					Leeway:                   cfg.Token.Leeway,
				}, tokens, newRoom, l)
			},
			Heartbeat: func() session.Heartbeat {
				return presence.NewHeartbeat(announcingStore, clock, presence.Config{
					Interval:     cfg.Presence.HeartbeatInterval,
					WriteTimeout: cfg.Presence.WriteTimeout,
				})
			},
			Coalescer: func(sink overlay.Sink) (session.Subscriber, error) {
				return overlay.NewCoalescer(feeds, lookups, sink, overlay.Config{
					DedupCapacity:     cfg.Overlay.DedupCapacity,
					EnrichmentTimeout: cfg.Overlay.EnrichmentTimeout,
					GenericGiftLabel:  cfg.Overlay.GenericGiftLabel,
				})
			},
			ViewerCount: func(sink viewercount.Sink) session.Subscriber {
				return viewercount.NewTracker(presenceStore, feeds, sink, clock, viewercount.Config{
					PollInterval: cfg.ViewerCount.PollInterval,
					PollTimeout:  cfg.ViewerCount.PollTimeout,
				})
			},
		},
	})

	// Close order: controller first (via shutdown), then feeds, cache, db
	a.closers = append([]io.Closer{ps}, a.closers...)
	a.closers = append(a.closers, closerFunc(sqlDB.Close))
	return a, nil
}

// openDatabase connects and brings the lookup and presence tables up to
// date.
func openDatabase(cfg *config.Config, logger zerolog.Logger) (*gorm.DB, *sql.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get sql db: %w", err)
	}

	if err := database.AutoMigrate(db,
		&domain.ProfileModel{},
		&domain.LiveStreamModel{},
		&domain.GiftTypeModel{},
		&domain.ActiveViewerModel{},
	); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}
	logger.Info().Str(pkglog.FieldDriver, cfg.Database.Driver).Msg("database ready")
	return db, sqlDB, nil
}

func (a *app) shutdown(logger zerolog.Logger) {
	a.controller.Shutdown()
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Msg("close failed")
		}
	}
}
