package config

import (
	"time"

	"github.com/joho/godotenv"

	pkgconfig "github.com/weiawesome/wes-io-live/viewer/pkg/config"
	"github.com/weiawesome/wes-io-live/viewer/pkg/database"
	"github.com/weiawesome/wes-io-live/viewer/pkg/pubsub"
)

type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Viewer      ViewerConfig
	Token       TokenConfig
	Transport   TransportConfig
	Presence    PresenceConfig
	Overlay     OverlayConfig
	ViewerCount ViewerCountConfig `mapstructure:"viewer_count"`
	Cache       CacheConfig
	Database    database.Config
	PubSub      pubsub.Config `mapstructure:"pubsub"`
}

type ServerConfig struct {
	Host           string
	Port           int
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// ViewerConfig identifies the local viewer.
type ViewerConfig struct {
	ID          string
	Username    string
	DeviceID    string `mapstructure:"device_id"`
	Platform    string
	AccessToken string `mapstructure:"access_token"`
}

type TokenConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Path           string        `mapstructure:"path"`
	Timeout        time.Duration `mapstructure:"timeout"`
	AllowedSchemes []string      `mapstructure:"allowed_schemes"`
	Leeway         time.Duration `mapstructure:"leeway"`
}

type TransportConfig struct {
	ExcludedIdentityPrefixes []string `mapstructure:"excluded_identity_prefixes"`
	GroupRoomName            string   `mapstructure:"group_room_name"`
	ICEServers               []string `mapstructure:"ice_servers"`
}

type PresenceConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	StalenessWindow   time.Duration `mapstructure:"staleness_window"`
}

type OverlayConfig struct {
	DedupCapacity     int           `mapstructure:"dedup_capacity"`
	TimelineSize      int           `mapstructure:"timeline_size"`
	EnrichmentTimeout time.Duration `mapstructure:"enrichment_timeout"`
	GenericGiftLabel  string        `mapstructure:"generic_gift_label"`
}

type ViewerCountConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
}

type CacheConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Load reads config.yaml under configPath, then applies defaults and
// environment overrides. A .env file in the working directory, if present,
// seeds the environment first; variables already set win.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v, err := pkgconfig.Load(configPath, "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8095)
	v.SetDefault("server.ping_interval", "30s")
	v.SetDefault("server.pong_wait", "60s")
	v.SetDefault("server.write_wait", "10s")
	v.SetDefault("server.max_message_size", 4096)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("viewer.platform", "mobile")
	v.SetDefault("token.base_url", "http://localhost:3000")
	v.SetDefault("token.path", "/api/livekit/token")
	v.SetDefault("token.timeout", "10s")
	v.SetDefault("token.allowed_schemes", []string{"wss", "https"})
	v.SetDefault("token.leeway", "5s")
	v.SetDefault("transport.excluded_identity_prefixes", []string{"anon_", "guest_", "viewer_"})
	v.SetDefault("transport.group_room_name", "live_central")
	v.SetDefault("transport.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("presence.heartbeat_interval", "12s")
	v.SetDefault("presence.write_timeout", "5s")
	v.SetDefault("presence.staleness_window", "60s")
	v.SetDefault("overlay.dedup_capacity", 4096)
	v.SetDefault("overlay.timeline_size", 50)
	v.SetDefault("overlay.enrichment_timeout", "5s")
	v.SetDefault("overlay.generic_gift_label", "Gift")
	v.SetDefault("viewer_count.poll_interval", "60s")
	v.SetDefault("viewer_count.poll_timeout", "5s")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.prefix", "viewer:lookup")
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "viewer.db")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("pubsub.driver", "redis")
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.pool_size", 10)
	v.SetDefault("pubsub.redis.read_timeout", "3s")
	v.SetDefault("pubsub.redis.write_timeout", "3s")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "viewer-session")
	v.SetDefault("pubsub.kafka.partitions", 4)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("viewer.id", "VIEWER_ID")
	v.BindEnv("viewer.username", "VIEWER_USERNAME")
	v.BindEnv("viewer.device_id", "VIEWER_DEVICE_ID")
	v.BindEnv("viewer.access_token", "VIEWER_ACCESS_TOKEN")
	v.BindEnv("token.base_url", "TOKEN_BASE_URL")
	v.BindEnv("cache.address", "REDIS_ADDRESS")
	v.BindEnv("cache.password", "REDIS_PASSWORD")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "REDIS_ADDRESS")
	v.BindEnv("pubsub.redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.PingInterval = pkgconfig.Duration(v, "server.ping_interval", 30*time.Second)
	cfg.Server.PongWait = pkgconfig.Duration(v, "server.pong_wait", 60*time.Second)
	cfg.Server.WriteWait = pkgconfig.Duration(v, "server.write_wait", 10*time.Second)
	cfg.Token.Timeout = pkgconfig.Duration(v, "token.timeout", 10*time.Second)
	cfg.Token.Leeway = pkgconfig.Duration(v, "token.leeway", 5*time.Second)
	cfg.Presence.HeartbeatInterval = pkgconfig.Duration(v, "presence.heartbeat_interval", 12*time.Second)
	cfg.Presence.WriteTimeout = pkgconfig.Duration(v, "presence.write_timeout", 5*time.Second)
	cfg.Presence.StalenessWindow = pkgconfig.Duration(v, "presence.staleness_window", 60*time.Second)
	cfg.Overlay.EnrichmentTimeout = pkgconfig.Duration(v, "overlay.enrichment_timeout", 5*time.Second)
	cfg.ViewerCount.PollInterval = pkgconfig.Duration(v, "viewer_count.poll_interval", 60*time.Second)
	cfg.ViewerCount.PollTimeout = pkgconfig.Duration(v, "viewer_count.poll_timeout", 5*time.Second)
	cfg.Cache.TTL = pkgconfig.Duration(v, "cache.ttl", 30*time.Second)
	cfg.PubSub.Redis.ReadTimeout = pkgconfig.Duration(v, "pubsub.redis.read_timeout", 3*time.Second)
	cfg.PubSub.Redis.WriteTimeout = pkgconfig.Duration(v, "pubsub.redis.write_timeout", 3*time.Second)

	// Lists may arrive comma separated from the environment
	cfg.Token.AllowedSchemes = pkgconfig.StringSlice(v, "token.allowed_schemes")
	cfg.Transport.ExcludedIdentityPrefixes = pkgconfig.StringSlice(v, "transport.excluded_identity_prefixes")
	cfg.Transport.ICEServers = pkgconfig.StringSlice(v, "transport.ice_servers")

	return &cfg, nil
}
