package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	DBSchema      string
	DBAutoMigrate bool

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Multi-instance feed fan-out. Empty disables Redis.
	RedisURL     string
	RedisChannel string

	MetricsEnabled bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// Security policy:
	// If true, RSVP_ADMIN_KEY_HASH MUST be set and startup fails otherwise.
	RequireAdminKey bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("RSVP_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("RSVP_LOG_LEVEL", "info"),
		LogFormat: EnvString("RSVP_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("RSVP_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("RSVP_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("RSVP_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("RSVP_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("RSVP_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("RSVP_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("RSVP_DATABASE_URL", ""),
		DBMaxConns:    EnvInt32("RSVP_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("RSVP_DB_MIN_CONNS", 0),
		DBSchema:      EnvString("RSVP_DB_SCHEMA", "rsvp"),
		DBAutoMigrate: EnvBool("RSVP_DB_AUTO_MIGRATE", false),

		ReadinessRequireDB: EnvBool("RSVP_READINESS_REQUIRE_DB", false),

		RedisURL:     EnvString("RSVP_REDIS_URL", ""),
		RedisChannel: EnvString("RSVP_REDIS_CHANNEL", "rsvp:feed:v1"),

		MetricsEnabled: EnvBool("RSVP_METRICS_ENABLED", true),

		CORSAllowedOrigins:   EnvCSV("RSVP_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("RSVP_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("RSVP_CORS_MAX_AGE_SECONDS", 600),

		RequireAdminKey: EnvBool("RSVP_REQUIRE_ADMIN_KEY", false),
	}
}
