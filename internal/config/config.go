// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, authentication, rate
// limiting, live connections, and observability.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-club-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig defines token issuance, API key, and same-origin settings.
type AuthConfig struct {
	JWTSecret        string        // JWT_SECRET (HS256 signing key)
	JWTTTL           time.Duration // JWT_TTL
	JWTIssuer        string        // JWT_ISSUER
	APIKeyHeader     string        // API_KEY_HEADER
	SameOriginAllow  []string      // SAME_ORIGIN_ALLOWLIST; empty means host-echo detection
	TrustProxyProto  bool          // TRUST_FORWARDED_PROTO; host-echo reads X-Forwarded-Proto
	StoreTimeout     time.Duration // AUTH_TIMEOUT, bound on per-request identity lookups
	DefaultRateLimit int           // API_KEY_DEFAULT_RATE_LIMIT, requests per window
	RateWindow       time.Duration // RATE_LIMIT_WINDOW
	RedisURL         string        // REDIS_URL; empty keeps rate windows in-process
}

// RealtimeConfig defines live connection settings.
type RealtimeConfig struct {
	HandshakeTimeout time.Duration // WS_HANDSHAKE_TIMEOUT
	WriteTimeout     time.Duration // WS_WRITE_TIMEOUT
	BacklogLimit     int           // WS_BACKLOG_LIMIT, unread items pushed on connect
	AllowedOrigins   []string      // WS_ALLOWED_ORIGINS host patterns
}

// SeedConfig describes an optional bootstrap administrator.
type SeedConfig struct {
	AdminUsername string // SEED_ADMIN_USERNAME
	AdminPassword string // SEED_ADMIN_PASSWORD
	AdminEmail    string // SEED_ADMIN_EMAIL
}

// Enabled reports whether an admin account should be seeded.
func (s SeedConfig) Enabled() bool {
	return s.AdminUsername != "" && s.AdminPassword != ""
}

// devJWTSecret is used only in debug/test mode when JWT_SECRET is unset.
const devJWTSecret = "dev-only-insecure-jwt-secret"

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath string // SQLite path

	// Edge rate limiting (per client IP, public endpoints)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Authentication / API keys
	Auth AuthConfig

	// Live connections
	Realtime RealtimeConfig

	// Bootstrap
	Seed SeedConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "app.db"),

		// Edge rate limiting
		RateRPS:   getfloat("EDGE_RATE_RPS", 5.0),
		RateBurst: getint("EDGE_RATE_BURST", 10),

		// Authentication
		Auth: AuthConfig{
			JWTSecret:        getenv("JWT_SECRET", ""),
			JWTTTL:           getdur("JWT_TTL", 24*time.Hour),
			JWTIssuer:        getenv("JWT_ISSUER", "go-club-backend"),
			APIKeyHeader:     strings.ToLower(getenv("API_KEY_HEADER", "x-api-key")),
			SameOriginAllow:  splitCSV(getenv("SAME_ORIGIN_ALLOWLIST", "")),
			TrustProxyProto:  getbool("TRUST_FORWARDED_PROTO", false),
			StoreTimeout:     getdur("AUTH_TIMEOUT", 5*time.Second),
			DefaultRateLimit: getint("API_KEY_DEFAULT_RATE_LIMIT", 1000),
			RateWindow:       getdur("RATE_LIMIT_WINDOW", time.Hour),
			RedisURL:         getenv("REDIS_URL", ""),
		},

		// Live connections
		Realtime: RealtimeConfig{
			HandshakeTimeout: getdur("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
			WriteTimeout:     getdur("WS_WRITE_TIMEOUT", 5*time.Second),
			BacklogLimit:     getint("WS_BACKLOG_LIMIT", 50),
			AllowedOrigins:   splitCSV(getenv("WS_ALLOWED_ORIGINS", "")),
		},

		// Bootstrap
		Seed: SeedConfig{
			AdminUsername: getenv("SEED_ADMIN_USERNAME", ""),
			AdminPassword: getenv("SEED_ADMIN_PASSWORD", ""),
			AdminEmail:    getenv("SEED_ADMIN_EMAIL", ""),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-club-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	cfg.normalize()
	return cfg, cfg.Validate()
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	if c.Auth.JWTSecret == "" && c.GinMode != "release" {
		c.Auth.JWTSecret = devJWTSecret
	}
	if c.Auth.APIKeyHeader == "" {
		c.Auth.APIKeyHeader = "x-api-key"
	}
	for i, o := range c.Auth.SameOriginAllow {
		c.Auth.SameOriginAllow[i] = strings.TrimRight(strings.ToLower(o), "/")
	}
}

// Validate reports every invalid setting at once, joined into one error.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")
	check(c.RateRPS >= 0, "EDGE_RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "EDGE_RATE_BURST must be >= 1")

	a := c.Auth
	check(len(a.JWTSecret) >= 16, "JWT_SECRET must be at least 16 bytes")
	check(a.JWTTTL > 0, "JWT_TTL must be > 0")
	check(a.StoreTimeout > 0, "AUTH_TIMEOUT must be > 0")
	check(a.DefaultRateLimit >= 1, "API_KEY_DEFAULT_RATE_LIMIT must be >= 1")
	check(a.RateWindow > 0, "RATE_LIMIT_WINDOW must be > 0")
	for _, o := range a.SameOriginAllow {
		u, err := url.Parse(o)
		check(err == nil && u.Scheme != "" && u.Host != "",
			"SAME_ORIGIN_ALLOWLIST entries must be scheme://host origins")
	}
	if a.RedisURL != "" {
		_, err := url.Parse(a.RedisURL)
		check(err == nil, "REDIS_URL must be a valid URL")
	}

	check(c.Realtime.HandshakeTimeout > 0 && c.Realtime.WriteTimeout > 0, "WS timeouts must be positive durations")
	check(c.Realtime.BacklogLimit >= 0, "WS_BACKLOG_LIMIT must be >= 0")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// envOr parses the variable named k, falling back to def when it is unset,
// empty, or unparsable.
func envOr[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getenv(k, def string) string {
	return envOr(k, def, func(v string) (string, error) { return v, nil })
}

func getfloat(k string, def float64) float64 {
	return envOr(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getint(k string, def int) int { return envOr(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return envOr(k, def, time.ParseDuration) }

var errNotBool = errors.New("not a boolean")

func getbool(k string, def bool) bool {
	return envOr(k, def, func(v string) (bool, error) {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, errNotBool
	})
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
