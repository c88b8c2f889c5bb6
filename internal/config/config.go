package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend modes select where grading records are read and written.
const (
	BackendREST     = "rest"
	BackendDatabase = "database"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName      string
	AppEnv       string
	AppPort      string
	AllowOrigins []string

	BackendMode          string
	BackendURL           string
	BackendToken         string
	BackendTimeout       time.Duration
	BackendTrailingSlash bool

	DatabaseURL string
	RedisURL    string
	NATSURL     string
	NATSChannel string

	JWTSecret string

	SessionTTL       time.Duration
	SweepInterval    time.Duration
	MasteryCacheTTL  time.Duration
	WriteConcurrency int
	WriteTimeout     time.Duration
	CommitRateLimit  int
	ToastFeedSize    int
	StreamKeepAlive  time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CBC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "CBC Grading API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.allow_origins", "*")
	v.SetDefault("backend.mode", BackendREST)
	v.SetDefault("backend.timeout", "15s")
	v.SetDefault("backend.trailing_slash", false)
	v.SetDefault("nats.channel", "cbc")
	v.SetDefault("session.ttl", "2h")
	v.SetDefault("session.sweep_interval", "5m")
	v.SetDefault("mastery.cache_ttl", "5m")
	v.SetDefault("grading.write_concurrency", 4)
	v.SetDefault("grading.write_timeout", "30s")
	v.SetDefault("grading.commit_rate_limit", 30)
	v.SetDefault("toasts.feed_size", 50)
	v.SetDefault("toasts.keep_alive", "30s")

	durations := map[string]time.Duration{}
	for _, key := range []string{"backend.timeout", "session.ttl", "session.sweep_interval", "mastery.cache_ttl", "grading.write_timeout", "toasts.keep_alive"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		AllowOrigins:         splitList(v.GetString("app.allow_origins")),
		BackendMode:          strings.ToLower(strings.TrimSpace(v.GetString("backend.mode"))),
		BackendURL:           v.GetString("backend.url"),
		BackendToken:         v.GetString("backend.token"),
		BackendTimeout:       durations["backend.timeout"],
		BackendTrailingSlash: v.GetBool("backend.trailing_slash"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		NATSChannel:          v.GetString("nats.channel"),
		JWTSecret:            v.GetString("jwt.secret"),
		SessionTTL:           durations["session.ttl"],
		SweepInterval:        durations["session.sweep_interval"],
		MasteryCacheTTL:      durations["mastery.cache_ttl"],
		WriteConcurrency:     v.GetInt("grading.write_concurrency"),
		WriteTimeout:         durations["grading.write_timeout"],
		CommitRateLimit:      v.GetInt("grading.commit_rate_limit"),
		ToastFeedSize:        v.GetInt("toasts.feed_size"),
		StreamKeepAlive:      durations["toasts.keep_alive"],
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the settings that depend on each other.
func (c Config) Validate() error {
	switch c.BackendMode {
	case BackendREST:
		if strings.TrimSpace(c.BackendURL) == "" {
			return fmt.Errorf("backend url must be provided when backend mode is %q", BackendREST)
		}
	case BackendDatabase:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("database url must be provided when backend mode is %q", BackendDatabase)
		}
	default:
		return fmt.Errorf("unknown backend mode %q", c.BackendMode)
	}

	if c.WriteConcurrency <= 0 {
		return fmt.Errorf("grading write concurrency must be positive")
	}

	return nil
}

// RequireJWTSecret reports an error when the HTTP server has no signing secret.
func (c Config) RequireJWTSecret() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("jwt secret must be provided")
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
