package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting of the orchestrator process.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int
	LogLevel     slog.Level

	CORSAllowedOrigins []string

	AdminPasswordHash string

	TickInterval      time.Duration
	WarmupDelay       time.Duration
	BotFillDelay      time.Duration
	IsolateFailures   bool
	MaxLoggedFailures int
	BotNameAttempts   int

	RedisURL       string
	LeaderLeaseTTL time.Duration

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load reads the environment. A .env file is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	level, err := parseLogLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:        dbURL,
		JWTSecretKey:       jwtKey,
		ServerPort:         port,
		LogLevel:           level,
		AdminPasswordHash:  os.Getenv("ADMIN_PASSWORD_HASH"),
		CORSAllowedOrigins: listEnv("CORS_ALLOWED_ORIGINS"),
		RedisURL:           os.Getenv("REDIS_URL"),
		R2AccountID:        os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:      os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey:  os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:       os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:    os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	if cfg.TickInterval, err = durationEnv("ORCHESTRATOR_TICK_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.WarmupDelay, err = durationEnv("ORCHESTRATOR_WARMUP_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.BotFillDelay, err = durationEnv("BOT_FILL_DELAY", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LeaderLeaseTTL, err = durationEnv("LEADER_LEASE_TTL", 45*time.Second); err != nil {
		return nil, err
	}
	if cfg.IsolateFailures, err = boolEnv("ORCHESTRATOR_ISOLATE_FAILURES", true); err != nil {
		return nil, err
	}
	if cfg.MaxLoggedFailures, err = intEnv("ORCHESTRATOR_MAX_LOGGED_FAILURES", 3); err != nil {
		return nil, err
	}
	if cfg.BotNameAttempts, err = intEnv("BOT_NAME_ATTEMPTS", 5); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TickInterval <= 0 {
		return errors.New("ORCHESTRATOR_TICK_INTERVAL must be positive")
	}
	if c.WarmupDelay < 0 {
		return errors.New("ORCHESTRATOR_WARMUP_DELAY must not be negative")
	}
	if c.BotFillDelay < 0 {
		return errors.New("BOT_FILL_DELAY must not be negative")
	}
	if c.BotNameAttempts < 1 {
		return errors.New("BOT_NAME_ATTEMPTS must be at least 1")
	}
	if c.RedisURL != "" && c.LeaderLeaseTTL <= c.TickInterval {
		return fmt.Errorf("LEADER_LEASE_TTL (%s) must exceed ORCHESTRATOR_TICK_INTERVAL (%s)", c.LeaderLeaseTTL, c.TickInterval)
	}
	return nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func listEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if raw == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL environment variable: %w", err)
	}
	return level, nil
}
