package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries everything the server reads from the environment.
type Config struct {
	Port             string
	RedisAddr        string
	JWTSecret        string
	ReviewServiceURL string

	IdleTimeout     time.Duration
	EvictGrace      time.Duration
	PersistInterval time.Duration

	SendQueueSize int
	EditLogWindow int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnvOrDefault("PORT", "8080"),
		RedisAddr:        getEnvOrDefault("REDIS_ADDR", "redis:6379"),
		JWTSecret:        getEnvOrDefault("JWT_SECRET", "your-secret-key"),
		ReviewServiceURL: os.Getenv("REVIEW_SERVICE_URL"),
	}

	var err error
	if cfg.IdleTimeout, err = getDuration("SESSION_IDLE_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}
	if cfg.EvictGrace, err = getDuration("ROOM_EVICT_GRACE", time.Minute); err != nil {
		return nil, err
	}
	if cfg.PersistInterval, err = getDuration("SNAPSHOT_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SendQueueSize, err = getInt("SEND_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.EditLogWindow, err = getInt("EDIT_LOG_WINDOW", 1024); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("bad %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("bad %s: %w", key, err)
	}
	return n, nil
}
