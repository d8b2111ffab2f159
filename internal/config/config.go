// Package config loads diffsyncd's runtime configuration from
// environment variables, with an optional YAML file overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting diffsyncd's entrypoint needs to wire up
// the service.
type Config struct {
	Env      string `yaml:"env"`
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL string `yaml:"databaseUrl"`

	RedisAddr string        `yaml:"redisAddr"`
	RedisDB   int           `yaml:"redisDb"`
	SocketTTL time.Duration `yaml:"socketTtl"`

	HistorySize int `yaml:"historySize"`

	RateLimitPerSecond float64 `yaml:"rateLimitPerSecond"`
	RateLimitBurst     int     `yaml:"rateLimitBurst"`
}

// Load builds a Config from environment variables, then, if path is
// non-empty, overlays values found in the YAML file at path. Env vars
// set defaults; the file, when present, wins.
func Load(path string) (Config, error) {
	cfg := Config{
		Env:                getEnv("DIFFSYNC_ENV", "dev"),
		Addr:               getEnv("DIFFSYNC_ADDR", ":8080"),
		LogLevel:           getEnv("DIFFSYNC_LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DIFFSYNC_DATABASE_URL", ""),
		RedisAddr:          getEnv("DIFFSYNC_REDIS_ADDR", ""),
		RedisDB:            getEnvInt("DIFFSYNC_REDIS_DB", 0),
		SocketTTL:          getEnvDuration("DIFFSYNC_SOCKET_TTL", 30*time.Second),
		HistorySize:        getEnvInt("DIFFSYNC_HISTORY_SIZE", 100),
		RateLimitPerSecond: getEnvFloat("DIFFSYNC_RATE_LIMIT_PER_SECOND", 20),
		RateLimitBurst:     getEnvInt("DIFFSYNC_RATE_LIMIT_BURST", 40),
	}

	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}

	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}

	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}

	return d
}
