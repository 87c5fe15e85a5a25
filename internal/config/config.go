package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL        string `yaml:"ttl"`
		ServiceURL string `yaml:"service_url"`
	} `yaml:"quiz"`
	Game struct {
		GracePeriod string `yaml:"grace_period"`
		RevealDelay string `yaml:"reveal_delay"`
		EarlyReveal bool   `yaml:"early_reveal"`
	} `yaml:"game"`
	Notify struct {
		AnalyticsURL   string `yaml:"analytics_url"`
		UserServiceURL string `yaml:"user_service_url"`
		NATSURL        string `yaml:"nats_url"`
		NATSSubject    string `yaml:"nats_subject"`
		PoolSize       int    `yaml:"pool_size"`
		Timeout        string `yaml:"timeout"`
	} `yaml:"notify"`
}

// Load reads YAML config from path. A missing file yields an empty config so the
// service can run from environment variables alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides file values with the environment variables the deployment sets.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Server.Port, "PORT")
	set(&c.Log.Level, "LOG_LEVEL")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Redis.Password, "REDIS_PASSWORD")
	set(&c.Postgres.URL, "POSTGRES_URL")
	set(&c.Quiz.ServiceURL, "QUIZ_SERVICE_URL")
	set(&c.Notify.AnalyticsURL, "ANALYTICS_SERVICE_URL")
	set(&c.Notify.UserServiceURL, "USER_SERVICE_URL")
	set(&c.Notify.NATSURL, "NATS_URL")
	if v := getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	if v := getenv("EARLY_REVEAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Game.EarlyReveal = b
		}
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
