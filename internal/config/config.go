package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server struct {
		Addr      string `yaml:"addr"`
		StaticDir string `yaml:"static_dir"`
		// Requests per second per client IP on the REST API. Zero disables.
		RateLimit int `yaml:"rate_limit"`
	} `yaml:"server"`
	Storage struct {
		// "memory" or "pebble"
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
	} `yaml:"storage"`
	Auth struct {
		Admin      string        `yaml:"admin"`
		SessionTTL time.Duration `yaml:"session_ttl"`
		SweepCron  string        `yaml:"sweep_cron"`
	} `yaml:"auth"`
	Hub struct {
		SendBuffer int `yaml:"send_buffer"`
		// Inbound websocket frames per second per connection.
		FrameRate  float64 `yaml:"frame_rate"`
		FrameBurst int     `yaml:"frame_burst"`
	} `yaml:"hub"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Default() Config {
	var c Config
	c.Server.Addr = ":3000"
	c.Server.StaticDir = "./public"
	c.Server.RateLimit = 100
	c.Storage.Driver = "memory"
	c.Storage.Path = "./data"
	c.Auth.Admin = "admin"
	c.Auth.SessionTTL = 24 * time.Hour
	c.Auth.SweepCron = "*/5 * * * *"
	c.Hub.SendBuffer = 64
	c.Hub.FrameRate = 10
	c.Hub.FrameBurst = 20
	c.Log.Level = "info"
	return c
}

// Load builds the effective config: defaults, then the YAML file at path
// (when non-empty), then a .env file in the working directory, then the
// process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// a missing .env is normal outside development
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("CHAT_ADDR", &c.Server.Addr)
	str("CHAT_STATIC_DIR", &c.Server.StaticDir)
	str("CHAT_STORAGE", &c.Storage.Driver)
	str("CHAT_DB_PATH", &c.Storage.Path)
	str("CHAT_ADMIN", &c.Auth.Admin)
	str("CHAT_SWEEP_CRON", &c.Auth.SweepCron)
	str("CHAT_LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("CHAT_SESSION_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: CHAT_SESSION_TTL: %v", ErrInvalidConfig, err)
		}
		c.Auth.SessionTTL = d
	}
	if v, ok := lookup("CHAT_RATE_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CHAT_RATE_LIMIT: %v", ErrInvalidConfig, err)
		}
		c.Server.RateLimit = n
	}
	if v, ok := lookup("CHAT_SEND_BUFFER"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CHAT_SEND_BUFFER: %v", ErrInvalidConfig, err)
		}
		c.Hub.SendBuffer = n
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "pebble":
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for pebble", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if c.Auth.Admin == "" {
		return fmt.Errorf("%w: auth.admin is empty", ErrInvalidConfig)
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("%w: auth.session_ttl must be positive", ErrInvalidConfig)
	}
	if !gronx.IsValid(c.Auth.SweepCron) {
		return fmt.Errorf("%w: auth.sweep_cron %q", ErrInvalidConfig, c.Auth.SweepCron)
	}
	if c.Hub.SendBuffer <= 0 {
		return fmt.Errorf("%w: hub.send_buffer must be positive", ErrInvalidConfig)
	}
	if c.Hub.FrameRate <= 0 || c.Hub.FrameBurst <= 0 {
		return fmt.Errorf("%w: hub frame rate and burst must be positive", ErrInvalidConfig)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	return nil
}
