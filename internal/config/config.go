package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		Mode          string `yaml:"mode"`
		CatalogPath   string `yaml:"catalog_path"`
		CatalogTTL    string `yaml:"catalog_ttl"`
		OpenSchedule  string `yaml:"open_schedule"`
		CloseSchedule string `yaml:"close_schedule"`
		Timezone      string `yaml:"timezone"`
		BotMembers    int    `yaml:"bot_members"`
		Snapshot      struct {
			Backend string `yaml:"backend"`
			Path    string `yaml:"path"`
		} `yaml:"snapshot"`
	} `yaml:"quiz"`
}

// Load reads YAML config from path, then applies environment overrides
// (including a .env file in the working directory, if present).
// A missing config file yields defaults plus overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	case os.IsNotExist(err):
	default:
		return cfg, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("QUIZ_MODE"); v != "" {
		c.Quiz.Mode = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("BOT_MEMBERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Quiz.BotMembers = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Quiz.Timezone == "" {
		c.Quiz.Timezone = "UTC"
	}
	if c.Quiz.BotMembers <= 0 {
		c.Quiz.BotMembers = 1
	}
	if c.Quiz.Snapshot.Backend == "" {
		c.Quiz.Snapshot.Backend = "file"
	}
	if c.Quiz.Snapshot.Path == "" {
		c.Quiz.Snapshot.Path = "data/snapshot.json"
	}
}

// Location resolves the schedule timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Quiz.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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
