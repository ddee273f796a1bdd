package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultTimezone = "Asia/Novosibirsk"

var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Bot struct {
		Token       string `yaml:"token"`
		Username    string `yaml:"username"`
		APIURL      string `yaml:"api_url"`
		PollTimeout string `yaml:"poll_timeout"`
		Workers     int    `yaml:"workers"`
	} `yaml:"bot"`
	Quest struct {
		EndTime    string   `yaml:"end_time"`
		Timezone   string   `yaml:"timezone"`
		Operators  []string `yaml:"admin_ids"`
		Catalog    string   `yaml:"catalog"`
		CatalogTTL string   `yaml:"catalog_ttl"`
		MediaDir   string   `yaml:"media_dir"`
	} `yaml:"quest"`
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
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
}

// Load reads .env (if present), the YAML config at path (if non-empty) and then
// applies environment overrides and defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Bot.Token = getEnv("BOT_TOKEN", c.Bot.Token)
	c.Bot.Username = getEnv("BOT_USERNAME", c.Bot.Username)
	c.Postgres.URL = getEnv("DATABASE_URL", c.Postgres.URL)
	c.Quest.EndTime = getEnv("QUEST_END_TIME", c.Quest.EndTime)
	c.Quest.Timezone = getEnv("QUEST_TIMEZONE", c.Quest.Timezone)
	c.Quest.Catalog = getEnv("QUEST_CATALOG", c.Quest.Catalog)
	c.Quest.MediaDir = getEnv("MEDIA_DIR", c.Quest.MediaDir)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.AMQP.URL = getEnv("AMQP_URL", c.AMQP.URL)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	if ids := os.Getenv("ADMIN_IDS"); ids != "" {
		c.Quest.Operators = SplitList(ids)
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Quest.Timezone == "" {
		c.Quest.Timezone = DefaultTimezone
	}
	if c.Quest.MediaDir == "" {
		c.Quest.MediaDir = "images"
	}
	if c.Bot.APIURL == "" {
		c.Bot.APIURL = "https://api.telegram.org"
	}
	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 8
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "quest"
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "quest.events"
	}
}

// Deadline parses the quest end time in the configured timezone.
// An empty end time yields the zero time, meaning the quest never closes.
func (c Config) Deadline() (time.Time, error) {
	raw := strings.TrimSpace(c.Quest.EndTime)
	if raw == "" {
		return time.Time{}, nil
	}
	loc, err := time.LoadLocation(c.Quest.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("quest timezone %q: %w", c.Quest.Timezone, err)
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("quest end time %q: unsupported format, use YYYY-MM-DD HH:MM:SS", raw)
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

// SplitList splits a comma or space separated list, dropping empty items.
func SplitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
