// Package config loads the dashboard configuration from YAML with
// NUTETRA_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luki/nutetra/internal/sensor"
)

type Config struct {
	Poll     PollConfig     `yaml:"poll"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Queue    QueueConfig    `yaml:"queue"`
	Settings SettingsConfig `yaml:"settings"`
	Ranges   RangesConfig   `yaml:"ranges"`
	Store    StoreConfig    `yaml:"store"`
	Influx   InfluxConfig   `yaml:"influx"`
	API      APIConfig      `yaml:"api"`
	Log      LogConfig      `yaml:"log"`
}

// PollConfig configures the request/response producer. An empty URL
// disables polling.
type PollConfig struct {
	URL      string        `yaml:"url"`
	Schedule string        `yaml:"schedule"`
	Timeout  time.Duration `yaml:"timeout"`
	Breaker  BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	Failures int           `yaml:"failures"`
	Open     time.Duration `yaml:"open"`
	Interval time.Duration `yaml:"interval"`
}

// MQTTConfig configures the push producer and the notification publisher.
// An empty Broker disables both.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Topic       string        `yaml:"topic"`
	NotifyTopic string        `yaml:"notify_topic"`
	DedupTTL    time.Duration `yaml:"dedup_ttl"`
	Retries     int           `yaml:"retries"`
}

type QueueConfig struct {
	Size int `yaml:"size"`
}

type SettingsConfig struct {
	DB string `yaml:"db"`
}

// RangesConfig carries legacy display labels such as "Target: 5.8 - 6.2"
// keyed by channel. They only fill channels the settings store leaves
// without a range.
type RangesConfig struct {
	Labels map[string]string `yaml:"labels"`
}

type StoreConfig struct {
	Dir string `yaml:"dir"`
}

// InfluxConfig configures the history sink. An empty URL disables it.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load reads path, applies defaults and environment overrides, and
// validates the result. A missing file is an error; use Default for a
// config without a file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return finish(&cfg)
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Poll.Schedule == "" {
		c.Poll.Schedule = "@every 10s"
	}
	if c.Poll.Timeout == 0 {
		c.Poll.Timeout = 5 * time.Second
	}
	if c.Poll.Breaker.Failures == 0 {
		c.Poll.Breaker.Failures = 3
	}
	if c.Poll.Breaker.Open == 0 {
		c.Poll.Breaker.Open = 30 * time.Second
	}
	if c.Poll.Breaker.Interval == 0 {
		c.Poll.Breaker.Interval = time.Minute
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "nutetra-dashboard"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "nutetra/sensor_update"
	}
	if c.MQTT.NotifyTopic == "" {
		c.MQTT.NotifyTopic = "nutetra/notifications"
	}
	if c.MQTT.DedupTTL == 0 {
		c.MQTT.DedupTTL = time.Minute
	}
	if c.MQTT.Retries == 0 {
		c.MQTT.Retries = 5
	}
	if c.Queue.Size == 0 {
		c.Queue.Size = 64
	}
	if c.Store.Dir == "" {
		c.Store.Dir = defaultDataDir()
	}
	if c.Settings.DB == "" {
		c.Settings.DB = filepath.Join(c.Store.Dir, "settings.db")
	}
	if c.Influx.Bucket == "" {
		c.Influx.Bucket = "nutetra"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nutetra-data"
	}
	return filepath.Join(home, ".nutetra-data")
}

func (c *Config) applyEnv() {
	c.Poll.URL = getenv("NUTETRA_POLL_URL", c.Poll.URL)
	c.Poll.Schedule = getenv("NUTETRA_POLL_SCHEDULE", c.Poll.Schedule)
	c.MQTT.Broker = getenv("NUTETRA_MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Username = getenv("NUTETRA_MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getenv("NUTETRA_MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.Topic = getenv("NUTETRA_MQTT_TOPIC", c.MQTT.Topic)
	c.Queue.Size = getenvInt("NUTETRA_QUEUE_SIZE", c.Queue.Size)
	c.Store.Dir = getenv("NUTETRA_DATA_DIR", c.Store.Dir)
	c.Settings.DB = getenv("NUTETRA_SETTINGS_DB", c.Settings.DB)
	c.Influx.URL = getenv("NUTETRA_INFLUX_URL", c.Influx.URL)
	c.Influx.Token = getenv("NUTETRA_INFLUX_TOKEN", c.Influx.Token)
	c.Influx.Org = getenv("NUTETRA_INFLUX_ORG", c.Influx.Org)
	c.Influx.Bucket = getenv("NUTETRA_INFLUX_BUCKET", c.Influx.Bucket)
	c.API.Addr = getenv("NUTETRA_API_ADDR", c.API.Addr)
	c.Log.Level = getenv("NUTETRA_LOG_LEVEL", c.Log.Level)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func (c *Config) validate() error {
	for key := range c.Ranges.Labels {
		if _, ok := sensor.ParseChannel(key); !ok {
			return fmt.Errorf("ranges.labels: unknown channel %q", key)
		}
	}
	if c.Poll.URL != "" && !strings.HasPrefix(c.Poll.URL, "http://") && !strings.HasPrefix(c.Poll.URL, "https://") {
		return fmt.Errorf("poll.url must be an http(s) URL, got %q", c.Poll.URL)
	}
	if c.Poll.Timeout < 0 {
		return fmt.Errorf("poll.timeout must not be negative")
	}
	if c.Poll.Breaker.Failures < 1 {
		return fmt.Errorf("poll.breaker.failures must be at least 1")
	}
	if c.Queue.Size < 1 {
		return fmt.Errorf("queue.size must be at least 1")
	}
	if c.Influx.URL != "" && (c.Influx.Token == "" || c.Influx.Org == "") {
		return fmt.Errorf("influx.token and influx.org are required when influx.url is set")
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	return nil
}

// PollEnabled reports whether the poll producer should run.
func (c *Config) PollEnabled() bool { return c.Poll.URL != "" }

// MQTTEnabled reports whether the push producer should run.
func (c *Config) MQTTEnabled() bool { return c.MQTT.Broker != "" }

// InfluxEnabled reports whether readings are written to InfluxDB.
func (c *Config) InfluxEnabled() bool { return c.Influx.URL != "" }

// RangeLabels returns the configured range labels keyed by channel.
func (c *Config) RangeLabels() map[sensor.Channel]string {
	out := make(map[sensor.Channel]string, len(c.Ranges.Labels))
	for key, label := range c.Ranges.Labels {
		if ch, ok := sensor.ParseChannel(key); ok {
			out[ch] = label
		}
	}
	return out
}
