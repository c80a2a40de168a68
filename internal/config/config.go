package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultAPIKey is sent when no key is configured; the backend treats it as a
// development login.
const DefaultAPIKey = "dev-mode"

type Config struct {
	API     APIConfig     `yaml:"api"`
	Channel ChannelConfig `yaml:"channel"`
	Log     LogConfig     `yaml:"log"`
	Mock    MockConfig    `yaml:"mock"`
}

type APIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	WSURL       string        `yaml:"ws_url"`
	APIKey      string        `yaml:"api_key"`
	DeviceID    string        `yaml:"device_id"`
	Timeout     time.Duration `yaml:"timeout"`
	SessionFile string        `yaml:"session_file"`
}

type ChannelConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongTimeout      time.Duration `yaml:"pong_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type MockConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Environment   string        `yaml:"environment"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	EventRate     float64       `yaml:"event_rate"`
	EventInterval time.Duration `yaml:"event_interval"`
}

func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			WSURL:   "ws://localhost:8000/ws",
			APIKey:  DefaultAPIKey,
			Timeout: 10 * time.Second,
		},
		Channel: ChannelConfig{
			MaxAttempts:      5,
			BaseDelay:        time.Second,
			MaxDelay:         30 * time.Second,
			PingInterval:     30 * time.Second,
			PongTimeout:      60 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Mock: MockConfig{
			Host:          "127.0.0.1",
			Port:          8000,
			Environment:   "development",
			SessionTTL:    12 * time.Hour,
			EventRate:     20,
			EventInterval: 500 * time.Millisecond,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	cfg.applyEnv()

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg = defaultConfig()
		cfg.applyEnv()
		return cfg, nil
	}
	return cfg, err
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DHARMA_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("DHARMA_WS_URL"); v != "" {
		c.API.WSURL = v
	}
	if v := os.Getenv("DHARMA_API_KEY"); v != "" {
		c.API.APIKey = v
	}
}

// Validate reports the first setting that would leave a client unusable.
func (c *Config) Validate() error {
	if err := checkURL(c.API.BaseURL, "http", "https"); err != nil {
		return errors.Wrap(err, "api.base_url")
	}
	if err := checkURL(c.API.WSURL, "ws", "wss"); err != nil {
		return errors.Wrap(err, "api.ws_url")
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}
	if c.Channel.MaxAttempts <= 0 {
		return errors.New("channel.max_attempts must be positive")
	}
	if c.Channel.BaseDelay <= 0 {
		return errors.New("channel.base_delay must be positive")
	}
	if c.Channel.MaxDelay < 0 {
		return errors.New("channel.max_delay must not be negative")
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return errors.Errorf("%q: want scheme %v with a host", raw, schemes)
}

// MockAddr is the listen address of the development backend.
func (c *Config) MockAddr() string {
	return net.JoinHostPort(c.Mock.Host, strconv.Itoa(c.Mock.Port))
}
