// config/config.go
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SaveAuto   = "auto"
	SaveAlways = "always"
	SaveNever  = "never"

	LinkStyleLink = "link"
	LinkStyleText = "text"
)

var sizeRe = regexp.MustCompile(`^\d{3,4}x\d{3,4}$`)

type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Store       StoreConfig     `yaml:"store"`
	Session     SessionConfig   `yaml:"session"`
	OpenAI      OpenAIConfig    `yaml:"openai"`
	Output      OutputConfig    `yaml:"output"`
	Platform    PlatformConfig  `yaml:"platform"`
	Gate        GateConfig      `yaml:"gate"`
	UI          UIConfig        `yaml:"ui"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Log         LogConfig       `yaml:"log"`
	SecretsFile string          `yaml:"secrets_file"`

	// Secrets is populated from SecretsFile and never read from the main file.
	Secrets Secrets `yaml:"-"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type StoreConfig struct {
	Type  string      `yaml:"type"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SessionConfig struct {
	CookieName string        `yaml:"cookie_name"`
	TTL        time.Duration `yaml:"ttl"`
	Secure     bool          `yaml:"secure"`
}

type OpenAIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	ImageModel  string        `yaml:"image_model"`
	ChatModel   string        `yaml:"chat_model"`
	DefaultSize string        `yaml:"default_size"`
	DefaultN    int           `yaml:"default_n"`
	MaxN        int           `yaml:"max_n"`
	Timeout     time.Duration `yaml:"timeout"`
}

type OutputConfig struct {
	Dir      string `yaml:"dir"`
	SaveMode string `yaml:"save_mode"`
}

type PlatformConfig struct {
	Substring string `yaml:"substring"`
}

type GateConfig struct {
	Enabled bool `yaml:"enabled"`
}

type UIConfig struct {
	Title     string `yaml:"title"`
	LinkStyle string `yaml:"link_style"`
}

type RateLimitConfig struct {
	Enabled            bool `yaml:"enabled"`
	RequestsPerMin     int  `yaml:"requests_per_min"`
	GeneratePerMin     int  `yaml:"generate_per_min"`
	GateAttemptsPerMin int  `yaml:"gate_attempts_per_min"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Secrets mirrors the external secret store: a flat YAML document holding
// the gate password and a fallback API key.
type Secrets struct {
	Password     string `yaml:"password"`
	OpenAIAPIKey string `yaml:"OPENAI_API_KEY"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			RequestTimeout: 4 * time.Minute,
		},
		Store: StoreConfig{
			Type: "memory",
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				Password: "",
				DB:       0,
			},
		},
		Session: SessionConfig{
			CookieName: "imagegen_session",
			TTL:        12 * time.Hour,
		},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			ChatModel:   "gpt-3.5-turbo",
			DefaultSize: "1024x1024",
			DefaultN:    1,
			MaxN:        4,
			Timeout:     60 * time.Second,
		},
		Output: OutputConfig{
			Dir:      "img",
			SaveMode: SaveAuto,
		},
		Platform: PlatformConfig{
			Substring: "Intel64",
		},
		UI: UIConfig{
			Title:     "Image Generator",
			LinkStyle: LinkStyleLink,
		},
		RateLimit: RateLimitConfig{
			Enabled:            true,
			RequestsPerMin:     120,
			GeneratePerMin:     10,
			GateAttemptsPerMin: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadFromEnv()

	if cfg.SecretsFile != "" {
		if err := cfg.loadSecrets(cfg.SecretsFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is OK, use defaults
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

func (c *Config) loadSecrets(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading secrets file: %w", err)
	}

	if err := yaml.Unmarshal(data, &c.Secrets); err != nil {
		return fmt.Errorf("parsing secrets file: %w", err)
	}

	return nil
}

func (c *Config) loadFromEnv() {
	// Server
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Store.Redis.DB = db
		}
	}

	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("OPENAI_IMAGE_MODEL"); v != "" {
		c.OpenAI.ImageModel = v
	}
	if v := os.Getenv("OPENAI_CHAT_MODEL"); v != "" {
		c.OpenAI.ChatModel = v
	}
	if v := os.Getenv("OPENAI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.OpenAI.Timeout = d
		}
	}

	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("SAVE_MODE"); v != "" {
		c.Output.SaveMode = v
	}

	if v := os.Getenv("GATE_ENABLED"); v != "" {
		c.Gate.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SECRETS_FILE"); v != "" {
		c.SecretsFile = v
	}

	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.RequestsPerMin = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_GENERATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.GeneratePerMin = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_GATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.GateAttemptsPerMin = n
		}
	}

	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Server.RequestTimeout = d
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Store.Type != "memory" && c.Store.Type != "redis" {
		return fmt.Errorf("invalid store type: %s (must be 'memory' or 'redis')", c.Store.Type)
	}

	if c.Store.Type == "redis" && c.Store.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when store type is 'redis'")
	}

	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie_name is required")
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}

	if c.OpenAI.BaseURL == "" {
		return fmt.Errorf("openai base_url is required")
	}

	if c.OpenAI.ChatModel == "" {
		return fmt.Errorf("openai chat_model is required")
	}

	if !sizeRe.MatchString(c.OpenAI.DefaultSize) {
		return fmt.Errorf("invalid default_size: %q (want WIDTHxHEIGHT)", c.OpenAI.DefaultSize)
	}

	if c.OpenAI.DefaultN < 1 {
		return fmt.Errorf("default_n must be at least 1")
	}

	if c.OpenAI.MaxN < c.OpenAI.DefaultN {
		return fmt.Errorf("max_n must be >= default_n")
	}

	if c.OpenAI.Timeout <= 0 {
		return fmt.Errorf("openai timeout must be positive")
	}

	if budget := c.OutboundBudget(); c.Server.RequestTimeout <= budget {
		return fmt.Errorf("server request_timeout (%s) must exceed %d openai calls of %s (%s)",
			c.Server.RequestTimeout, outboundCalls, c.OpenAI.Timeout, budget)
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output dir is required")
	}

	switch c.Output.SaveMode {
	case SaveAuto, SaveAlways, SaveNever:
	default:
		return fmt.Errorf("invalid save_mode: %s (must be 'auto', 'always' or 'never')", c.Output.SaveMode)
	}

	if c.UI.LinkStyle != LinkStyleLink && c.UI.LinkStyle != LinkStyleText {
		return fmt.Errorf("invalid link_style: %s (must be 'link' or 'text')", c.UI.LinkStyle)
	}

	if c.Gate.Enabled && c.Secrets.Password == "" {
		return fmt.Errorf("gate is enabled but no password is set in the secrets file")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMin < 1 || c.RateLimit.GeneratePerMin < 1 || c.RateLimit.GateAttemptsPerMin < 1) {
		return fmt.Errorf("rate limits must be at least 1 per minute when enabled")
	}

	return nil
}

// outboundCalls is the number of sequential remote calls one submission can
// make: image generation, chat summary, image download.
const outboundCalls = 3

// OutboundBudget is the longest a submission can spend waiting on the image
// service.
func (c *Config) OutboundBudget() time.Duration {
	return outboundCalls * c.OpenAI.Timeout
}

// ValidSize reports whether s has the WIDTHxHEIGHT shape the image endpoint expects.
func ValidSize(s string) bool {
	return sizeRe.MatchString(s)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
