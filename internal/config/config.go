package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Site       Site       `yaml:"site"`
	Generation Generation `yaml:"generation"`
	Retry      Retry      `yaml:"retry"`
	Keywords   Keywords   `yaml:"keywords"`
	Database   Database   `yaml:"database"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Site struct {
	URL          string        `yaml:"url"`
	FeedURL      string        `yaml:"feed_url"`
	MaxFeedPages int           `yaml:"max_feed_pages"`
	UserAgent    string        `yaml:"user_agent"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	FetchRPS     float64       `yaml:"fetch_rps"`
}

type Generation struct {
	Provider     string  `yaml:"provider"`
	Model        string  `yaml:"model"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	BaseURL      string  `yaml:"base_url"`
	OllamaURL    string  `yaml:"ollama_url"`
	OpenAIModel  string  `yaml:"openai_model"`
	OpenAIKeyEnv string  `yaml:"openai_api_key_env"`
	MaxTokens    int     `yaml:"max_tokens"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

type Retry struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxJitter    time.Duration `yaml:"max_jitter"`
}

type Keywords struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for linkscope.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "linkscope")
}

// DataDir returns the XDG data directory for linkscope.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "linkscope")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/linkscope/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'linkscope init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file. A .env file next to the working
// directory is loaded first so api_key_env variables can live there.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Site: Site{
			MaxFeedPages: 10,
			UserAgent:    "linkscope/1.0 (+internal link analysis)",
			FetchTimeout: 15 * time.Second,
			FetchRPS:     2,
		},
		Generation: Generation{
			Provider:     "gemini",
			Model:        "gemini-2.5-flash",
			APIKeyEnv:    "GEMINI_API_KEY",
			OllamaURL:    "http://localhost:11434",
			OpenAIModel:  "gpt-4o-mini",
			OpenAIKeyEnv: "OPENAI_API_KEY",
			MaxTokens:    8192,
			RateLimitRPS: 2,
		},
		Retry: Retry{
			MaxRetries:   4,
			InitialDelay: time.Second,
			MaxJitter:    time.Second,
		},
		Keywords: Keywords{
			APIKeyEnv:    "KEYWORDS_API_KEY",
			RateLimitRPS: 5,
		},
		Database: Database{Driver: "sqlite"},
		Server:   Server{Port: 8000},
		Logging:  Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver != "sqlite" && cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q (want sqlite or postgres)", cfg.Database.Driver)
	}
	if cfg.Retry.MaxRetries < 1 {
		cfg.Retry.MaxRetries = 1
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DatabaseDSN returns the configured DSN, defaulting to a sqlite file in the data dir.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	if c.Database.Driver == "sqlite" {
		return filepath.Join(c.GetDataDir(), "linkscope.db")
	}
	return ""
}

// FeedLocation returns the feed listing published pages, defaulting to <site>/feed.
func (s Site) FeedLocation() string {
	if s.FeedURL != "" {
		return s.FeedURL
	}
	if s.URL == "" {
		return ""
	}
	return strings.TrimRight(s.URL, "/") + "/feed"
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
