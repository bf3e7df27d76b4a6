// Package config loads threadline settings from THREADLINE_* environment
// variables and an optional YAML file layered on top of them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"gopkg.in/yaml.v3"

	"github.com/alphabot-ai/threadline/internal/auth"
	"github.com/alphabot-ai/threadline/internal/cache"
	"github.com/alphabot-ai/threadline/internal/client"
)

const (
	StoreNone   = "none"
	StoreSQLite = "sqlite"
	StoreNATS   = "nats"
)

type Config struct {
	LogLevel    string           `yaml:"log_level"`
	MetricsAddr string           `yaml:"metrics_addr"`
	API         APIConfig        `yaml:"api"`
	OAuth       OAuthConfig      `yaml:"oauth"`
	Bot         BotConfig        `yaml:"bot"`
	Store       StoreConfig      `yaml:"store"`
	Cache       cache.Capacities `yaml:"cache"`
	Tree        TreeConfig       `yaml:"tree"`
	AllowNSFW   bool             `yaml:"allow_nsfw"`
}

type APIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	AuthURL           string        `yaml:"auth_url"`
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	PageLimit         int           `yaml:"page_limit"`
	// MoreChunk bounds the children sent in one morechildren request.
	MoreChunk int `yaml:"more_chunk"`
}

type OAuthConfig struct {
	ClientID    string   `yaml:"client_id"`
	RedirectURI string   `yaml:"redirect_uri"`
	Scopes      []string `yaml:"scopes"`
	Permanent   bool     `yaml:"permanent"`
	// Account names the stored token.
	Account string `yaml:"account"`
}

// BotConfig holds the key of a bot account that logs in by signing a
// challenge. It is optional.
type BotConfig struct {
	Alg        string `yaml:"alg"`
	PrivateKey string `yaml:"private_key"`
}

type StoreConfig struct {
	Driver  string `yaml:"driver"`
	Path    string `yaml:"path"`
	NATSURL string `yaml:"nats_url"`
	Bucket  string `yaml:"bucket"`
}

type TreeConfig struct {
	AutoExpandDepth int `yaml:"auto_expand_depth"`
}

// Load reads the environment and then, when path is not empty, the YAML file
// at path with ${VAR} references expanded. The result is validated.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// FromEnv returns the defaults overridden by THREADLINE_* variables.
func FromEnv() Config {
	caps := cache.DefaultCapacities()
	return Config{
		LogLevel:    envString("THREADLINE_LOG_LEVEL", "info"),
		MetricsAddr: envString("THREADLINE_METRICS_ADDR", ""),
		API: APIConfig{
			BaseURL:           envString("THREADLINE_BASE_URL", client.DefaultBaseURL),
			AuthURL:           envString("THREADLINE_AUTH_URL", client.DefaultAuthURL),
			UserAgent:         envString("THREADLINE_USER_AGENT", client.DefaultUserAgent),
			Timeout:           envDuration("THREADLINE_TIMEOUT", 30*time.Second),
			RequestsPerMinute: envInt("THREADLINE_RPM", 60),
			PageLimit:         envInt("THREADLINE_PAGE_LIMIT", 25),
			MoreChunk:         envInt("THREADLINE_MORE_CHUNK", 100),
		},
		OAuth: OAuthConfig{
			ClientID:    envString("THREADLINE_CLIENT_ID", ""),
			RedirectURI: envString("THREADLINE_REDIRECT_URI", "http://localhost:65010/authorize_callback"),
			Scopes:      strings.Fields(envString("THREADLINE_SCOPES", "identity read")),
			Permanent:   envBool("THREADLINE_PERMANENT", true),
			Account:     envString("THREADLINE_ACCOUNT", "default"),
		},
		Bot: BotConfig{
			Alg:        envString("THREADLINE_BOT_ALG", auth.AlgEd25519),
			PrivateKey: envString("THREADLINE_BOT_KEY", ""),
		},
		Store: StoreConfig{
			Driver:  envString("THREADLINE_STORE", StoreSQLite),
			Path:    envString("THREADLINE_DB", "threadline.db"),
			NATSURL: envString("THREADLINE_NATS_URL", "nats://127.0.0.1:4222"),
			Bucket:  envString("THREADLINE_NATS_BUCKET", "threadline"),
		},
		Cache: cache.Capacities{
			Comments:   envInt("THREADLINE_CACHE_COMMENTS", caps.Comments),
			Links:      envInt("THREADLINE_CACHE_LINKS", caps.Links),
			Subreddits: envInt("THREADLINE_CACHE_SUBREDDITS", caps.Subreddits),
			Accounts:   envInt("THREADLINE_CACHE_ACCOUNTS", caps.Accounts),
		},
		Tree: TreeConfig{
			AutoExpandDepth: envInt("THREADLINE_AUTO_EXPAND", 1),
		},
		AllowNSFW: envBool("THREADLINE_ALLOW_NSFW", false),
	}
}

func (c *Config) Validate() error {
	return errors.Join(
		validation.ValidateStruct(c,
			validation.Field(&c.LogLevel, validation.Required, validation.In("debug", "info", "warn", "error")),
		),
		c.API.Validate(),
		c.Bot.Validate(),
		c.Store.Validate(),
		validation.ValidateStruct(&c.Cache,
			validation.Field(&c.Cache.Comments, validation.Min(1)),
			validation.Field(&c.Cache.Links, validation.Min(1)),
			validation.Field(&c.Cache.Subreddits, validation.Min(1)),
			validation.Field(&c.Cache.Accounts, validation.Min(1)),
		),
		validation.ValidateStruct(&c.Tree,
			validation.Field(&c.Tree.AutoExpandDepth, validation.Min(0)),
		),
	)
}

func (c *APIConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.AuthURL, validation.Required, is.URL),
		validation.Field(&c.UserAgent, validation.Required),
		validation.Field(&c.RequestsPerMinute, validation.Min(0)),
		validation.Field(&c.PageLimit, validation.Min(1), validation.Max(100)),
		validation.Field(&c.MoreChunk, validation.Min(1), validation.Max(100)),
	)
}

func (c *BotConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Alg, validation.In(auth.AlgEd25519, auth.AlgSecp256k1)),
	)
}

func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(StoreNone, StoreSQLite, StoreNATS)),
		validation.Field(&c.Path, validation.When(c.Driver == StoreSQLite, validation.Required)),
		validation.Field(&c.NATSURL, validation.When(c.Driver == StoreNATS, validation.Required)),
		validation.Field(&c.Bucket, validation.When(c.Driver == StoreNATS, validation.Required)),
	)
}

// Client returns the transport settings.
func (c Config) Client() client.Config {
	return client.Config{
		BaseURL:           c.API.BaseURL,
		AuthURL:           c.API.AuthURL,
		ClientID:          c.OAuth.ClientID,
		RedirectURI:       c.OAuth.RedirectURI,
		UserAgent:         c.API.UserAgent,
		Timeout:           c.API.Timeout,
		RequestsPerMinute: c.API.RequestsPerMinute,
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
