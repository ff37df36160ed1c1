// Package config loads settings from tofuchat.yaml, TOFUCHAT_* environment
// variables and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "TOFUCHAT"

type Config struct {
	Username   string `mapstructure:"username"`
	Passphrase string `mapstructure:"passphrase"`

	Server    ServerConfig    `mapstructure:"server"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Storage   StorageConfig   `mapstructure:"storage"`
	History   HistoryConfig   `mapstructure:"history"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Trust     TrustConfig     `mapstructure:"trust"`
	Envelope  EnvelopeConfig  `mapstructure:"envelope"`
	Log       LogConfig       `mapstructure:"log"`
	Limits    LimitsConfig    `mapstructure:"limits"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	URL  string `mapstructure:"url"`
}

type DirectoryConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects where identities (client) or keys and packets
// (server) live. Backend is one of memory, file, mongo; the server does not
// support file.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

// HistoryConfig lets the relay keep packet history in Redis instead of the
// storage backend. Backend is empty or redis.
type HistoryConfig struct {
	Backend string `mapstructure:"backend"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TrustConfig.Backend is one of memory, file, redis.
type TrustConfig struct {
	Backend string `mapstructure:"backend"`
}

type EnvelopeConfig struct {
	BindHeaders bool `mapstructure:"bind_headers"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

type LimitsConfig struct {
	History       int `mapstructure:"history"`
	MaxCiphertext int `mapstructure:"max_ct"`
	MaxEncKey     int `mapstructure:"max_enc_key"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"username":     "username",
	"server-url":   "server.url",
	"server-addr":  "server.addr",
	"storage":      "storage.backend",
	"data-dir":     "storage.dir",
	"trust":        "trust.backend",
	"bind-headers": "envelope.bind_headers",
	"log-level":    "log.level",
	"log-file":     "log.file",
}

// Every key needs a default, even an empty one, for AutomaticEnv to reach it
// through Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("username", "")
	v.SetDefault("passphrase", "")
	v.SetDefault("server.addr", "localhost:8000")
	v.SetDefault("server.url", "http://localhost:8000")
	v.SetDefault("directory.timeout", 10*time.Second)
	v.SetDefault("storage.backend", "")
	v.SetDefault("storage.dir", "$HOME/.tofuchat")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "tofuchat")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("history.backend", "")
	v.SetDefault("trust.backend", "file")
	v.SetDefault("envelope.bind_headers", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("limits.history", 50)
	v.SetDefault("limits.max_ct", 50000)
	v.SetDefault("limits.max_enc_key", 10000)
}

// BindFlags registers the flags Load understands on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to config file")
	fs.String("username", "", "Your username")
	fs.String("server-url", "", "Base URL of the chat server")
	fs.String("server-addr", "", "Listen address (server only)")
	fs.String("storage", "", "Storage backend: memory, file or mongo")
	fs.String("data-dir", "", "Directory for file storage")
	fs.String("trust", "", "Trust store backend: memory, file or redis")
	fs.Bool("bind-headers", false, "Authenticate from/to as associated data")
	fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.String("log-file", "", "Write logs to this file")
}

// Load builds the configuration. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetConfigName("tofuchat")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.tofuchat")

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
		}
		for name, key := range flagKeys {
			// Only flags the user actually set override file and env values.
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Storage.Dir = expandHome(cfg.Storage.Dir)
	return &cfg, nil
}

// ValidateClient checks the settings a chat client cannot run without. An
// unset storage backend becomes file.
func (c *Config) ValidateClient() error {
	if c.Storage.Backend == "" {
		c.Storage.Backend = "file"
	}
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("username is required (use --username or %s_USERNAME)", EnvPrefix)
	}
	switch c.Storage.Backend {
	case "memory":
	case "file", "mongo":
		if c.Passphrase == "" {
			return fmt.Errorf("passphrase is required to seal the identity (set %s_PASSPHRASE)", EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Trust.Backend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown trust backend %q", c.Trust.Backend)
	}
	return nil
}

// ValidateServer checks the relay settings. An unset storage backend becomes
// memory.
func (c *Config) ValidateServer() error {
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	switch c.Storage.Backend {
	case "memory", "mongo":
	default:
		return fmt.Errorf("server storage backend must be memory or mongo, got %q", c.Storage.Backend)
	}
	switch c.History.Backend {
	case "", "redis":
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	return nil
}
