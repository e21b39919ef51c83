// Package config loads gatekeeper settings from flags, GATEKEEPER_* environment
// variables, an optional gatekeeper.yaml file and built-in defaults, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/courseforge/gatekeeper/internal/logging"
	"github.com/courseforge/gatekeeper/navigation"
)

const (
	EnvPrefix = "GATEKEEPER"
	FileName  = "gatekeeper"

	BackendBolt   = "bolt"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the resolved configuration.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Routes    Routes
	Storage   Storage
	Log       Log
	DevServer DevServer
	// File is the config file that was read, if any.
	File  string
	Viper *viper.Viper
}

type Routes struct {
	PublicEntry  string
	Landing      string
	RoleFallback string
}

// Navigation returns the redirect targets for guards and the gateway.
func (r Routes) Navigation() navigation.Routes {
	return navigation.Routes{PublicEntry: r.PublicEntry, Landing: r.Landing}.WithDefaults()
}

type Storage struct {
	Backend   string
	Path      string
	Namespace string
	// SealSecret enables at-rest encryption of the persisted session when set.
	SealSecret string
	Redis      Redis
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Log struct {
	Level  string
	Format string
}

type DevServer struct {
	Addr       string
	SigningKey string
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"base-url":       "base_url",
	"timeout":        "timeout",
	"storage":        "storage.backend",
	"storage-path":   "storage.path",
	"namespace":      "storage.namespace",
	"seal-secret":    "storage.seal_secret",
	"redis-addr":     "storage.redis.addr",
	"redis-password": "storage.redis.password",
	"redis-db":       "storage.redis.db",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"addr":           "devserver.addr",
	"signing-key":    "devserver.signing_key",
}

// DefaultStoragePath is where the bolt backend keeps the session.
func DefaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gatekeeper", "session.db")
	}
	return filepath.Join(home, ".gatekeeper", "session.db")
}

// New returns a viper instance carrying defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("routes.public_entry", navigation.DefaultPublicEntry)
	v.SetDefault("routes.landing", navigation.DefaultLanding)
	v.SetDefault("routes.role_fallback", "")
	v.SetDefault("storage.backend", BackendBolt)
	v.SetDefault("storage.path", DefaultStoragePath())
	v.SetDefault("storage.namespace", "gatekeeper")
	v.SetDefault("storage.seal_secret", "")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("devserver.addr", ":8080")
	v.SetDefault("devserver.signing_key", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every known flag present in fs to its configuration key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads configFile, or gatekeeper.yaml from the working directory or
// $HOME/.gatekeeper when configFile is empty, and resolves the configuration.
// A missing default file is not an error; a missing explicit one is.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gatekeeper")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		BaseURL: v.GetString("base_url"),
		Timeout: v.GetDuration("timeout"),
		Routes: Routes{
			PublicEntry:  v.GetString("routes.public_entry"),
			Landing:      v.GetString("routes.landing"),
			RoleFallback: v.GetString("routes.role_fallback"),
		},
		Storage: Storage{
			Backend:    strings.ToLower(v.GetString("storage.backend")),
			Path:       v.GetString("storage.path"),
			Namespace:  v.GetString("storage.namespace"),
			SealSecret: v.GetString("storage.seal_secret"),
			Redis: Redis{
				Addr:     v.GetString("storage.redis.addr"),
				Password: v.GetString("storage.redis.password"),
				DB:       v.GetInt("storage.redis.db"),
			},
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		DevServer: DevServer{
			Addr:       v.GetString("devserver.addr"),
			SigningKey: v.GetString("devserver.signing_key"),
		},
		File:  v.ConfigFileUsed(),
		Viper: v,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: base_url %q must be an absolute URL", c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must not be negative")
	}
	switch c.Storage.Backend {
	case BackendBolt:
		if c.Storage.Path == "" {
			return errors.New("config: storage.path is required for the bolt backend")
		}
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("config: storage.redis.addr is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown storage backend %q (valid: bolt, memory, redis)", c.Storage.Backend)
	}
	if c.Storage.Namespace == "" {
		return errors.New("config: storage.namespace must not be empty")
	}
	for _, r := range []string{c.Routes.PublicEntry, c.Routes.Landing, c.Routes.RoleFallback} {
		if r != "" && !strings.HasPrefix(r, "/") {
			return fmt.Errorf("config: route %q must start with /", r)
		}
	}
	return logging.Validate(c.Log.Level, c.Log.Format)
}
