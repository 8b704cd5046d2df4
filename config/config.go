// Package config holds kvproxyd settings. Values come from defaults, then an
// optional TOML file, then KVPROXY_* environment variables, then flags.
package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	HTTP    HTTP    `toml:"http"`
	Auth    Auth    `toml:"auth"`
	Store   Store   `toml:"store"`
	Lock    Lock    `toml:"lock"`
	Log     Log     `toml:"log"`
	Limits  Limits  `toml:"limits"`
	Metrics Metrics `toml:"metrics"`
	Hooks   Hooks   `toml:"hooks"`
}

type HTTP struct {
	Addr            string        `toml:"addr"`
	ReadTimeout     time.Duration `toml:"read-timeout"`
	WriteTimeout    time.Duration `toml:"write-timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown-timeout"`
	MaxBodyBytes    int64         `toml:"max-body-bytes"`
}

// Auth holds the shared bearer secret. It is never logged.
type Auth struct {
	Secret string `toml:"secret"`
}

type Store struct {
	Backend   string    `toml:"backend"`
	Redis     Redis     `toml:"redis"`
	Bigcache  Bigcache  `toml:"bigcache"`
	Ristretto Ristretto `toml:"ristretto"`
	Bolt      Bolt      `toml:"bolt"`
	S3        S3        `toml:"s3"`
}

type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type Bigcache struct {
	LifeWindow   time.Duration `toml:"life-window"`
	CleanWindow  time.Duration `toml:"clean-window"`
	HardMaxMB    int           `toml:"hard-max-mb"`
	MaxEntrySize int           `toml:"max-entry-size"`
}

type Ristretto struct {
	NumCounters int64 `toml:"num-counters"`
	MaxCost     int64 `toml:"max-cost"`
	BufferItems int64 `toml:"buffer-items"`
}

type Bolt struct {
	Path          string        `toml:"path"`
	Bucket        string        `toml:"bucket"`
	SweepInterval time.Duration `toml:"sweep-interval"`
	NoSync        bool          `toml:"no-sync"`
}

type S3 struct {
	Bucket    string `toml:"bucket"`
	Namespace string `toml:"namespace"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path-style"`
}

// Lock selects the per-key lock Update takes. The redis lock dials
// store.redis.addr but keeps its keys in RedisDB.
type Lock struct {
	Backend string        `toml:"backend"`
	Timeout time.Duration `toml:"timeout"`
	Expiry  time.Duration `toml:"expiry"`
	RedisDB int           `toml:"redis-db"`
}

type Log struct {
	Backend string `toml:"backend"`
	Format  string `toml:"format"`
	Level   string `toml:"level"`
}

type Limits struct {
	MaxBatchItems     int `toml:"max-batch-items"`
	BackupConcurrency int `toml:"backup-concurrency"`
}

type Metrics struct {
	Enabled bool `toml:"enabled"`
}

type Hooks struct {
	AsyncQueue      int    `toml:"async-queue"`
	ItemFailedEvery uint64 `toml:"item-failed-every"`
	StoreFaultEvery uint64 `toml:"store-fault-every"`
}

// Backends accepted by Validate.
var (
	StoreBackends = []string{"memory", "redis", "bigcache", "ristretto", "bolt", "s3"}
	LockBackends  = []string{"none", "local", "redis"}
	LogBackends   = []string{"zap", "logrus", "slog"}
	LogFormats    = []string{"auto", "console", "json", "logfmt"}
)

// Default returns a new instance of Config with defaults.
func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    8 << 20,
		},
		Store: Store{
			Backend: "memory",
			Redis:   Redis{Addr: "localhost:6379"},
			Bigcache: Bigcache{
				CleanWindow:  time.Minute,
				HardMaxMB:    256,
				MaxEntrySize: 1024,
			},
			Ristretto: Ristretto{
				NumCounters: 1e6,
				MaxCost:     256 << 20,
				BufferItems: 64,
			},
			Bolt: Bolt{
				Path:          "kvproxy.db",
				Bucket:        "kv",
				SweepInterval: 5 * time.Minute,
			},
		},
		Lock: Lock{
			Backend: "local",
			Timeout: 5 * time.Second,
			Expiry:  8 * time.Second,
			RedisDB: 1,
		},
		Log: Log{
			Backend: "zap",
			Format:  "auto",
			Level:   "info",
		},
		Limits: Limits{
			MaxBatchItems:     10000,
			BackupConcurrency: 8,
		},
		Metrics: Metrics{Enabled: true},
		Hooks: Hooks{
			AsyncQueue:      1024,
			ItemFailedEvery: 1,
			StoreFaultEvery: 1,
		},
	}
}

// Load returns Default overlaid with the TOML file at path. An empty path
// skips the file. Keys the file sets that Config does not know are an error.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, 0, len(undec))
		for _, k := range undec {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return c, nil
}

// ValidateServer is Validate plus the settings only the HTTP server needs.
func (c Config) ValidateServer() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}
	if c.Auth.Secret == "" {
		add("auth.secret is required")
	}
	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		add("http.max-body-bytes must be positive")
	}
	return multierr.Append(errs, c.Validate())
}

// Validate reports every problem with the store, lock, log and limit
// settings at once.
func (c Config) Validate() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	if !slices.Contains(StoreBackends, c.Store.Backend) {
		add("store.backend %q is not one of %s", c.Store.Backend, strings.Join(StoreBackends, ", "))
	}
	switch c.Store.Backend {
	case "redis":
		if c.Store.Redis.Addr == "" {
			add("store.redis.addr is required")
		}
	case "bolt":
		if c.Store.Bolt.Path == "" {
			add("store.bolt.path is required")
		}
	case "s3":
		if c.Store.S3.Bucket == "" {
			add("store.s3.bucket is required")
		}
	}
	if !slices.Contains(LockBackends, c.Lock.Backend) {
		add("lock.backend %q is not one of %s", c.Lock.Backend, strings.Join(LockBackends, ", "))
	}
	if c.Lock.Backend == "redis" && c.Store.Redis.Addr == "" {
		add("lock.backend redis needs store.redis.addr")
	}
	if c.Lock.Backend == "redis" && c.Store.Backend == "redis" && c.Lock.RedisDB == c.Store.Redis.DB {
		add("lock.redis-db must differ from store.redis.db (both %d)", c.Lock.RedisDB)
	}
	if !slices.Contains(LogBackends, c.Log.Backend) {
		add("log.backend %q is not one of %s", c.Log.Backend, strings.Join(LogBackends, ", "))
	}
	if !slices.Contains(LogFormats, c.Log.Format) {
		add("log.format %q is not one of %s", c.Log.Format, strings.Join(LogFormats, ", "))
	}
	if _, err := c.Log.ZapLevel(); err != nil {
		add("log.level: %v", err)
	}
	if c.Limits.MaxBatchItems <= 0 {
		add("limits.max-batch-items must be positive")
	}
	if c.Limits.BackupConcurrency <= 0 {
		add("limits.backup-concurrency must be positive")
	}
	if c.Hooks.AsyncQueue < 0 {
		add("hooks.async-queue must not be negative")
	}
	return errs
}

// ZapLevel parses Level.
func (l Log) ZapLevel() (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return lvl, errors.New("unknown level " + l.Level)
	}
	return lvl, nil
}
