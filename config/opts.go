package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. KVPROXY_AUTH_SECRET.
const EnvPrefix = "KVPROXY"

// Opt is a single command-line option backed by a Config field.
type Opt struct {
	DestP any // pointer to the destination
	Flag  string
	Desc  string
}

// Opts lists the options that can override c from the environment or flags.
func (c *Config) Opts() []Opt {
	return []Opt{
		{&c.HTTP.Addr, "http-addr", "address the HTTP server listens on"},
		{&c.HTTP.ReadTimeout, "http-read-timeout", "HTTP read timeout"},
		{&c.HTTP.WriteTimeout, "http-write-timeout", "HTTP write timeout"},
		{&c.HTTP.ShutdownTimeout, "http-shutdown-timeout", "time allowed for in-flight requests on shutdown"},
		{&c.HTTP.MaxBodyBytes, "http-max-body-bytes", "request body limit in bytes"},
		{&c.Auth.Secret, "auth-secret", "shared bearer token required on every request"},
		{&c.Store.Backend, "store-backend", "store backend: memory, redis, bigcache, ristretto, bolt or s3"},
		{&c.Store.Redis.Addr, "store-redis-addr", "redis address"},
		{&c.Store.Redis.Password, "store-redis-password", "redis password"},
		{&c.Store.Redis.DB, "store-redis-db", "redis database number"},
		{&c.Store.Bolt.Path, "store-bolt-path", "bolt database file"},
		{&c.Store.S3.Bucket, "store-s3-bucket", "S3 bucket"},
		{&c.Store.S3.Namespace, "store-s3-namespace", "S3 key namespace"},
		{&c.Store.S3.Region, "store-s3-region", "S3 region"},
		{&c.Store.S3.Endpoint, "store-s3-endpoint", "S3-compatible endpoint URL"},
		{&c.Store.S3.PathStyle, "store-s3-path-style", "use path-style S3 addressing"},
		{&c.Lock.Backend, "lock-backend", "update lock: none, local or redis"},
		{&c.Lock.Timeout, "lock-timeout", "how long Update waits for its key lock"},
		{&c.Lock.RedisDB, "lock-redis-db", "redis database for lock keys"},
		{&c.Log.Backend, "log-backend", "logger: zap, logrus or slog"},
		{&c.Log.Format, "log-format", "zap log format: auto, console, json or logfmt"},
		{&c.Log.Level, "log-level", "log level"},
		{&c.Limits.MaxBatchItems, "max-batch-items", "item cap for bulk-set and restore"},
		{&c.Limits.BackupConcurrency, "backup-concurrency", "parallel reads during backup"},
		{&c.Metrics.Enabled, "metrics-enabled", "serve /metrics"},
	}
}

// NewViper returns a viper instance reading KVPROXY_* variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	return v
}

// BindOptions adds opts to cmd with their current values as defaults and
// registers them with v.
func BindOptions(v *viper.Viper, cmd *cobra.Command, opts []Opt) {
	fs := cmd.Flags()
	for _, o := range opts {
		switch destP := o.DestP.(type) {
		case *string:
			fs.String(o.Flag, *destP, o.Desc)
		case *int:
			fs.Int(o.Flag, *destP, o.Desc)
		case *int64:
			fs.Int64(o.Flag, *destP, o.Desc)
		case *bool:
			fs.Bool(o.Flag, *destP, o.Desc)
		case *time.Duration:
			fs.Duration(o.Flag, *destP, o.Desc)
		default:
			panic(fmt.Errorf("unknown destination type %T", o.DestP))
		}
		if err := v.BindPFlag(o.Flag, fs.Lookup(o.Flag)); err != nil {
			panic(err)
		}
	}
}

// Overlay writes into opts every value set by a flag on cmd or by the
// environment. Unset options keep what the file or defaults gave them.
func Overlay(v *viper.Viper, cmd *cobra.Command, opts []Opt) error {
	for _, o := range opts {
		if !cmd.Flags().Changed(o.Flag) && !envSet(o.Flag) {
			continue
		}
		switch destP := o.DestP.(type) {
		case *string:
			*destP = v.GetString(o.Flag)
		case *int:
			*destP = v.GetInt(o.Flag)
		case *int64:
			*destP = v.GetInt64(o.Flag)
		case *bool:
			*destP = v.GetBool(o.Flag)
		case *time.Duration:
			*destP = v.GetDuration(o.Flag)
		default:
			return fmt.Errorf("config: unknown destination type %T for %s", o.DestP, o.Flag)
		}
	}
	return nil
}

// EnvName returns the environment variable that overrides flag.
func EnvName(flag string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

func envSet(flag string) bool {
	_, ok := os.LookupEnv(EnvName(flag))
	return ok
}
