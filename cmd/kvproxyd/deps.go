package main

import (
	"context"
	"fmt"
	"io"
	stdslog "log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/kng-mtd/kvproxy"
	"github.com/kng-mtd/kvproxy/config"
	asynchook "github.com/kng-mtd/kvproxy/hooks/async"
	promhook "github.com/kng-mtd/kvproxy/hooks/prom"
	sloghook "github.com/kng-mtd/kvproxy/hooks/slog"
	"github.com/kng-mtd/kvproxy/lock"
	logruslog "github.com/kng-mtd/kvproxy/log/logrus"
	slogl "github.com/kng-mtd/kvproxy/log/slog"
	zaplog "github.com/kng-mtd/kvproxy/log/zap"
	pr "github.com/kng-mtd/kvproxy/provider"
	boltp "github.com/kng-mtd/kvproxy/provider/bolt"
	bigcachep "github.com/kng-mtd/kvproxy/provider/bigcache"
	"github.com/kng-mtd/kvproxy/provider/memory"
	redisp "github.com/kng-mtd/kvproxy/provider/redis"
	ristrettop "github.com/kng-mtd/kvproxy/provider/ristretto"
	s3p "github.com/kng-mtd/kvproxy/provider/s3"
)

// deps is everything a command builds from Config. close releases it in
// reverse order of construction.
type deps struct {
	log      kvproxy.Logger
	registry *prometheus.Registry
	async    *asynchook.Hooks
	proxy    kvproxy.Proxy

	closers []func(context.Context) error
}

func (d *deps) onClose(fn func(context.Context) error) {
	d.closers = append(d.closers, fn)
}

func (d *deps) close(ctx context.Context) error {
	var err error
	for i := len(d.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, d.closers[i](ctx))
	}
	d.closers = nil
	return err
}

// buildDeps wires logger, metrics, hooks, store and lock into a Proxy.
// On error everything built so far is closed.
func buildDeps(ctx context.Context, cfg config.Config, logOut io.Writer) (_ *deps, err error) {
	d := &deps{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, d.close(context.Background()))
		}
	}()

	if d.log, err = buildLogger(d, cfg.Log, logOut); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		d.registry = prometheus.NewRegistry()
		d.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	var rdb goredis.UniversalClient
	if cfg.Store.Backend == "redis" {
		rdb = d.redisClient(cfg.Store.Redis, cfg.Store.Redis.DB)
	}

	store, err := buildProvider(ctx, d, cfg.Store, rdb)
	if err != nil {
		return nil, err
	}
	d.onClose(store.Close)

	var lockRDB goredis.UniversalClient
	if cfg.Lock.Backend == "redis" {
		lockRDB = d.redisClient(cfg.Store.Redis, cfg.Lock.RedisDB)
	}
	locker, err := buildLocker(cfg.Lock, lockRDB)
	if err != nil {
		return nil, err
	}

	hooks, err := buildHooks(d, cfg, logOut)
	if err != nil {
		return nil, err
	}

	d.proxy, err = kvproxy.New(kvproxy.Options{
		Provider:          store,
		Logger:            d.log,
		Hooks:             hooks,
		Locker:            locker,
		BackupConcurrency: cfg.Limits.BackupConcurrency,
		MaxBatchItems:     cfg.Limits.MaxBatchItems,
	})
	if err != nil {
		return nil, err
	}

	d.log.Info("store ready", kvproxy.Fields{"backend": cfg.Store.Backend, "lock": cfg.Lock.Backend})
	return d, nil
}

func buildLogger(d *deps, c config.Log, w io.Writer) (kvproxy.Logger, error) {
	lvl, err := c.ZapLevel()
	if err != nil {
		return nil, err
	}
	switch c.Backend {
	case "zap":
		l, err := zaplog.Config{Format: c.Format, Level: lvl}.New(w)
		if err != nil {
			return nil, err
		}
		d.onClose(func(context.Context) error {
			_ = l.Sync()
			return nil
		})
		return zaplog.ZapLogger{L: l}, nil
	case "logrus":
		l := logrus.New()
		l.SetOutput(w)
		l.SetLevel(logrusLevel(lvl))
		if c.Format == "json" {
			l.SetFormatter(&logrus.JSONFormatter{})
		}
		return logruslog.LogrusLogger{E: logrus.NewEntry(l)}, nil
	case "slog":
		return slogl.Logger{L: stdslog.New(slogHandler(w, c.Format, lvl))}, nil
	}
	return nil, fmt.Errorf("unknown log backend %q", c.Backend)
}

func logrusLevel(l zapcore.Level) logrus.Level {
	switch l {
	case zapcore.DebugLevel:
		return logrus.DebugLevel
	case zapcore.WarnLevel:
		return logrus.WarnLevel
	case zapcore.InfoLevel:
		return logrus.InfoLevel
	default:
		return logrus.ErrorLevel
	}
}

func slogHandler(w io.Writer, format string, l zapcore.Level) stdslog.Handler {
	opts := &stdslog.HandlerOptions{Level: slogLevel(l)}
	if format == "json" {
		return stdslog.NewJSONHandler(w, opts)
	}
	return stdslog.NewTextHandler(w, opts)
}

func slogLevel(l zapcore.Level) stdslog.Level {
	switch l {
	case zapcore.DebugLevel:
		return stdslog.LevelDebug
	case zapcore.InfoLevel:
		return stdslog.LevelInfo
	case zapcore.WarnLevel:
		return stdslog.LevelWarn
	default:
		return stdslog.LevelError
	}
}

func buildProvider(ctx context.Context, d *deps, c config.Store, rdb goredis.UniversalClient) (pr.Provider, error) {
	switch c.Backend {
	case "memory":
		return memory.New(), nil
	case "redis":
		return redisp.New(redisp.Config{Client: rdb})
	case "bigcache":
		return bigcachep.New(bigcachep.Config{
			LifeWindow:         c.Bigcache.LifeWindow,
			CleanWindow:        c.Bigcache.CleanWindow,
			MaxEntrySize:       c.Bigcache.MaxEntrySize,
			HardMaxCacheSizeMB: c.Bigcache.HardMaxMB,
		})
	case "ristretto":
		p, err := ristrettop.New(ristrettop.Config{
			NumCounters: c.Ristretto.NumCounters,
			MaxCost:     c.Ristretto.MaxCost,
			BufferItems: c.Ristretto.BufferItems,
			Metrics:     d.registry != nil,
		})
		if err != nil {
			return nil, err
		}
		if d.registry != nil {
			registerRistretto(d.registry, p)
		}
		return p, nil
	case "bolt":
		return boltp.New(boltp.Config{
			Path:          c.Bolt.Path,
			Bucket:        c.Bolt.Bucket,
			SweepInterval: c.Bolt.SweepInterval,
			NoSync:        c.Bolt.NoSync,
		})
	case "s3":
		client, err := newS3Client(ctx, c.S3)
		if err != nil {
			return nil, err
		}
		return s3p.New(ctx, s3p.Config{Bucket: c.S3.Bucket, Namespace: c.S3.Namespace, Client: client})
	}
	return nil, fmt.Errorf("unknown store backend %q", c.Backend)
}

func newS3Client(ctx context.Context, c config.S3) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.PathStyle
	}), nil
}

func registerRistretto(reg prometheus.Registerer, p *ristrettop.Provider) {
	m := p.Metrics()
	gauge := func(name, help string, fn func() uint64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "kvproxy",
			Subsystem: "ristretto",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn()) })
	}
	reg.MustRegister(
		gauge("hits", "Cache hits.", m.Hits),
		gauge("misses", "Cache misses.", m.Misses),
		gauge("keys_evicted", "Keys evicted under cost pressure.", m.KeysEvicted),
		gauge("cost_added", "Total cost of admitted entries.", m.CostAdded),
	)
}

// redisClient dials the configured server on db. Lock keys live in their own
// db so listings and backups of the store never see them.
func (d *deps) redisClient(c config.Redis, db int) goredis.UniversalClient {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       db,
	})
	d.onClose(func(context.Context) error { return rdb.Close() })
	return rdb
}

func buildLocker(c config.Lock, rdb goredis.UniversalClient) (lock.Locker, error) {
	switch c.Backend {
	case "none":
		return nil, nil
	case "local":
		return lock.NewLocal(c.Timeout), nil
	case "redis":
		return lock.NewRedis(lock.RedisConfig{Client: rdb, Expiry: c.Expiry})
	}
	return nil, fmt.Errorf("unknown lock backend %q", c.Backend)
}

// buildHooks fans events to a slog sink and, with metrics on, Prometheus.
// A positive queue size moves delivery off the request path.
func buildHooks(d *deps, cfg config.Config, w io.Writer) (kvproxy.Hooks, error) {
	lvl, _ := cfg.Log.ZapLevel()
	sinks := []kvproxy.Hooks{
		sloghook.New(stdslog.New(slogHandler(w, cfg.Log.Format, lvl)), sloghook.Options{
			ItemFailedEvery: cfg.Hooks.ItemFailedEvery,
			StoreFaultEvery: cfg.Hooks.StoreFaultEvery,
		}),
	}
	if d.registry != nil {
		ph, err := promhook.New(d.registry)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ph)
	}

	hooks := kvproxy.MultiHooks(sinks...)
	if cfg.Hooks.AsyncQueue > 0 {
		d.async = asynchook.New(hooks, 1, cfg.Hooks.AsyncQueue)
		d.onClose(func(context.Context) error {
			d.async.Close()
			return nil
		})
		return d.async, nil
	}
	return hooks, nil
}

// reportDropped warns when the async hook queue overflowed since the last tick.
func reportDropped(ctx context.Context, log kvproxy.Logger, h *asynchook.Hooks, every time.Duration) error {
	if h == nil {
		return nil
	}
	t := time.NewTicker(every)
	defer t.Stop()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := h.Dropped(); n > last {
				log.Warn("hook events dropped", kvproxy.Fields{"dropped": n - last, "total": n})
				last = n
			}
		}
	}
}
