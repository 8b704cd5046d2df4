package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kng-mtd/kvproxy"
	"github.com/kng-mtd/kvproxy/config"
	transport "github.com/kng-mtd/kvproxy/transport/http"
)

func newServeCommand(configPath *string, logOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the key-value API over HTTP",
		Args:  cobra.NoArgs,
	}
	load := configured(cmd, configPath, true)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, logOut)
	}
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logOut io.Writer) (err error) {
	d, err := buildDeps(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if cerr := d.close(closeCtx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	hc := transport.HandlerConfig{
		Proxy:        d.proxy,
		Secret:       cfg.Auth.Secret,
		Logger:       d.log,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}
	if d.registry != nil {
		hc.Gatherer = d.registry
		hc.Metrics = transport.NewRequestMetrics(d.registry)
	}
	h, err := transport.NewHandler(hc)
	if err != nil {
		return err
	}

	srv := &transport.Server{
		Addr:            cfg.HTTP.Addr,
		Handler:         h,
		Log:             d.log,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx, nil) })
	g.Go(func() error { return reportDropped(gctx, d.log, d.async, time.Minute) })
	err = g.Wait()
	d.log.Info("kvproxyd stopped", kvproxy.Fields{"err": err})
	return err
}
