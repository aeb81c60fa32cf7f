package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/pandodao/wallet-core/service/registry"
	"github.com/pandodao/wallet-core/worker/balancer"
	"github.com/pandodao/wallet-core/worker/confirmer"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	opt struct {
		config string
		port   int
		debug  bool
	}

	version = "0.0.1-src"
	commit  = versioninfo.Short()
)

func main() {
	flag.StringVar(&opt.config, "config", "config.yaml", "config file path")
	flag.IntVar(&opt.port, "port", 8080, "server port")
	flag.BoolVar(&opt.debug, "debug", false, "debug mode")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	v := initViper()
	logger := initLogger()

	app, cleanup, err := setupApp(v, logger)
	if err != nil {
		logger.Error("setup failed", "err", err)
		return
	}

	defer cleanup()

	if v.GetBool("storage.autostart") {
		if err := app.registry.Start(ctx, v.GetString("storage.path")); err != nil {
			logger.Error("autostart failed", "err", err)
			return
		}
	}

	logger.Info("wallet daemon launched", "version", version, "commit", commit, "addr", app.svr.Addr)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := app.svr.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return app.svr.Shutdown(context.Background())
	})

	g.Go(func() error {
		return app.confirmer.Run(ctx)
	})

	g.Go(func() error {
		return app.balancer.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exit", "err", err)
	}

	if app.registry.IsRunning() {
		if err := app.registry.Stop(context.Background()); err != nil {
			logger.Error("registry.Stop", "err", err)
		}
	}
}

type app struct {
	svr       *http.Server
	registry  *registry.Registry
	confirmer *confirmer.Confirmer
	balancer  *balancer.Balancer
	logger    *slog.Logger
}

func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if opt.debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func initViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(opt.config)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("wallet")
	v.AutomaticEnv()

	v.SetDefault("storage.path", "./data")
	v.SetDefault("storage.autostart", true)
	v.SetDefault("session_ttl", "24h")
	v.SetDefault("argon.time", 2)
	v.SetDefault("argon.memory_kb", 64*1024)
	v.SetDefault("argon.threads", 1)
	v.SetDefault("transfer.probes", 4)
	v.SetDefault("balancer.interval", "1m")

	if err := v.ReadInConfig(); err != nil {
		log.Panicln(err)
	}

	return v
}
