//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wwqgtxx/fdsplice/config"
	"github.com/wwqgtxx/fdsplice/logger"
	"github.com/wwqgtxx/fdsplice/monitor"
	"github.com/wwqgtxx/fdsplice/relay"
	"github.com/wwqgtxx/fdsplice/taskio"
)

func main() {
	configFile := "config.yaml"
	if len(os.Args) == 2 {
		configFile = os.Args[1]
	}
	if !filepath.IsAbs(configFile) {
		currentDir, _ := os.Getwd()
		configFile = filepath.Join(currentDir, configFile)
	}
	buf, err := config.ReadConfig(configFile)
	if err != nil {
		panic(err)
	}
	cfg, err := config.ParseConfig(buf)
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("exit", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	backend, err := taskio.ParseBackend(cfg.Splice.Backend)
	if err != nil {
		return err
	}
	splicer := &taskio.Splicer{
		Backend:   backend,
		StopOnEOF: cfg.Splice.StopOnEOF,
		Logger:    log.Named("splice"),
	}

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Monitor.Enable {
		mon := monitor.New()
		defer mon.Stop()
		splicer.Monitor = mon
		g.Go(func() error {
			return mon.Report(ctx, cfg.Monitor.ReportInterval(), log.Named("monitor"))
		})
	}

	for _, relayConfig := range cfg.Relays {
		r, err := relay.New(relayConfig, cfg.Splice, splicer, log.Named("relay"))
		if err != nil {
			return err
		}
		g.Go(func() error {
			return r.ListenAndServe(ctx)
		})
	}
	return g.Wait()
}
