package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cfletcher/netwatch/internal/config"
	"github.com/cfletcher/netwatch/internal/engine"
	"github.com/cfletcher/netwatch/internal/logstore"
	"github.com/cfletcher/netwatch/internal/server"
	"github.com/cfletcher/netwatch/internal/settings"
	"github.com/cfletcher/netwatch/internal/store"
	"github.com/cfletcher/netwatch/internal/topic"
	"github.com/cfletcher/netwatch/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("netwatch starting", zap.String("version", version.Short()))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	targets, err := cfg.Targets()
	if err != nil {
		logger.Fatal("invalid target configuration", zap.Error(err))
	}

	logStore, err := logstore.New(cfg.GetString("log.dir"), logger)
	if err != nil {
		logger.Fatal("failed to open log store", zap.Error(err))
	}

	db, err := store.Open(cfg.GetString("db.path"))
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := settings.NewSQLiteRepository(ctx, db)
	if err != nil {
		logger.Fatal("failed to initialize settings repository", zap.Error(err))
	}

	// Settings changes to the rotation threshold apply to the log store live.
	watcher := settings.NewWatcher(repo, logger, func(s settings.Snapshot) {
		logStore.SetMaxFileSize(int64(s.MaxLogSizeMB) << 20)
	})

	engineTargets := make([]engine.Target, 0, len(targets))
	for _, t := range targets {
		engineTargets = append(engineTargets, engine.Target{
			Host:     t.Host,
			Label:    t.Label,
			Internal: t.Internal,
		})
	}

	eng := engine.New(logStore, topic.NewRegistry(), watcher, engineTargets, logger)
	eng.Start(ctx)

	addr := cfg.GetString("server.addr")
	srv := server.New(addr, eng, repo, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("netwatch ready",
		zap.String("addr", addr),
		zap.Int("targets", len(targets)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	eng.Stop()

	logger.Info("netwatch stopped")
}
