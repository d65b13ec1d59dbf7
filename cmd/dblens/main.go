// Command dblens serves the configured database connections over HTTP.
//
//	dblens -config dblens.yaml
//	dblens -addr :9090
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koustreak/dblens/internal/config"
	"github.com/koustreak/dblens/internal/database"
	_ "github.com/koustreak/dblens/internal/database/all"
	"github.com/koustreak/dblens/internal/filestore"
	"github.com/koustreak/dblens/internal/filestore/memory"
	"github.com/koustreak/dblens/internal/filestore/minio"
	"github.com/koustreak/dblens/internal/logger"
	"github.com/koustreak/dblens/internal/monitoring"
	"github.com/koustreak/dblens/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	preload := flag.Bool("preload", false, "connect every configured connection at startup")
	flag.Parse()

	if err := run(*configPath, *addr, *preload); err != nil {
		fmt.Fprintf(os.Stderr, "dblens: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr string, preload bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	log := logger.New(&cfg.Log)
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory := database.NewFactory()
	cache := database.NewCache(factory, log)

	var archiver *monitoring.Archiver
	if cfg.Archive != nil {
		store, err := openStore(ctx, cfg.Archive)
		if err != nil {
			return fmt.Errorf("open archive store: %w", err)
		}
		defer store.Close()

		archiver = monitoring.NewArchiver(store, cfg.Archive.Bucket, cfg.Archive.Prefix, log)
		initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = archiver.Init(initCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("init archive bucket: %w", err)
		}
	}

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Connections:     cfg.Connections,
		Defaults:        cfg.Defaults,
		Monitoring:      cfg.Monitoring,
		Factory:         factory,
		Cache:           cache,
		Archiver:        archiver,
		Logger:          log,
	})

	log.InfoWith("starting dblens", map[string]interface{}{
		"addr":        cfg.Server.Addr,
		"connections": len(cfg.Connections),
		"backends":    factory.Types(),
		"archive":     archiver != nil,
	})

	if preload {
		srv.Preload(ctx)
	}
	return srv.Run(ctx)
}

func openStore(ctx context.Context, cfg *filestore.Config) (filestore.Store, error) {
	if cfg.Provider == filestore.ProviderMemory {
		return memory.New(), nil
	}
	d, err := minio.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return d, nil
}
