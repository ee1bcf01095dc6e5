package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-laptops/api"
	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/store"
)

func main() {
	defaultCfg := config.DefaultConfig()
	addrDefault := defaultCfg.ListenAddr
	if value, ok := config.EnvString("SERVER_ADDR"); ok {
		addrDefault = value
	}
	dbDefault := defaultCfg.DatabasePath
	if value, ok := config.EnvString("SCRAPER_DB"); ok {
		dbDefault = value
	}
	ttlDefault := defaultCfg.CacheTTL
	if value, ok, err := config.EnvDuration("SERVER_CACHE_TTL"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SERVER_CACHE_TTL: %v\n", err)
		os.Exit(1)
	} else if ok {
		ttlDefault = value
	}

	addr := flag.String("addr", addrDefault, "HTTP listen address")
	dbPath := flag.String("db", dbDefault, "SQLite database file")
	table := flag.String("table", defaultCfg.TableName, "Table holding the latest run")
	cacheTTL := flag.Duration("cache-ttl", ttlDefault, "How long query results are cached (0 disables)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := config.DefaultConfig()
	cfg.ListenAddr = *addr
	cfg.DatabasePath = *dbPath
	cfg.TableName = *table
	cfg.CacheTTL = *cacheTTL
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := store.OpenConfig(cfg)
	if err != nil {
		slog.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	srv := api.NewServer(db, cfg.CacheTTL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", slog.String("addr", cfg.ListenAddr), slog.String("database", cfg.DatabasePath))
		errCh <- srv.Start(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", slog.Any("error", err))
		}
	}
}
