package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/models"
	"github.com/aluiziolira/go-scrape-laptops/pipeline"
	"github.com/aluiziolira/go-scrape-laptops/scraper"
	"github.com/aluiziolira/go-scrape-laptops/store"
)

func main() {
	defaultCfg := config.DefaultConfig()
	urlDefault := defaultCfg.URL
	if value, ok := config.EnvString("SCRAPER_URL"); ok {
		urlDefault = value
	}
	dbDefault := defaultCfg.DatabasePath
	if value, ok := config.EnvString("SCRAPER_DB"); ok {
		dbDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	timeoutDefault := defaultCfg.Timeout
	if value, ok, err := config.EnvDuration("SCRAPER_TIMEOUT"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_TIMEOUT: %v\n", err)
		os.Exit(1)
	} else if ok {
		timeoutDefault = value
	}

	targetURL := flag.String("url", urlDefault, "Search results page to scrape")
	timeout := flag.Duration("timeout", timeoutDefault, "Request timeout")
	respectRobots := flag.Bool("respect-robots", false, "Respect robots.txt directives")
	selectorsFile := flag.String("selectors", "", "YAML file overriding the default selectors")
	fallbackRating := flag.Float64("fallback-rating", defaultCfg.FallbackRating, "Rating used when no listing has one (0-5)")
	dbPath := flag.String("db", dbDefault, "SQLite database file")
	table := flag.String("table", defaultCfg.TableName, "Table holding the latest run")
	outputFile := flag.String("output", outputDefault, "Interchange file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Interchange format: none, csv, json, or dual")
	fromCSV := flag.String("from-csv", "", "Load a cleaned CSV file into the store instead of scraping")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.URL = *targetURL
	cfg.Timeout = *timeout
	cfg.RespectRobotsTxt = *respectRobots
	cfg.FallbackRating = *fallbackRating
	cfg.DatabasePath = *dbPath
	cfg.TableName = *table
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if *selectorsFile != "" {
		selectors, err := config.LoadSelectors(*selectorsFile)
		if err != nil {
			slog.Error("loading selectors", slog.Any("error", err))
			os.Exit(1)
		}
		cfg.Selectors = selectors
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	os.Exit(run(cfg, *fromCSV))
}

func run(cfg *config.Config, fromCSV string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return 1
	}

	db, err := store.OpenConfig(cfg)
	if err != nil {
		slog.Error("opening store", slog.Any("error", err))
		return 1
	}
	defer db.Close()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	var (
		result *models.RunResult
		runErr error
	)
	if fromCSV != "" {
		records, err := pipeline.ReadCSV(fromCSV)
		if err != nil {
			slog.Error("reading csv", slog.Any("error", err))
			return 1
		}
		p := pipeline.NewPipeline(cfg, s, db, nil)
		p.Metrics = s.Metrics
		result, runErr = p.Load(ctx, records)
	} else {
		writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
		if err != nil {
			slog.Error("creating writer", slog.Any("error", err))
			return 1
		}
		if writer != nil {
			defer func() {
				if err := writer.Close(); err != nil {
					slog.Error("close writer", slog.Any("error", err))
				}
			}()
		}

		p := pipeline.NewPipeline(cfg, s, db, writer)
		p.Metrics = s.Metrics
		slog.Info("starting scrape", slog.String("url", cfg.URL))
		result, runErr = p.Run(ctx)
	}

	printSummary(cfg, result)
	if runErr != nil {
		return 1
	}
	return 0
}

func printSummary(cfg *config.Config, result *models.RunResult) {
	if result == nil {
		return
	}
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	if result.FailureReason != "" {
		fmt.Printf("Run aborted: %s\n", describeFailure(result.FailureReason))
	} else {
		fmt.Println("Run complete")
	}

	fmt.Printf("  Containers:    %d\n", result.Containers)
	fmt.Printf("  Extracted:     %d\n", result.Extracted)
	fmt.Printf("  Skipped:       %d\n", result.Skipped)
	if len(result.DroppedByType) > 0 {
		fmt.Printf("  Dropped:       %v\n", result.DroppedByType)
	}
	fmt.Printf("  Imputed:       %d (rating %.2f)\n", result.Imputed, result.MedianRating)
	if result.NoRatingData {
		fmt.Println("  Ratings:       no rating data, fallback used")
	}
	fmt.Printf("  Stored:        %d\n", result.StoredCount)
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	if result.ArtifactOutput != "" {
		fmt.Printf("  Output file:   %s\n", result.ArtifactOutput)
	}
	fmt.Printf("  Database:      %s (%s)\n", cfg.DatabasePath, cfg.TableName)
	fmt.Println(separator)
}

func describeFailure(reason string) string {
	switch reason {
	case "fetch":
		return "could not fetch the page (network error or non-200 response)"
	case "no_containers":
		return "no product containers found; check the container selector"
	case "parse":
		return "the page markup could not be parsed"
	case "no_records":
		return "no listing had both a name and a price; check the field selectors"
	case "artifact":
		return "writing the interchange file failed"
	case "store":
		return "writing to the database failed; previous data is unchanged"
	default:
		return reason
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
