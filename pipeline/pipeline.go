package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/models"
	"github.com/aluiziolira/go-scrape-laptops/parser"
	"github.com/aluiziolira/go-scrape-laptops/scraper"
)

var (
	// ErrFetchFailed wraps any error returned by the markup fetcher.
	ErrFetchFailed = errors.New("pipeline: fetch failed")
	// ErrNoRecords is returned when containers exist but none carry both a
	// name and a price.
	ErrNoRecords = errors.New("pipeline: no records with name and price")
	// ErrArtifactFailed wraps failures writing the interchange file.
	ErrArtifactFailed = errors.New("pipeline: artifact write failed")
	// ErrStoreFailed wraps failures persisting the record set.
	ErrStoreFailed = errors.New("pipeline: store failed")
)

// Fetcher supplies raw markup for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Store persists a record set, replacing whatever was stored before.
type Store interface {
	Persist(ctx context.Context, records models.RecordSet) error
	Count(ctx context.Context) (int, error)
}

// Pipeline runs fetch, extract, normalize and persist in sequence.
type Pipeline struct {
	cfg     *config.Config
	fetcher Fetcher
	store   Store
	writer  OutputWriter
	fields  parser.Fields

	Metrics *scraper.Metrics
}

// NewPipeline wires a pipeline. writer may be nil to skip the interchange file.
func NewPipeline(cfg *config.Config, fetcher Fetcher, store Store, writer OutputWriter) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		writer:  writer,
		fields:  parser.FieldsFromSelectors(cfg.Selectors),
	}
}

// Run executes one scraping run. Any returned error leaves the store untouched
// except ErrStoreFailed, where the store's own atomicity applies.
func (p *Pipeline) Run(ctx context.Context) (*models.RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	result := &models.RunResult{
		StartTime:     time.Now(),
		DroppedByType: make(map[string]int),
	}

	records, err := p.collect(ctx, result)
	if err != nil {
		return p.finish(result, err)
	}
	return p.finish(result, p.persist(ctx, records, result))
}

// Load persists an already cleaned record set, for example one read back
// from a CSV artifact.
func (p *Pipeline) Load(ctx context.Context, records models.RecordSet) (*models.RunResult, error) {
	result := &models.RunResult{
		StartTime:     time.Now(),
		DroppedByType: make(map[string]int),
	}
	return p.finish(result, p.persist(ctx, records, result))
}

func (p *Pipeline) collect(ctx context.Context, result *models.RunResult) (models.RecordSet, error) {
	slog.Info("fetching page", slog.String("url", p.cfg.URL))
	markup, err := p.fetcher.Fetch(ctx, p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	extraction, err := parser.Extract(bytes.NewReader(markup), p.cfg.Selectors.Container, p.fields)
	if extraction != nil {
		result.Containers = extraction.Containers
		result.Extracted = len(extraction.Records)
		result.Skipped = extraction.Skipped
	}
	if err != nil {
		return nil, err
	}
	p.Metrics.AddExtracted(result.Extracted)
	p.Metrics.AddSkipped(result.Skipped)
	slog.Info("extracted listings",
		slog.Int("containers", result.Containers),
		slog.Int("records", result.Extracted),
		slog.Int("skipped", result.Skipped),
	)
	if result.Extracted == 0 {
		return nil, ErrNoRecords
	}

	normalized := Normalize(extraction.Records, p.cfg.FallbackRating)
	for reason, n := range normalized.Dropped {
		result.DroppedByType[reason] = n
		p.Metrics.AddDropped(reason, n)
	}
	result.Imputed = normalized.Imputed
	result.MedianRating = normalized.MedianRating
	result.NoRatingData = normalized.NoRatingData
	p.Metrics.AddImputed(normalized.Imputed)

	if p.writer != nil {
		if err := p.writer.Write(normalized.Records); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrArtifactFailed, err)
		}
		if err := p.writer.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrArtifactFailed, err)
		}
		result.ArtifactOutput = p.cfg.OutputFile
	}

	return normalized.Records, nil
}

func (p *Pipeline) persist(ctx context.Context, records models.RecordSet, result *models.RunResult) error {
	if err := p.store.Persist(ctx, records); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	// The swap has committed; a failed count must not report the run as lost.
	count, err := p.store.Count(ctx)
	if err != nil {
		slog.Warn("count stored records", slog.Any("error", err))
		count = len(records)
	}
	result.StoredCount = count
	slog.Info("stored records",
		slog.String("database", p.cfg.DatabasePath),
		slog.String("table", p.cfg.TableName),
		slog.Int("records", count),
	)
	return nil
}

func (p *Pipeline) finish(result *models.RunResult, err error) (*models.RunResult, error) {
	result.EndTime = time.Now()
	if err != nil {
		result.FailureReason = FailureReason(err)
		p.Metrics.IncRun(result.FailureReason)
		slog.Error("run aborted",
			slog.String("reason", result.FailureReason),
			slog.Any("error", err),
		)
		return result, err
	}
	p.Metrics.IncRun("success")
	return result, nil
}

// FailureReason labels a fatal run error so selector drift can be told
// apart from network or storage trouble.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	var parseErr *parser.ParseError
	switch {
	case errors.Is(err, ErrFetchFailed):
		return "fetch"
	case errors.Is(err, parser.ErrNoContainersFound):
		return "no_containers"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.Is(err, ErrNoRecords):
		return "no_records"
	case errors.Is(err, ErrArtifactFailed):
		return "artifact"
	case errors.Is(err, ErrStoreFailed):
		return "store"
	default:
		return "other"
	}
}
