package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/models"
	"github.com/aluiziolira/go-scrape-laptops/scraper"
)

type staticFetcher struct {
	body []byte
	err  error
}

func (f *staticFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.body, f.err
}

type memoryStore struct {
	mu         sync.Mutex
	records    models.RecordSet
	persistErr error
	countErr   error
	persists   int
}

func (m *memoryStore) Persist(ctx context.Context, records models.RecordSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.persistErr != nil {
		return m.persistErr
	}
	m.persists++
	m.records = append(models.RecordSet(nil), records...)
	return nil
}

func (m *memoryStore) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return len(m.records), nil
}

type mockWriter struct {
	mu      sync.Mutex
	batches []models.RecordSet
	err     error
}

func (mw *mockWriter) Write(records models.RecordSet) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.err != nil {
		return mw.err
	}
	mw.batches = append(mw.batches, append(models.RecordSet(nil), records...))
	return nil
}

func (mw *mockWriter) Close() error    { return nil }
func (mw *mockWriter) Validate() error { return nil }

func resultsPage(items ...string) []byte {
	var builder strings.Builder
	builder.WriteString("<html><body>")
	for _, item := range items {
		fmt.Fprintf(&builder, `<div data-component-type="s-search-result">%s</div>`, item)
	}
	builder.WriteString("</body></html>")
	return []byte(builder.String())
}

func item(name, price, rating string) string {
	var builder strings.Builder
	if name != "" {
		fmt.Fprintf(&builder, `<h2 class="a-size-small a-spacing-none a-color-base s-line-clamp-3 a-text-normal">%s</h2>`, name)
	}
	if price != "" {
		fmt.Fprintf(&builder, `<span class="a-price-whole">%s</span>`, price)
	}
	if rating != "" {
		fmt.Fprintf(&builder, `<span class="a-icon-alt">%s</span>`, rating)
	}
	return builder.String()
}

func prior() models.RecordSet {
	return models.RecordSet{{Name: "Old Laptop", Price: 1, Rating: 1}}
}

func TestPipelineRunStoresCleanRecords(t *testing.T) {
	cfg := config.DefaultConfig()
	fetcher := &staticFetcher{body: resultsPage(
		item("Alpha 14", "1,23,456", "4.3 out of 5 stars"),
		item("Beta 15", "N/A", "4.9 out of 5 stars"),
		item("Gamma 13", "49,990", ""),
		item("", "9,999", "3.0 out of 5 stars"),
	)}
	store := &memoryStore{records: prior()}
	writer := &mockWriter{}

	p := NewPipeline(cfg, fetcher, store, writer)
	p.Metrics = scraper.NewMetrics()

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := models.RecordSet{
		{Name: "Alpha 14", Price: 123456, Rating: 4.3},
		{Name: "Gamma 13", Price: 49990, Rating: 4.3},
	}
	if len(store.records) != len(want) {
		t.Fatalf("stored = %+v, want %+v", store.records, want)
	}
	for i := range want {
		if store.records[i] != want[i] {
			t.Fatalf("stored[%d] = %+v, want %+v", i, store.records[i], want[i])
		}
	}

	if result.Containers != 4 || result.Extracted != 3 || result.Skipped != 1 {
		t.Fatalf("containers=%d extracted=%d skipped=%d", result.Containers, result.Extracted, result.Skipped)
	}
	if result.DroppedByType[DropInvalidPrice] != 1 {
		t.Fatalf("dropped = %v", result.DroppedByType)
	}
	if result.Imputed != 1 || result.StoredCount != 2 {
		t.Fatalf("imputed=%d stored=%d", result.Imputed, result.StoredCount)
	}
	if result.FailureReason != "" {
		t.Fatalf("unexpected failure reason %q", result.FailureReason)
	}
	if len(writer.batches) != 1 || len(writer.batches[0]) != 2 {
		t.Fatalf("artifact batches = %v", writer.batches)
	}
}

func TestPipelineFatalErrorsLeaveStoreUntouched(t *testing.T) {
	tests := []struct {
		name       string
		fetcher    *staticFetcher
		writer     OutputWriter
		wantReason string
		wantErr    error
	}{
		{
			name:       "fetch failure",
			fetcher:    &staticFetcher{err: &scraper.FetchError{URL: "http://example.test", Status: 503, Err: errors.New("Service Unavailable")}},
			wantReason: "fetch",
			wantErr:    ErrFetchFailed,
		},
		{
			name:       "no containers",
			fetcher:    &staticFetcher{body: []byte("<html><body><p>captcha</p></body></html>")},
			wantReason: "no_containers",
		},
		{
			name:       "no records",
			fetcher:    &staticFetcher{body: resultsPage(item("Only Name", "", ""))},
			wantReason: "no_records",
			wantErr:    ErrNoRecords,
		},
		{
			name:       "artifact failure",
			fetcher:    &staticFetcher{body: resultsPage(item("A", "1", ""))},
			writer:     &mockWriter{err: errors.New("disk full")},
			wantReason: "artifact",
			wantErr:    ErrArtifactFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memoryStore{records: prior()}
			p := NewPipeline(config.DefaultConfig(), tt.fetcher, store, tt.writer)

			result, err := p.Run(context.Background())
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if result.FailureReason != tt.wantReason {
				t.Fatalf("reason = %q, want %q", result.FailureReason, tt.wantReason)
			}
			if store.persists != 0 || len(store.records) != 1 || store.records[0].Name != "Old Laptop" {
				t.Fatalf("store mutated: %+v", store.records)
			}
		})
	}
}

func TestPipelineStoreFailure(t *testing.T) {
	store := &memoryStore{records: prior(), persistErr: errors.New("database is locked")}
	p := NewPipeline(config.DefaultConfig(), &staticFetcher{body: resultsPage(item("A", "1", ""))}, store, nil)

	result, err := p.Run(context.Background())
	if !errors.Is(err, ErrStoreFailed) {
		t.Fatalf("error = %v, want ErrStoreFailed", err)
	}
	if result.FailureReason != "store" {
		t.Fatalf("reason = %q, want store", result.FailureReason)
	}
	if store.records[0].Name != "Old Laptop" {
		t.Fatalf("old data should remain: %+v", store.records)
	}
}

func TestPipelineCountFailureAfterCommit(t *testing.T) {
	store := &memoryStore{records: prior(), countErr: errors.New("disk I/O error")}
	page := resultsPage(item("A", "1", "4.0 out of 5 stars"), item("B", "2", ""))
	p := NewPipeline(config.DefaultConfig(), &staticFetcher{body: page}, store, nil)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.FailureReason != "" {
		t.Fatalf("reason = %q, want none", result.FailureReason)
	}
	if result.StoredCount != 2 || len(store.records) != 2 {
		t.Fatalf("stored = %d (store has %d), want 2", result.StoredCount, len(store.records))
	}
}

func TestPipelineLoad(t *testing.T) {
	store := &memoryStore{records: prior()}
	p := NewPipeline(config.DefaultConfig(), &staticFetcher{}, store, nil)

	records := models.RecordSet{{Name: "A", Price: 10, Rating: 4}, {Name: "B", Price: 20, Rating: 3}}
	result, err := p.Load(context.Background(), records)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if result.StoredCount != 2 || len(store.records) != 2 {
		t.Fatalf("stored = %d, want 2", result.StoredCount)
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: fmt.Errorf("%w: boom", ErrFetchFailed), want: "fetch"},
		{err: fmt.Errorf("%w: boom", ErrStoreFailed), want: "store"},
		{err: ErrNoRecords, want: "no_records"},
		{err: errors.New("something else"), want: "other"},
	}
	for _, tt := range tests {
		if got := FailureReason(tt.err); got != tt.want {
			t.Errorf("FailureReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
