package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aluiziolira/go-scrape-laptops/config"
)

const searchURL = "http://example.test/search"

func newTestScraper(t *testing.T, responder httpmock.Responder) *Scraper {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.URL = searchURL

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", searchURL, responder)

	s, err := NewScraper(cfg)
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.collector.WithTransport(transport)
	return s
}

func TestFetchReturnsBody(t *testing.T) {
	var gotHeaders http.Header
	s := newTestScraper(t, func(req *http.Request) (*http.Response, error) {
		gotHeaders = req.Header.Clone()
		resp := httpmock.NewStringResponse(http.StatusOK, "<html><body>results</body></html>")
		resp.Header.Set("Content-Type", "text/html")
		return resp, nil
	})

	body, err := s.Fetch(context.Background(), searchURL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "<html><body>results</body></html>" {
		t.Fatalf("body = %q", body)
	}

	cfg := config.DefaultConfig()
	if got := gotHeaders.Get("User-Agent"); got != cfg.UserAgent {
		t.Fatalf("user agent = %q", got)
	}
	if got := gotHeaders.Get("Accept-Language"); got != cfg.AcceptLanguage {
		t.Fatalf("accept-language = %q", got)
	}
	if got := testutil.ToFloat64(s.Metrics.RequestsTotal.WithLabelValues("succeeded")); got != 1 {
		t.Fatalf("succeeded requests = %v, want 1", got)
	}
}

func TestFetchCanRepeat(t *testing.T) {
	s := newTestScraper(t, httpmock.NewStringResponder(http.StatusOK, "<html></html>"))
	for i := 0; i < 2; i++ {
		if _, err := s.Fetch(context.Background(), searchURL); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
}

func TestFetchHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusServiceUnavailable, expected: "server_error"},
		{status: http.StatusInternalServerError, expected: "server_error"},
		{status: http.StatusAccepted, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			s := newTestScraper(t, httpmock.NewStringResponder(tt.status, ""))

			body, err := s.Fetch(context.Background(), searchURL)
			if body != nil {
				t.Fatalf("expected no body on failure")
			}
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("expected *FetchError, got %v", err)
			}
			if fetchErr.Status != tt.status {
				t.Fatalf("status = %d, want %d", fetchErr.Status, tt.status)
			}
			if got := fetchErr.Category(); got != tt.expected {
				t.Fatalf("category = %q, want %q", got, tt.expected)
			}
			if got := testutil.ToFloat64(s.Metrics.ErrorsTotal.WithLabelValues(tt.expected)); got != 1 {
				t.Fatalf("errors_total{%s} = %v, want 1", tt.expected, got)
			}
		})
	}
}

func TestFetchConnectionError(t *testing.T) {
	s := newTestScraper(t, httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))

	_, err := s.Fetch(context.Background(), searchURL)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if got := fetchErr.Category(); got != "connection" {
		t.Fatalf("category = %q, want connection", got)
	}
}

func TestFetchCanceledContext(t *testing.T) {
	s := newTestScraper(t, httpmock.NewStringResponder(http.StatusOK, "<html></html>"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Fetch(ctx, searchURL); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFetchCanceledInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := newTestScraper(t, func(req *http.Request) (*http.Response, error) {
		close(started)
		<-release
		return httpmock.NewStringResponse(http.StatusOK, "<html></html>"), nil
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Fetch(ctx, searchURL)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("fetch did not return after cancellation")
	}
	if got := testutil.ToFloat64(s.Metrics.RequestsTotal.WithLabelValues("canceled")); got != 1 {
		t.Fatalf("canceled requests = %v, want 1", got)
	}
}

func TestNewScraperRejectsHostlessURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.URL = "/relative/path"
	if _, err := NewScraper(cfg); err == nil {
		t.Fatalf("expected error for url without host")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "bad gateway", err: errors.New("Bad Gateway"), statusCode: http.StatusBadGateway, expected: "server_error"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}
