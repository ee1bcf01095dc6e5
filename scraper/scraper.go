// Package scraper fetches the search results page with colly.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-laptops/config"
)

// Scraper wraps the colly collector used to download a single page.
type Scraper struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("url must include a host")
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &Scraper{
		cfg:       cfg,
		collector: collector,
		Metrics:   NewMetrics(),
	}, nil
}

// Fetch downloads rawURL and returns its body. Anything other than a 200
// response comes back as a *FetchError. Fetch returns as soon as ctx is
// done; the abandoned request itself is bounded by cfg.Timeout.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: rawURL, Err: classifyError(err, 0)}
	}

	c := s.collector.Clone()
	var (
		body   []byte
		status int
		start  time.Time
	)

	c.OnRequest(func(r *colly.Request) {
		start = time.Now()
		if s.cfg.Accept != "" {
			r.Headers.Set("Accept", s.cfg.Accept)
		}
		if s.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", s.cfg.AcceptLanguage)
		}
		s.Metrics.IncRequest("started")
		slog.Debug("fetching page", slog.String("url", r.URL.String()))
	})

	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
		s.Metrics.ObserveDuration(time.Since(start))
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(rawURL)
	}()

	var visitErr error
	select {
	case visitErr = <-done:
	case <-ctx.Done():
		s.Metrics.IncError(errorTypeLabel(classifyError(ctx.Err(), 0)))
		s.Metrics.IncRequest("canceled")
		slog.Warn("fetch canceled", slog.String("url", rawURL), slog.Any("error", ctx.Err()))
		return nil, &FetchError{URL: rawURL, Err: classifyError(ctx.Err(), 0)}
	}
	if visitErr == nil && status != http.StatusOK {
		visitErr = fmt.Errorf("unexpected status %d", status)
	}
	if visitErr != nil {
		classified := classifyError(visitErr, status)
		category := errorTypeLabel(classified)
		s.Metrics.IncError(category)
		s.Metrics.IncRequest("failed")
		slog.Error("fetch failed",
			slog.String("url", rawURL),
			slog.Int("status", status),
			slog.String("category", category),
			slog.Any("error", visitErr),
		)
		return nil, &FetchError{URL: rawURL, Status: status, Err: classified}
	}

	s.Metrics.IncRequest("succeeded")
	slog.Debug("page fetched", slog.String("url", rawURL), slog.Int("bytes", len(body)))
	return body, nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		if statusCode >= http.StatusInternalServerError {
			return ErrServerError{Status: statusCode, Err: wrapped}
		}
	}

	return err
}
