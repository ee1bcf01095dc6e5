package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
)

// Selectors describes where each listing field lives in the page.
// Each field takes an ordered list of CSS selectors; the first one that
// yields a value wins. A field selector written as "css@attr" reads the
// attribute instead of the element text, e.g. "h2@aria-label".
type Selectors struct {
	Container    string   `yaml:"container"`
	Name         []string `yaml:"name"`
	Price        []string `yaml:"price"`
	Rating       []string `yaml:"rating"`
	RatingPhrase string   `yaml:"rating_phrase"`
}

// Config holds scraper, store and server configuration.
type Config struct {
	URL              string
	Timeout          time.Duration
	UserAgent        string
	Accept           string
	AcceptLanguage   string
	RespectRobotsTxt bool
	Selectors        Selectors
	FallbackRating   float64
	DatabasePath     string
	TableName        string
	OutputFile       string
	OutputFormat     string // none, csv, json, or dual
	ListenAddr       string
	MetricsAddr      string
	CacheTTL         time.Duration
	Verbose          bool
}

var (
	tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	attrNamePattern  = regexp.MustCompile(`^[A-Za-z_:][-A-Za-z0-9_:.]*$`)
)

// DefaultSelectors targets the search results layout of the demo retailer.
func DefaultSelectors() Selectors {
	return Selectors{
		Container: `div[data-component-type="s-search-result"]`,
		Name: []string{
			"h2.a-size-small.a-spacing-none.a-color-base.s-line-clamp-3.a-text-normal",
			"h2",
		},
		Price:        []string{"span.a-price-whole"},
		Rating:       []string{"span.a-icon-alt"},
		RatingPhrase: "out of 5",
	}
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		URL:            "https://www.amazon.in/s?k=laptops",
		Timeout:        10 * time.Second,
		UserAgent:      "Mozilla/5.0 (Linux; Android 6.0; Nexus 5 Build/MRA58N) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Mobile Safari/537.36",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		AcceptLanguage: "en-GB,en-US;q=0.9,en;q=0.8",
		Selectors:      DefaultSelectors(),
		FallbackRating: 0,
		DatabasePath:   "laptops.db",
		TableName:      "laptops",
		OutputFile:     "output/laptops_data.csv",
		OutputFormat:   "csv",
		ListenAddr:     ":5000",
		CacheTTL:       5 * time.Second,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	parsedURL, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("url must include a host")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if err := c.Selectors.Validate(); err != nil {
		return err
	}
	if c.FallbackRating < 0 || c.FallbackRating > 5 {
		return fmt.Errorf("fallback rating must be within [0,5], got %v", c.FallbackRating)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if !tableNamePattern.MatchString(c.TableName) {
		return fmt.Errorf("table name %q is not a plain identifier", c.TableName)
	}
	switch c.OutputFormat {
	case "none", "csv", "json", "dual":
	default:
		return fmt.Errorf("output format must be none, csv, json, or dual")
	}
	if c.OutputFormat != "none" && c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl cannot be negative")
	}

	return nil
}

// ValidTableName reports whether name can be used unquoted as a table name.
func ValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// SplitSelector separates a field selector into its CSS part and the
// optional attribute named after the last "@".
func SplitSelector(sel string) (css, attr string) {
	i := strings.LastIndex(sel, "@")
	if i <= 0 || !attrNamePattern.MatchString(sel[i+1:]) {
		return sel, ""
	}
	return strings.TrimSpace(sel[:i]), sel[i+1:]
}

// Validate checks that every selector compiles.
func (s Selectors) Validate() error {
	if s.Container == "" {
		return fmt.Errorf("container selector cannot be empty")
	}
	if _, err := cascadia.Compile(s.Container); err != nil {
		return fmt.Errorf("container selector %q: %w", s.Container, err)
	}

	fields := []struct {
		name string
		list []string
	}{
		{"name", s.Name},
		{"price", s.Price},
		{"rating", s.Rating},
	}
	for _, f := range fields {
		if len(f.list) == 0 {
			return fmt.Errorf("%s selectors cannot be empty", f.name)
		}
		for _, sel := range f.list {
			css, _ := SplitSelector(sel)
			if _, err := cascadia.Compile(css); err != nil {
				return fmt.Errorf("%s selector %q: %w", f.name, sel, err)
			}
		}
	}
	if s.RatingPhrase == "" {
		return fmt.Errorf("rating phrase cannot be empty")
	}
	return nil
}
