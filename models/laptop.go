// Package models defines data structures for the scraper.
package models

import "time"

// Field is an optionally present text value pulled from a listing.
// An absent Field is distinct from a present empty string.
type Field struct {
	value   string
	present bool
}

// Present wraps text that was found on the page.
func Present(text string) Field {
	return Field{value: text, present: true}
}

// Absent marks a field that could not be extracted.
func Absent() Field {
	return Field{}
}

// Value returns the text and whether it was present.
func (f Field) Value() (string, bool) {
	return f.value, f.present
}

// IsPresent reports whether the field was found.
func (f Field) IsPresent() bool {
	return f.present
}

func (f Field) String() string {
	if !f.present {
		return "<absent>"
	}
	return f.value
}

// RawRecord is one candidate listing as extracted from the page.
type RawRecord struct {
	Name   Field
	Price  Field
	Rating Field
}

// Laptop is a cleaned listing ready for storage.
type Laptop struct {
	Name   string  `csv:"Name" json:"Name"`
	Price  int64   `csv:"Price" json:"Price"`
	Rating float64 `csv:"Rating" json:"Rating"`
}

// RecordSet is the ordered output of one scraping run.
type RecordSet []Laptop

// RunResult holds the overall result of a scraping run.
type RunResult struct {
	StartTime      time.Time
	EndTime        time.Time
	Containers     int
	Extracted      int
	Skipped        int
	DroppedByType  map[string]int
	Imputed        int
	MedianRating   float64
	NoRatingData   bool
	StoredCount    int
	FailureReason  string
	ArtifactOutput string
}
