// Package parser turns search result markup into raw listing records and
// coerces their text fields into typed values.
package parser

import (
	"errors"
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-laptops/models"
)

// ErrNoContainersFound is returned when the container selector matches
// nothing, which usually means the page layout changed.
var ErrNoContainersFound = errors.New("parser: no product containers found")

// ParseError indicates the markup could not be parsed at all.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Errorf("parse markup: %w", e.Err).Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Extraction is the result of one Extract call.
type Extraction struct {
	Records    []models.RawRecord
	Containers int
	// Skipped counts containers dropped for lacking a name or a price.
	Skipped int
}

// Extract finds every container in markup and matches its fields.
// Only records with both a name and a price are kept.
func Extract(markup io.Reader, containerSelector string, fields Fields) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(markup)
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	containers := doc.Find(containerSelector)
	result := &Extraction{Containers: containers.Length()}
	if result.Containers == 0 {
		return result, ErrNoContainersFound
	}

	containers.Each(func(_ int, container *goquery.Selection) {
		record := models.RawRecord{
			Name:   match(fields.Name, container),
			Price:  match(fields.Price, container),
			Rating: match(fields.Rating, container),
		}
		if !record.Name.IsPresent() || !record.Price.IsPresent() {
			result.Skipped++
			return
		}
		result.Records = append(result.Records, record)
	})

	return result, nil
}

func match(m Matcher, container *goquery.Selection) models.Field {
	if m == nil {
		return models.Absent()
	}
	return m.Match(container)
}
