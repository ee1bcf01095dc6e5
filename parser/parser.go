package parser

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-laptops/models"
)

// ParsePrice removes thousands separators and parses the remaining text.
// The result is truncated to whole currency units. ok is false when the
// field is absent, non-numeric or negative.
func ParsePrice(f models.Field) (price int64, ok bool) {
	raw, present := f.Value()
	if !present {
		return 0, false
	}
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, false
	}
	if value >= math.MaxInt64 {
		return 0, false
	}
	return int64(value), true
}

// ParseRating converts the rating text to a number on the 0-5 scale.
func ParseRating(f models.Field) (rating float64, ok bool) {
	raw, present := f.Value()
	if !present {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || value < 0 || value > 5 {
		return 0, false
	}
	return value, true
}

// Median returns the median of values. ok is false for an empty slice.
func Median(values []float64) (median float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}
