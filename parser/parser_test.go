package parser

import (
	"testing"

	"github.com/aluiziolira/go-scrape-laptops/models"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    models.Field
		expected int64
		ok       bool
	}{
		{
			name:     "indian grouping",
			input:    models.Present("1,23,456"),
			expected: 123456,
			ok:       true,
		},
		{
			name:     "trailing decimal point",
			input:    models.Present("52,990."),
			expected: 52990,
			ok:       true,
		},
		{
			name:     "fraction truncated",
			input:    models.Present("999.99"),
			expected: 999,
			ok:       true,
		},
		{
			name:     "surrounding whitespace",
			input:    models.Present("  45,000 "),
			expected: 45000,
			ok:       true,
		},
		{
			name:  "not available",
			input: models.Present("N/A"),
		},
		{
			name:  "currency symbol left in",
			input: models.Present("₹45,000"),
		},
		{
			name:  "negative",
			input: models.Present("-10"),
		},
		{
			name:  "not a number literal",
			input: models.Present("NaN"),
		},
		{
			name:  "infinity literal",
			input: models.Present("Inf"),
		},
		{
			name:  "only separators",
			input: models.Present(",,"),
		},
		{
			name:  "absent",
			input: models.Absent(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("ParsePrice(%v) = %d, %v; want %d, %v", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		name     string
		input    models.Field
		expected float64
		ok       bool
	}{
		{name: "decimal", input: models.Present("4.3"), expected: 4.3, ok: true},
		{name: "integer", input: models.Present("5"), expected: 5, ok: true},
		{name: "zero", input: models.Present("0"), expected: 0, ok: true},
		{name: "above scale", input: models.Present("5.5")},
		{name: "below scale", input: models.Present("-1")},
		{name: "words", input: models.Present("four")},
		{name: "nan", input: models.Present("NaN")},
		{name: "absent", input: models.Absent()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRating(tt.input)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("ParseRating(%v) = %v, %v; want %v, %v", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		input    []float64
		expected float64
		ok       bool
	}{
		{name: "empty", input: nil},
		{name: "single", input: []float64{4.0}, expected: 4.0, ok: true},
		{name: "odd unsorted", input: []float64{4.5, 3.0, 4.0}, expected: 4.0, ok: true},
		{name: "even", input: []float64{3.0, 4.0, 5.0, 4.0}, expected: 4.0, ok: true},
		{name: "even averaged", input: []float64{3.5, 4.5}, expected: 4.0, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Median(tt.input)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("Median(%v) = %v, %v; want %v, %v", tt.input, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestMedianDoesNotReorderInput(t *testing.T) {
	input := []float64{5, 1, 3}
	Median(input)
	if input[0] != 5 || input[1] != 1 || input[2] != 3 {
		t.Fatalf("input reordered: %v", input)
	}
}
