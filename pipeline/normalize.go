package pipeline

import (
	"log/slog"
	"math"
	"strings"

	"github.com/aluiziolira/go-scrape-laptops/models"
	"github.com/aluiziolira/go-scrape-laptops/parser"
)

// Drop reasons reported by Normalize.
const (
	DropInvalidPrice = "invalid_price"
	DropMissingName  = "missing_name"
)

// Normalized is the typed output of Normalize.
type Normalized struct {
	Records      models.RecordSet
	Dropped      map[string]int
	Imputed      int
	MedianRating float64
	// NoRatingData is set when no surviving record carried a rating and
	// fallbackRating was used instead of a median.
	NoRatingData bool
}

// Normalize coerces raw records into typed laptops. Records with an
// unusable price or an empty name are dropped; missing ratings are filled
// with the median of the remaining ratings. Input order is preserved.
func Normalize(raw []models.RawRecord, fallbackRating float64) *Normalized {
	if math.IsNaN(fallbackRating) || fallbackRating < 0 || fallbackRating > 5 {
		fallbackRating = 0
	}

	type pending struct {
		laptop    models.Laptop
		hasRating bool
	}

	out := &Normalized{Dropped: make(map[string]int)}
	kept := make([]pending, 0, len(raw))
	ratings := make([]float64, 0, len(raw))

	for _, record := range raw {
		price, priceOK := parser.ParsePrice(record.Price)
		rating, ratingOK := parser.ParseRating(record.Rating)
		name, _ := record.Name.Value()
		name = strings.TrimSpace(name)

		if !priceOK {
			out.Dropped[DropInvalidPrice]++
			continue
		}
		if name == "" {
			out.Dropped[DropMissingName]++
			continue
		}

		kept = append(kept, pending{
			laptop:    models.Laptop{Name: name, Price: price, Rating: rating},
			hasRating: ratingOK,
		})
		if ratingOK {
			ratings = append(ratings, rating)
		}
	}

	fill, ok := parser.Median(ratings)
	if !ok {
		fill = fallbackRating
		out.NoRatingData = len(kept) > 0
	}
	out.MedianRating = fill

	out.Records = make(models.RecordSet, 0, len(kept))
	for _, p := range kept {
		if !p.hasRating {
			p.laptop.Rating = fill
			out.Imputed++
		}
		out.Records = append(out.Records, p.laptop)
	}

	if out.NoRatingData {
		slog.Warn("no rating data, using fallback rating",
			slog.Float64("fallback_rating", fill),
			slog.Int("records", len(out.Records)),
		)
	}
	return out
}
