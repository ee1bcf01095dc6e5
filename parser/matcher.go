package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-laptops/config"
	"github.com/aluiziolira/go-scrape-laptops/models"
)

// Matcher pulls one field out of a listing container.
type Matcher interface {
	Match(container *goquery.Selection) models.Field
}

// MatcherFunc adapts a plain function to the Matcher interface.
type MatcherFunc func(container *goquery.Selection) models.Field

// Match calls f(container).
func (f MatcherFunc) Match(container *goquery.Selection) models.Field {
	return f(container)
}

// Fields is the field-extraction table handed to Extract.
type Fields struct {
	Name   Matcher
	Price  Matcher
	Rating Matcher
}

// Text matches the trimmed text of the first element under selector.
func Text(selector string) Matcher {
	return MatcherFunc(func(container *goquery.Selection) models.Field {
		sel := container.Find(selector).First()
		if sel.Length() == 0 {
			return models.Absent()
		}
		return models.Present(strings.TrimSpace(sel.Text()))
	})
}

// Attr matches an attribute of the first element under selector.
func Attr(selector, attr string) Matcher {
	return MatcherFunc(func(container *goquery.Selection) models.Field {
		value, ok := container.Find(selector).First().Attr(attr)
		if !ok {
			return models.Absent()
		}
		return models.Present(strings.TrimSpace(value))
	})
}

// Rating matches text like "4.1 out of 5 stars" and yields its leading
// number. Text without phrase is treated as missing.
func Rating(selector, phrase string) Matcher {
	inner := Text(selector)
	return MatcherFunc(func(container *goquery.Selection) models.Field {
		text, ok := inner.Match(container).Value()
		if !ok || !strings.Contains(text, phrase) {
			return models.Absent()
		}
		tokens := strings.Fields(text)
		if len(tokens) == 0 {
			return models.Absent()
		}
		return models.Present(tokens[0])
	})
}

// FirstOf tries each matcher in order and returns the first present result.
func FirstOf(matchers ...Matcher) Matcher {
	return MatcherFunc(func(container *goquery.Selection) models.Field {
		for _, m := range matchers {
			if f := m.Match(container); f.IsPresent() {
				return f
			}
		}
		return models.Absent()
	})
}

// FieldsFromSelectors builds the extraction table from configured selectors.
func FieldsFromSelectors(s config.Selectors) Fields {
	name := make([]Matcher, 0, len(s.Name))
	for _, sel := range s.Name {
		name = append(name, selectorMatcher(sel))
	}
	price := make([]Matcher, 0, len(s.Price))
	for _, sel := range s.Price {
		price = append(price, selectorMatcher(sel))
	}
	rating := make([]Matcher, 0, len(s.Rating))
	for _, sel := range s.Rating {
		rating = append(rating, Rating(sel, s.RatingPhrase))
	}

	return Fields{
		Name:   FirstOf(name...),
		Price:  FirstOf(price...),
		Rating: FirstOf(rating...),
	}
}

func selectorMatcher(sel string) Matcher {
	if css, attr := config.SplitSelector(sel); attr != "" {
		return Attr(css, attr)
	}
	return Text(sel)
}
