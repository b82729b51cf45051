package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/vape-product-scraper/internal/models"
)

// CardError records a card that was skipped because a required element was
// missing.
type CardError struct {
	Index int
	Err   error
}

func (e CardError) Error() string {
	return fmt.Sprintf("card %d: %v", e.Index, e.Err)
}

func (e CardError) Unwrap() error {
	return e.Err
}

// ListingPage holds the cards of one listing page in page order. No cards
// means there are no more pages.
type ListingPage struct {
	Cards    []models.ListingCard
	Failures []CardError
}

type cardFunc func(card *goquery.Selection, base string) (models.ListingCard, error)

func parseCards(page *Page, selector, base string, parse cardFunc) ListingPage {
	out := ListingPage{Cards: make([]models.ListingCard, 0)}
	page.Doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		card, err := parse(s, base)
		if err != nil {
			out.Failures = append(out.Failures, CardError{Index: i, Err: err})
			return
		}
		out.Cards = append(out.Cards, card)
	})
	return out
}

// ResolveURL joins href against base and requires an absolute http(s) URL.
func ResolveURL(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("%w: empty href", ErrInvalidLink)
	}

	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: bad base %q: %v", ErrInvalidLink, base, err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidLink, href, err)
	}

	abs := b.ResolveReference(ref)
	if (abs.Scheme != "http" && abs.Scheme != "https") || abs.Host == "" {
		return "", fmt.Errorf("%w: %q is not an absolute web URL", ErrInvalidLink, abs.String())
	}
	return abs.String(), nil
}

func requiredText(s *goquery.Selection, selector string) (string, error) {
	el := s.Find(selector).First()
	if el.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingElement, selector)
	}
	text := cleanText(el)
	if text == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrMissingElement, selector)
	}
	return text, nil
}

func requiredAttr(s *goquery.Selection, selector, attr string) (string, error) {
	el := s.Find(selector).First()
	if el.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingElement, selector)
	}
	value, ok := el.Attr(attr)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s[%s]", ErrMissingElement, selector, attr)
	}
	return strings.TrimSpace(value), nil
}

func optionalText(s *goquery.Selection, selector string) *string {
	return models.OptionalString(cleanText(s.Find(selector).First()))
}

func requiredURL(s *goquery.Selection, selector, attr, base string) (string, error) {
	href, err := requiredAttr(s, selector, attr)
	if err != nil {
		return "", err
	}
	return ResolveURL(base, href)
}
