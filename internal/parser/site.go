package parser

import (
	"fmt"

	"github.com/maltedev/vape-product-scraper/internal/extractor"
)

// site is an Adapter described entirely by data: selectors, fallback chains
// and run constants.
type site struct {
	name           string
	baseURL        string
	listingPattern string
	cardSelector   string
	card           cardFunc
	detail         detailRules
	schema         extractor.Schema
	profile        Profile
}

func (s *site) Name() string { return s.name }

func (s *site) BaseURL() string { return s.baseURL }

func (s *site) ListingURL(page int) string {
	return fmt.Sprintf(s.listingPattern, page)
}

func (s *site) ParseListing(page *Page) ListingPage {
	return parseCards(page, s.cardSelector, s.baseURL, s.card)
}

func (s *site) ParseDetail(page *Page) DetailPage {
	return s.detail.parse(page)
}

func (s *site) Schema() extractor.Schema { return s.schema }

func (s *site) Profile() Profile {
	p := s.profile
	headers := make(map[string]string, len(s.profile.Headers))
	for k, v := range s.profile.Headers {
		headers[k] = v
	}
	p.Headers = headers
	return p
}
