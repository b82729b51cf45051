package parser

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/vape-product-scraper/internal/extractor"
	"github.com/maltedev/vape-product-scraper/internal/models"
)

const (
	VapeRangerName    = "vaperanger"
	vapeRangerBaseURL = "https://vaperanger.com/"
)

var vapeRangerDescription = []Strategy[string]{
	DescriptionFromParagraphs("productView-top-description"),
	DescriptionFromJSONLD(),
}

var vapeRangerStock = []Strategy[string]{
	StockFromLabeledCell("Stock"),
	StockFromMarker("Sold Out", "Sold Out", "In Stock"),
}

// NewVapeRanger returns the adapter for vaperanger.com, a BigCommerce shop
// whose flavor table has a header row of unknown columns.
func NewVapeRanger() Adapter {
	return &site{
		name:           VapeRangerName,
		baseURL:        vapeRangerBaseURL,
		listingPattern: "https://vaperanger.com/disposable-vapes/?page=%d",
		cardSelector:   "li[data-product] article.productCard",
		card:           parseVapeRangerCard,
		detail: detailRules{
			description: vapeRangerDescription,
			stock:       vapeRangerStock,
			variants:    HeaderTableVariants("table#flavor-table"),
		},
		schema: extractor.VapeRangerSchema(),
		profile: Profile{
			MaxItems:    110,
			DetailDelay: 300 * time.Millisecond,
			PageDelay:   time.Second,
			Timeout:     10 * time.Second,
		},
	}
}

func parseVapeRangerCard(card *goquery.Selection, base string) (models.ListingCard, error) {
	link, err := requiredURL(card, "a.card-link", "href", base)
	if err != nil {
		return models.ListingCard{}, err
	}
	title, err := requiredText(card, "p.card-title")
	if err != nil {
		return models.ListingCard{}, err
	}
	image, err := requiredURL(card, "figure.card-figure img", "src", base)
	if err != nil {
		return models.ListingCard{}, err
	}

	brand, _ := card.Attr("data-product-brand")

	return models.ListingCard{
		Brand:    models.OptionalString(strings.TrimSpace(brand)),
		Title:    title,
		Price:    optionalText(card, "span.price--withoutTax, span.price--non-sale"),
		Link:     link,
		ImageURL: models.String(image),
	}, nil
}
