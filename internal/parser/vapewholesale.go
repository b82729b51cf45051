package parser

import (
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/vape-product-scraper/internal/extractor"
	"github.com/maltedev/vape-product-scraper/internal/models"
)

const (
	VapeWholesaleName    = "vapewholesale"
	vapeWholesaleBaseURL = "https://vapewholesaleusa.com/"
)

var vapeWholesaleDescription = []Strategy[string]{
	DescriptionFromText("div.product.attribute.description"),
	DescriptionFromJSONLD(),
}

// The stock element is authoritative on this shop; there is no page-wide
// fallback.
var vapeWholesaleStock = []Strategy[string]{
	StockFromElement("div.product-info-stock-sku div.stock"),
}

var vapeWholesaleCells = []Cell{
	{Key: models.VariantFlavor, Selector: "td.col.item"},
	{Key: models.VariantSKU, Selector: "td.col.sku"},
	{Key: models.VariantPrice, Selector: "td.col.price"},
	{Key: models.VariantQuantity, Selector: "td.col.qty"},
}

// NewVapeWholesale returns the adapter for vapewholesaleusa.com, a Magento
// shop with a fixed grouped-product option table.
func NewVapeWholesale() Adapter {
	return &site{
		name:           VapeWholesaleName,
		baseURL:        vapeWholesaleBaseURL,
		listingPattern: "https://vapewholesaleusa.com/disposables?p=%d",
		cardSelector:   "li.item.product.product-item",
		card:           parseVapeWholesaleCard,
		detail: detailRules{
			description: vapeWholesaleDescription,
			stock:       vapeWholesaleStock,
			variants:    FixedTableVariants("table#product-options-wrapper", "tr", vapeWholesaleCells),
		},
		schema: extractor.VapeWholesaleSchema(),
		profile: Profile{
			MaxItems:    110,
			MaxPages:    10,
			DetailDelay: 1500 * time.Millisecond,
			PageDelay:   2 * time.Second,
			Timeout:     15 * time.Second,
			Headers: map[string]string{
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
				"Accept-Language": "en-US,en;q=0.5",
			},
		},
	}
}

func parseVapeWholesaleCard(card *goquery.Selection, base string) (models.ListingCard, error) {
	link, err := requiredURL(card, "a.product-item-link", "href", base)
	if err != nil {
		return models.ListingCard{}, err
	}
	title, err := requiredText(card, "a.product-item-link")
	if err != nil {
		return models.ListingCard{}, err
	}
	image, err := requiredURL(card, "img.product-image-photo", "src", base)
	if err != nil {
		return models.ListingCard{}, err
	}

	return models.ListingCard{
		Brand:    optionalText(card, ".product-brand"),
		Title:    title,
		Price:    optionalText(card, "span.price"),
		Link:     link,
		ImageURL: models.String(image),
	}, nil
}
