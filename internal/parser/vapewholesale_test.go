package parser

import (
	"testing"

	"github.com/maltedev/vape-product-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vapeWholesaleListingHTML = `<html><body>
<ol class="products list items product-items">
	<li class="item product product-item">
		<div class="product-brand">Lost Mary</div>
		<a class="product-item-photo" href="/lost-mary-mo5000.html"><img class="product-image-photo" src="https://vapewholesaleusa.com/media/mo5000.jpg"></a>
		<a class="product-item-link" href="https://vapewholesaleusa.com/lost-mary-mo5000.html"> Lost Mary MO5000 </a>
		<span class="price">$89.99</span>
	</li>
	<li class="item product product-item">
		<img class="product-image-photo" src="https://vapewholesaleusa.com/media/missing.jpg">
		<span class="price">$10.00</span>
	</li>
	<li class="item product product-item">
		<img class="product-image-photo" src="/media/elf.jpg">
		<a class="product-item-link" href="/elf-bar-bc5000.html">Elf Bar BC5000</a>
	</li>
</ol>
</body></html>`

const vapeWholesaleDetailHTML = `<html><body>
<div class="product-info-stock-sku">
	<div class="stock available"><span>In stock</span></div>
</div>
<div class="product attribute description">
	<div class="value">Lost Mary MO5000 by Lost Mary.
		5% nicotine, 10ml pre-filled.</div>
</div>
<table id="product-options-wrapper">
	<thead><tr><th class="col item">Product Name</th><th class="col qty">Qty</th></tr></thead>
	<tbody>
		<tr>
			<td class="col item">Blue Razz Ice</td>
			<td class="col sku">LM-MO-BRI</td>
			<td class="col price">$89.99</td>
			<td class="col qty"><input value="0"></td>
		</tr>
		<tr>
			<td class="col item">Strawberry Mango</td>
			<td class="col price">$89.99</td>
			<td class="col qty">0</td>
		</tr>
	</tbody>
</table>
</body></html>`

func TestVapeWholesaleParseListing(t *testing.T) {
	listing := NewVapeWholesale().ParseListing(mustPage(t, vapeWholesaleListingHTML))

	require.Len(t, listing.Cards, 2)
	require.Len(t, listing.Failures, 1)
	assert.Equal(t, 1, listing.Failures[0].Index)

	first := listing.Cards[0]
	assert.Equal(t, "Lost Mary MO5000", first.Title)
	assert.Equal(t, "Lost Mary", models.Value(first.Brand))
	assert.Equal(t, "$89.99", models.Value(first.Price))

	second := listing.Cards[1]
	assert.Equal(t, "https://vapewholesaleusa.com/elf-bar-bc5000.html", second.Link)
	assert.Equal(t, "https://vapewholesaleusa.com/media/elf.jpg", models.Value(second.ImageURL))
	assert.Nil(t, second.Brand)
	assert.Nil(t, second.Price)
}

func TestVapeWholesaleParseDetail(t *testing.T) {
	detail := NewVapeWholesale().ParseDetail(mustPage(t, vapeWholesaleDetailHTML))

	assert.Equal(t, "Lost Mary MO5000 by Lost Mary. 5% nicotine, 10ml pre-filled.", models.Value(detail.Record.Description))
	assert.Equal(t, "container", detail.DescriptionSource)
	assert.Equal(t, "In stock", models.Value(detail.Record.StockStatus))

	require.Len(t, detail.Record.Variants, 2)
	first := detail.Record.Variants[0]
	assert.Equal(t, []string{"flavor", "sku", "price", "quantity"}, first.Keys())
	sku, _ := first.Get(models.VariantSKU)
	assert.Equal(t, "LM-MO-BRI", models.Value(sku))

	second := detail.Record.Variants[1]
	assert.Equal(t, []string{"flavor", "sku", "price", "quantity"}, second.Keys())
	sku, ok := second.Get(models.VariantSKU)
	assert.True(t, ok)
	assert.Nil(t, sku)
	qty, _ := second.Get(models.VariantQuantity)
	assert.Equal(t, "0", models.Value(qty))
}

func TestVapeWholesaleStockHasNoFallback(t *testing.T) {
	detail := NewVapeWholesale().ParseDetail(mustPage(t, `<html><body><p>Sold Out</p></body></html>`))

	assert.Nil(t, detail.Record.StockStatus)
	assert.Empty(t, detail.StockSource)
}

func TestVapeWholesaleProfile(t *testing.T) {
	adapter := NewVapeWholesale()
	profile := adapter.Profile()

	assert.Equal(t, 10, profile.MaxPages)
	assert.Equal(t, 110, profile.MaxItems)
	assert.Equal(t, "https://vapewholesaleusa.com/disposables?p=2", adapter.ListingURL(2))

	profile.Headers["Accept"] = "changed"
	assert.NotEqual(t, "changed", adapter.Profile().Headers["Accept"])
}
