package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/vape-product-scraper/internal/models"
)

// DetailPage is a parsed detail page plus what the caller needs to report
// data-quality problems.
type DetailPage struct {
	Record            models.DetailRecord
	DescriptionSource string
	StockSource       string
	TableFound        bool
}

// MissingDescription reports that every description strategy failed.
func (d DetailPage) MissingDescription() bool {
	return d.Record.Description == nil
}

// EmptyTable reports a variant table that is present but yielded no rows.
func (d DetailPage) EmptyTable() bool {
	return d.TableFound && len(d.Record.Variants) == 0
}

// VariantTable is the outcome of reading a page's variant table.
type VariantTable struct {
	Found    bool
	Variants []models.Variant
}

type VariantReader func(page *Page) VariantTable

type detailRules struct {
	description []Strategy[string]
	stock       []Strategy[string]
	variants    VariantReader
}

func (r detailRules) parse(page *Page) DetailPage {
	out := DetailPage{Record: models.EmptyDetail()}

	if description, source, ok := Resolve(page, r.description); ok {
		out.Record.Description = models.String(description)
		out.DescriptionSource = source
	}

	if stock, source, ok := Resolve(page, r.stock); ok {
		out.Record.StockStatus = models.String(stock)
		out.StockSource = source
	}

	if r.variants != nil {
		table := r.variants(page)
		out.TableFound = table.Found
		if table.Variants != nil {
			out.Record.Variants = table.Variants
		}
	}

	return out
}

// NormalizeHeader turns a column header into a variant key.
func NormalizeHeader(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

// HeaderTableVariants reads a table whose schema is given by its header row.
// Each body row is zipped against the header keys.
func HeaderTableVariants(tableSelector string) VariantReader {
	return func(page *Page) VariantTable {
		table := page.Doc.Find(tableSelector).First()
		if table.Length() == 0 {
			return VariantTable{Variants: make([]models.Variant, 0)}
		}

		var headers []string
		table.Find("thead th").Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, NormalizeHeader(cleanText(th)))
		})

		variants := make([]models.Variant, 0)
		table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
			var v models.Variant
			tr.Find("td").Each(func(i int, td *goquery.Selection) {
				if i >= len(headers) {
					return
				}
				v.Set(headers[i], models.String(cleanText(td)))
			})
			if v.Columns == nil {
				v.Columns = make([]models.Column, 0)
			}
			variants = append(variants, v)
		})

		return VariantTable{Found: true, Variants: variants}
	}
}

// Cell maps one variant column to a selector relative to its row.
type Cell struct {
	Key      string
	Selector string
}

// FixedTableVariants reads rows with a known cell layout. A cell whose
// selector matches nothing becomes null; the row is still kept. Rows without
// any td are header rows and are skipped.
func FixedTableVariants(tableSelector, rowSelector string, cells []Cell) VariantReader {
	return func(page *Page) VariantTable {
		table := page.Doc.Find(tableSelector).First()
		if table.Length() == 0 {
			return VariantTable{Variants: make([]models.Variant, 0)}
		}

		variants := make([]models.Variant, 0)
		table.Find(rowSelector).Each(func(_ int, row *goquery.Selection) {
			if row.Find("td").Length() == 0 {
				return
			}
			v := models.Variant{Columns: make([]models.Column, 0, len(cells))}
			for _, c := range cells {
				sel := row.Find(c.Selector).First()
				if sel.Length() == 0 {
					v.Set(c.Key, nil)
					continue
				}
				v.Set(c.Key, models.String(cleanText(sel)))
			}
			variants = append(variants, v)
		})

		return VariantTable{Found: true, Variants: variants}
	}
}
