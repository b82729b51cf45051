package parser

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy is one step of a fallback chain.
type Strategy[T any] struct {
	Name    string
	Resolve func(page *Page) (T, bool)
}

// Resolve tries each strategy in order and returns the first value found
// together with the name of the strategy that produced it.
func Resolve[T any](page *Page, strategies []Strategy[T]) (T, string, bool) {
	for _, s := range strategies {
		if v, ok := s.Resolve(page); ok {
			return v, s.Name, true
		}
	}
	var zero T
	return zero, "", false
}

// DescriptionFromParagraphs joins the paragraphs of the first div whose class
// attribute contains marker.
func DescriptionFromParagraphs(marker string) Strategy[string] {
	return Strategy[string]{
		Name: "paragraphs",
		Resolve: func(page *Page) (string, bool) {
			container := page.Doc.Find("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
				class, _ := s.Attr("class")
				return strings.Contains(class, marker)
			}).First()
			if container.Length() == 0 {
				return "", false
			}

			var parts []string
			container.Find("p").Each(func(_ int, p *goquery.Selection) {
				if text := cleanText(p); text != "" {
					parts = append(parts, text)
				}
			})

			description := strings.TrimSpace(strings.Join(parts, " "))
			return description, description != ""
		},
	}
}

// DescriptionFromText takes the whole text of the first element matching
// selector.
func DescriptionFromText(selector string) Strategy[string] {
	return Strategy[string]{
		Name: "container",
		Resolve: func(page *Page) (string, bool) {
			description := cleanText(page.Doc.Find(selector).First())
			return description, description != ""
		},
	}
}

// DescriptionFromJSONLD scans application/ld+json blocks for a Product with
// a non-empty description. Blocks that do not decode are skipped.
func DescriptionFromJSONLD() Strategy[string] {
	return Strategy[string]{
		Name: "json-ld",
		Resolve: func(page *Page) (string, bool) {
			var description string
			page.Doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				var data any
				if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
					return true
				}
				for _, obj := range ldObjects(data) {
					if !isProduct(obj["@type"]) {
						continue
					}
					if d, ok := obj["description"].(string); ok && strings.TrimSpace(d) != "" {
						description = strings.TrimSpace(d)
						return false
					}
				}
				return true
			})
			return description, description != ""
		},
	}
}

func ldObjects(data any) []map[string]any {
	var out []map[string]any
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			out = append(out, ldObjects(item)...)
		}
	case map[string]any:
		out = append(out, v)
		if graph, ok := v["@graph"]; ok {
			out = append(out, ldObjects(graph)...)
		}
	}
	return out
}

func isProduct(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "Product"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

// StockFromLabeledCell reads the cell next to a td whose text equals label.
// An existing sibling cell resolves even when it is blank.
func StockFromLabeledCell(label string) Strategy[string] {
	return Strategy[string]{
		Name: "labeled-cell",
		Resolve: func(page *Page) (string, bool) {
			cell := page.Doc.Find("td").FilterFunction(func(_ int, s *goquery.Selection) bool {
				return strings.TrimSpace(s.Text()) == label
			}).First()
			sibling := cell.NextAllFiltered("td").First()
			if sibling.Length() == 0 {
				return "", false
			}
			return cleanText(sibling), true
		},
	}
}

// StockFromMarker searches the raw page for marker. It always resolves.
func StockFromMarker(marker, found, otherwise string) Strategy[string] {
	return Strategy[string]{
		Name: "page-marker",
		Resolve: func(page *Page) (string, bool) {
			if strings.Contains(page.Raw, marker) {
				return found, true
			}
			return otherwise, true
		},
	}
}

// StockFromElement reads a dedicated stock element.
func StockFromElement(selector string) Strategy[string] {
	return Strategy[string]{
		Name: "stock-element",
		Resolve: func(page *Page) (string, bool) {
			value := cleanText(page.Doc.Find(selector).First())
			return value, value != ""
		},
	}
}
