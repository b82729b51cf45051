package extractor

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/maltedev/vape-product-scraper/internal/models"
)

// Structured field names returned by the completion service.
const (
	FieldBrand            = "brand"
	FieldModelType        = "model_type"
	FieldFlavor           = "flavor"
	FieldFlavors          = "flavors"
	FieldPuffCount        = "puff_count"
	FieldNicotineStrength = "nicotine_strength"
	FieldBatteryCapacity  = "battery_capacity"
	FieldCoilType         = "coil_type"
	FieldELiquidCapacity  = "e_liquid_capacity"
)

// Schema is the structured field set of one site and the prompt that asks
// for it.
type Schema struct {
	Site   string
	Fields []string
	Prompt *template.Template
}

// PromptData is what a prompt template may reference.
type PromptData struct {
	Title       string
	Brand       string
	Description string
	Price       string
	StockStatus string
	Variants    string
}

func (s Schema) Render(p models.ScrapedProduct) (string, error) {
	if s.Prompt == nil {
		return "", fmt.Errorf("schema %q has no prompt template", s.Site)
	}

	data := PromptData{
		Title:       p.Title,
		Brand:       models.Value(p.Brand),
		Description: models.Value(p.Description),
		Price:       models.Value(p.Price),
		StockStatus: models.Value(p.StockStatus),
		Variants:    VariantSummary(p),
	}

	var b strings.Builder
	if err := s.Prompt.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return b.String(), nil
}

// Missing lists declared fields the answer did not contain.
func (s Schema) Missing(f models.StructuredFields) []string {
	var missing []string
	for _, name := range s.Fields {
		if _, ok := f.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Unknown lists keys of the answer outside the declared field set. They are
// kept in the merge.
func (s Schema) Unknown(f models.StructuredFields) []string {
	declared := make(map[string]bool, len(s.Fields))
	for _, name := range s.Fields {
		declared[name] = true
	}
	var unknown []string
	for _, k := range f.Keys() {
		if !declared[k] {
			unknown = append(unknown, k)
		}
	}
	return unknown
}

// VariantSummary renders one "- <flavor>" line per variant. Variants without
// a flavor column use their first non-empty column.
func VariantSummary(p models.ScrapedProduct) string {
	variants, err := p.DecodedVariants()
	if err != nil {
		return ""
	}

	lines := make([]string, 0, len(variants))
	for _, v := range variants {
		label := ""
		if flavor, ok := v.Get(models.VariantFlavor); ok {
			label = models.Value(flavor)
		} else {
			for _, c := range v.Columns {
				if models.Value(c.Value) != "" {
					label = *c.Value
					break
				}
			}
		}
		lines = append(lines, "- "+label)
	}
	return strings.Join(lines, "\n")
}

var vapeRangerPrompt = template.Must(template.New("vaperanger").Parse(`
You are a product information extraction system for vape products. Analyze the product data below and extract:

{
  "brand": "Manufacturer name taken from the title or description",
  "model_type": "Specific model name or number",
  "flavors": ["every", "flavor", "mentioned"],
  "puff_count": integer,
  "nicotine_strength": "e.g. 5% or 50mg",
  "battery_capacity": "e.g. 1000mAh",
  "coil_type": "e.g. Dual Mesh",
  "e_liquid_capacity": "e.g. 15ml"
}

Rules:
1. Take the brand from phrases like "By [Brand]" or from the product naming pattern
2. Take model_type from specific model codes (e.g. NV30K) or descriptive names
3. List ALL flavors mentioned in the description and variants
4. Only include specifications that are explicitly mentioned
5. Use null for missing fields

Product Data:
Title: {{.Title}}
Description: {{.Description}}
Variants:
{{.Variants}}

Return ONLY the JSON object with no additional text.
`))

var vapeWholesalePrompt = template.Must(template.New("vapewholesale").Parse(`
You are a product information extraction system for vape products.
Extract the following fields from the product data below into JSON format:

{
  "brand": "The manufacturer brand name",
  "model_type": "Specific model name or number",
  "flavor": "Primary flavor or flavor family",
  "puff_count": integer,
  "nicotine_strength": "e.g. 5% or 50mg",
  "battery_capacity": "e.g. 1000mAh",
  "coil_type": "e.g. Dual Mesh"
}

Rules:
1. Take the brand from the product title or phrases like "By [Brand]"
2. model_type is the specific product identifier
3. When several flavors exist, choose the primary flavor or family
4. Only include specifications that are explicitly mentioned

Product Data:
Title: {{.Title}}
Description: {{.Description}}
Price: {{.Price}}
Stock: {{.StockStatus}}

Return ONLY the JSON object with no additional commentary.
`))

func VapeRangerSchema() Schema {
	return Schema{
		Site: "vaperanger",
		Fields: []string{
			FieldBrand,
			FieldModelType,
			FieldFlavors,
			FieldPuffCount,
			FieldNicotineStrength,
			FieldBatteryCapacity,
			FieldCoilType,
			FieldELiquidCapacity,
		},
		Prompt: vapeRangerPrompt,
	}
}

func VapeWholesaleSchema() Schema {
	return Schema{
		Site: "vapewholesale",
		Fields: []string{
			FieldBrand,
			FieldModelType,
			FieldFlavor,
			FieldPuffCount,
			FieldNicotineStrength,
			FieldBatteryCapacity,
			FieldCoilType,
		},
		Prompt: vapeWholesalePrompt,
	}
}
