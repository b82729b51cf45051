package extractor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maltedev/vape-product-scraper/internal/models"
)

var (
	ErrNoJSONObject  = errors.New("no JSON object in response")
	ErrMalformedJSON = errors.New("malformed JSON object in response")
)

// ParseStructuredResponse carves the span from the first '{' to the last '}'
// out of a completion and decodes it as one JSON object. Anything short of a
// clean decode is an error; there is no partial recovery.
func ParseStructuredResponse(raw string) (models.StructuredFields, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < 0 || end < start {
		return models.Fields{}, ErrNoJSONObject
	}

	var fields models.Fields
	if err := fields.UnmarshalJSON([]byte(raw[start : end+1])); err != nil {
		return models.Fields{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return fields, nil
}
