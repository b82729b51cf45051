package extractor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/maltedev/vape-product-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProduct(t *testing.T, title string) models.ScrapedProduct {
	t.Helper()
	p, err := models.NewScrapedProduct(
		models.ListingCard{Title: title, Link: "https://vaperanger.com/" + title},
		models.DetailRecord{
			Description: models.String("By Geek Bar. 15000 puffs."),
			Variants: []models.Variant{
				models.NewFixedVariant(models.String("Blue Razz Ice"), nil, nil, nil),
				models.NewFixedVariant(models.String("Miami Mint"), nil, nil, nil),
			},
		},
	)
	require.NoError(t, err)
	return p
}

func TestParseStructuredResponse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
		err      error
	}{
		{
			name:     "clean object",
			raw:      `{"brand":"Geek Bar","puff_count":15000}`,
			expected: `{"brand":"Geek Bar","puff_count":15000}`,
		},
		{
			name:     "surrounded by prose",
			raw:      "Here is the JSON:\n{\"brand\": \"Acme\", \"flavors\": [\"Mint\"]}\nHope this helps!",
			expected: `{"brand":"Acme","flavors":["Mint"]}`,
		},
		{
			name:     "nested braces",
			raw:      `Sure. {"brand":"X","specs":{"coil":"mesh"}} done`,
			expected: `{"brand":"X","specs":{"coil":"mesh"}}`,
		},
		{
			name: "no braces",
			raw:  "I could not find any information.",
			err:  ErrNoJSONObject,
		},
		{
			name: "closing brace first",
			raw:  "} oops {",
			err:  ErrNoJSONObject,
		},
		{
			name: "two objects",
			raw:  `{"a":1} and {"b":2}`,
			err:  ErrMalformedJSON,
		},
		{
			name: "truncated",
			raw:  `{"brand": "Acme", "model_type": }`,
			err:  ErrMalformedJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := ParseStructuredResponse(tt.raw)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, 0, fields.Len())
				return
			}
			require.NoError(t, err)
			data, err := fields.MarshalJSON()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(data))
		})
	}
}

func TestExtractRendersPromptAndParsesAnswer(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "Title: Pulse") &&
			strings.Contains(prompt, "- Blue Razz Ice\n- Miami Mint") &&
			strings.Contains(prompt, "Description: By Geek Bar. 15000 puffs.")
	})).Return(`{"brand":"Geek Bar","flavors":["Blue Razz Ice","Miami Mint"],"puff_count":15000}`, nil)

	e := New(VapeRangerSchema(), completer, testLogger())
	fields := e.Extract(context.Background(), testProduct(t, "Pulse"))

	brand, ok := fields.GetString("brand")
	assert.True(t, ok)
	assert.Equal(t, "Geek Bar", brand)
	assert.Equal(t, []string{"brand", "flavors", "puff_count"}, fields.Keys())
	completer.AssertExpectations(t)
}

func TestExtractServiceErrorYieldsEmptyFields(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	fields := New(VapeRangerSchema(), completer, testLogger()).Extract(context.Background(), testProduct(t, "Pulse"))

	assert.Equal(t, 0, fields.Len())
}

func TestExtractMalformedAnswerYieldsEmptyFields(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything).Return("I'm sorry, I can't help with that.", nil)

	fields := New(VapeWholesaleSchema(), completer, testLogger()).Extract(context.Background(), testProduct(t, "Pulse"))

	assert.Equal(t, 0, fields.Len())
}

func TestExtractAllKeepsOrder(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool { return strings.Contains(p, "Title: First") })).
		Return(`{"model_type":"one"}`, nil)
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool { return strings.Contains(p, "Title: Second") })).
		Return(`garbage`, nil)
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool { return strings.Contains(p, "Title: Third") })).
		Return(`{"model_type":"three"}`, nil)

	e := New(VapeWholesaleSchema(), completer, testLogger())
	out, err := e.ExtractAll(context.Background(), []models.ScrapedProduct{
		testProduct(t, "First"),
		testProduct(t, "Second"),
		testProduct(t, "Third"),
	})

	require.NoError(t, err)
	require.Len(t, out, 3)
	first, _ := out[0].GetString("model_type")
	assert.Equal(t, "one", first)
	assert.Equal(t, 0, out[1].Len())
	third, _ := out[2].GetString("model_type")
	assert.Equal(t, "three", third)
}

func TestExtractAllStopsOnCancel(t *testing.T) {
	completer := new(MockCompleter)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(VapeRangerSchema(), completer, testLogger()).ExtractAll(ctx, []models.ScrapedProduct{testProduct(t, "Pulse")})

	assert.ErrorIs(t, err, context.Canceled)
	completer.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestSchemaMissingAndUnknown(t *testing.T) {
	fields, err := ParseStructuredResponse(`{"brand":"Acme","extra":"x","puff_count":null}`)
	require.NoError(t, err)

	schema := VapeWholesaleSchema()

	assert.Equal(t, []string{FieldModelType, FieldFlavor, FieldNicotineStrength, FieldBatteryCapacity, FieldCoilType}, schema.Missing(fields))
	assert.Equal(t, []string{"extra"}, schema.Unknown(fields))
}

func TestVariantSummary(t *testing.T) {
	p, err := models.NewScrapedProduct(models.ListingCard{Title: "X"}, models.DetailRecord{
		Variants: []models.Variant{
			{Columns: []models.Column{{Key: "color", Value: models.String("")}, {Key: "size", Value: models.String("Large")}}},
			models.NewFixedVariant(models.String("Mint"), nil, nil, nil),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "- Large\n- Mint", VariantSummary(p))

	broken := models.ScrapedProduct{VariantsJSON: "not json"}
	assert.Empty(t, VariantSummary(broken))
}
