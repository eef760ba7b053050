package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrandDataTextParts(t *testing.T) {
	b := BrandData{
		Name:     "Acme Studio",
		Tagline:  "Design that works",
		Story:    "Founded in a garage.",
		Industry: "Design",
		Keywords: []string{"branding", "logos"},
	}

	parts, err := b.TextParts()
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Studio", "Design that works", "Founded in a garage.", "Design", "branding", "logos"}, parts)
	assert.Equal(t, TypeBrand, b.Type())
}

func TestCVDataTextParts(t *testing.T) {
	cv := CVData{
		Headline: "Backend engineer",
		Summary:  "Ten years of distributed systems.",
		Skills:   []string{"Go", "Postgres"},
		Experience: []ExperienceEntry{
			{Role: "Engineer", Company: "Acme", Description: "Built the billing service."},
		},
	}

	parts, err := cv.TextParts()
	require.NoError(t, err)
	assert.Contains(t, parts, "Backend engineer")
	assert.Contains(t, parts, "Go")
	assert.Contains(t, parts, "Built the billing service.")
	assert.Equal(t, TypeCV, cv.Type())
}

func TestRawContentTextParts(t *testing.T) {
	t.Run("collects string leaves at any level", func(t *testing.T) {
		raw := RawContent{
			ContentType: TypeBrand,
			Bag: map[string]any{
				"name": "Acme",
				"nested": map[string]any{
					"tagline": "works",
					"count":   float64(3),
				},
				"tags": []any{"one", "two"},
			},
		}

		parts, err := raw.TextParts()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Acme", "works", "one", "two"}, parts)
	})

	t.Run("rejects pathological nesting", func(t *testing.T) {
		inner := map[string]any{}
		bag := map[string]any{"a": inner}
		cur := inner
		for i := 0; i < 20; i++ {
			next := map[string]any{}
			cur["child"] = next
			cur = next
		}
		cur["leaf"] = "deep"

		raw := RawContent{ContentType: TypeCV, Bag: bag}
		_, err := raw.TextParts()
		assert.Error(t, err)
	})
}

func TestTypeValid(t *testing.T) {
	assert.True(t, TypeBrand.Valid())
	assert.True(t, TypeCV.Valid())
	assert.False(t, Type("video").Valid())
}
