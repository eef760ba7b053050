// Package content defines the content types flowing through the risk
// pipeline. Each content type knows how to surface its own text for
// analysis; free-form data from older records goes through RawContent.
package content

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Type discriminates the supported content variants.
type Type string

const (
	TypeBrand Type = "brand"
	TypeCV    Type = "cv"
)

// Valid reports whether t is a known content type.
func (t Type) Valid() bool {
	return t == TypeBrand || t == TypeCV
}

// Data is the typed union of analyzable content. TextParts returns every
// textual field of the variant, in declaration order, so the analyzer can
// flatten them into one corpus.
type Data interface {
	Type() Type
	TextParts() ([]string, error)
}

// BrandData is the brand-record variant.
type BrandData struct {
	Name     string
	Tagline  string
	Story    string
	Industry string
	Keywords []string
}

func (b BrandData) Type() Type { return TypeBrand }

func (b BrandData) TextParts() ([]string, error) {
	parts := []string{b.Name, b.Tagline, b.Story, b.Industry}
	parts = append(parts, b.Keywords...)
	return parts, nil
}

// ExperienceEntry is one position on a CV.
type ExperienceEntry struct {
	Role        string
	Company     string
	Description string
}

// CVData is the CV-record variant.
type CVData struct {
	Headline   string
	Summary    string
	Skills     []string
	Experience []ExperienceEntry
}

func (c CVData) Type() Type { return TypeCV }

func (c CVData) TextParts() ([]string, error) {
	parts := []string{c.Headline, c.Summary}
	parts = append(parts, c.Skills...)
	for _, e := range c.Experience {
		parts = append(parts, e.Role, e.Company, e.Description)
	}
	return parts, nil
}

// maxBagDepth bounds traversal of free-form bags so a self-referential or
// pathologically nested value cannot hang the analyzer.
const maxBagDepth = 8

// RawContent carries a free-form key/value bag for records created before
// the typed variants existed. Traversal collects every string leaf.
type RawContent struct {
	ContentType Type
	Bag         map[string]any
}

func (r RawContent) Type() Type { return r.ContentType }

func (r RawContent) TextParts() ([]string, error) {
	var parts []string
	var walk func(v any, depth int) error
	walk = func(v any, depth int) error {
		if depth > maxBagDepth {
			return fmt.Errorf("content bag exceeds max depth %d", maxBagDepth)
		}
		switch val := v.(type) {
		case string:
			parts = append(parts, val)
		case map[string]any:
			// Sorted keys keep extraction deterministic for identical input.
			keys := make([]string, 0, len(val))
			for k := range val {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if err := walk(val[k], depth+1); err != nil {
					return err
				}
			}
		case []any:
			for _, child := range val {
				if err := walk(child, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(r.Bag, 0); err != nil {
		return nil, err
	}
	return parts, nil
}

// UserHistory is a snapshot of a user's moderation history, fetched from the
// external store before analysis.
type UserHistory struct {
	PreviousFlags  int
	AccountAgeDays int
	ContentCount   int
}

// AnalysisInput is the immutable input to one analysis call.
type AnalysisInput struct {
	Title       string
	Description string
	Data        Data
	UserID      string
	History     *UserHistory
}

// Record is an opaque content record as returned by the content store.
type Record struct {
	ID          string         `json:"id"`
	ContentType Type           `json:"content_type"`
	UserID      string         `json:"user_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Fields      map[string]any `json:"fields,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store is the opaque content fetch interface. The pipeline treats it as an
// eventually consistent key/value lookup owned by another service.
type Store interface {
	GetContent(ctx context.Context, contentType Type, id string) (*Record, error)
	ListContentByUser(ctx context.Context, userID string) ([]Record, error)
}
