package conditions

import (
	"context"
	"fmt"

	"github.com/redditmod/modbot/internal/models"
)

type extractFunc func(ctx context.Context, item *models.Item) (string, error)

// Extractor maps attribute keys to the item value a pattern is tested against
type Extractor struct {
	table map[models.Attribute]extractFunc
}

// NewExtractor builds the extractor table. A nil meme lookup makes meme_name
// always extract the empty string.
func NewExtractor(memes MemeLookup) *Extractor {
	field := func(get func(*models.Item) string) extractFunc {
		return func(_ context.Context, item *models.Item) (string, error) {
			return get(item), nil
		}
	}
	oembed := func(get func(*models.Oembed) string) extractFunc {
		return func(_ context.Context, item *models.Item) (string, error) {
			if item.Oembed == nil {
				return "", nil
			}
			return get(item.Oembed), nil
		}
	}

	return &Extractor{table: map[models.Attribute]extractFunc{
		models.AttributeUser: field(func(i *models.Item) string {
			if i.AuthorDeleted() {
				return models.DeletedUser
			}
			return i.Author
		}),
		models.AttributeTitle:  field(func(i *models.Item) string { return i.Title }),
		models.AttributeDomain: field(func(i *models.Item) string { return i.Domain }),
		models.AttributeURL:    field(func(i *models.Item) string { return i.URL }),
		models.AttributeBody: field(func(i *models.Item) string {
			if i.Kind == models.SubjectComment {
				return i.Body
			}
			return i.Selftext
		}),
		models.AttributeMediaUser:        oembed(func(o *models.Oembed) string { return o.AuthorName }),
		models.AttributeMediaTitle:       oembed(func(o *models.Oembed) string { return o.Title }),
		models.AttributeMediaDescription: oembed(func(o *models.Oembed) string { return o.Description }),
		models.AttributeAuthorFlairText: field(func(i *models.Item) string {
			return i.AuthorFlairText
		}),
		models.AttributeAuthorFlairCSSClass: field(func(i *models.Item) string {
			return i.AuthorFlairCSSClass
		}),
		models.AttributeMemeName: func(ctx context.Context, item *models.Item) (string, error) {
			if memes == nil {
				return "", nil
			}
			return memes.MemeName(ctx, item)
		},
	}}
}

// Supports reports whether the attribute has an extractor
func (x *Extractor) Supports(attr models.Attribute) bool {
	_, ok := x.table[attr]
	return ok
}

// Extract returns the test string for attr, never failing on missing fields
func (x *Extractor) Extract(ctx context.Context, attr models.Attribute, item *models.Item) (string, error) {
	fn, ok := x.table[attr]
	if !ok {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownAttribute, attr)
	}
	return fn(ctx, item)
}
