package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redditmod/modbot/internal/models"
)

// maxPageSize is the largest page the listing endpoints return
const maxPageSize = 100

// Iterator yields items lazily, returning models.ErrEndOfStream when done
type Iterator[T any] interface {
	Next(ctx context.Context) (T, error)
}

type listingResponse struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string `json:"kind"`
			Data thing  `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type thing struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Author              string          `json:"author"`
	Subreddit           string          `json:"subreddit"`
	Title               string          `json:"title"`
	URL                 string          `json:"url"`
	Domain              string          `json:"domain"`
	Selftext            string          `json:"selftext"`
	Body                string          `json:"body"`
	Permalink           string          `json:"permalink"`
	LinkID              string          `json:"link_id"`
	AuthorFlairText     *string         `json:"author_flair_text"`
	AuthorFlairCSSClass *string         `json:"author_flair_css_class"`
	CreatedUTC          float64         `json:"created_utc"`
	Media               *media          `json:"media"`
	NumReports          *int            `json:"num_reports"`
	ApprovedBy          *string         `json:"approved_by"`
	Dest                string          `json:"dest"`
	Replies             json.RawMessage `json:"replies"`
}

type media struct {
	Oembed *models.Oembed `json:"oembed"`
}

func (t *thing) created() time.Time {
	return time.Unix(int64(t.CreatedUTC), 0).UTC()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Listing pages through a Reddit listing endpoint using the after cursor
type Listing[T any] struct {
	client  *Client
	path    string
	limit   int
	convert func(kind string, t *thing) (T, bool)

	buf     []T
	after   string
	fetched int
	done    bool
}

var _ Iterator[*models.Item] = (*Listing[*models.Item])(nil)

func newListing[T any](c *Client, path string, limit int, convert func(string, *thing) (T, bool)) *Listing[T] {
	return &Listing[T]{client: c, path: path, limit: limit, convert: convert}
}

// Next returns the next entry, fetching another page when the buffer is empty
func (l *Listing[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for len(l.buf) == 0 {
		if l.done {
			return zero, models.ErrEndOfStream
		}
		if err := l.fill(ctx); err != nil {
			return zero, err
		}
	}

	next := l.buf[0]
	l.buf = l.buf[1:]
	return next, nil
}

func (l *Listing[T]) fill(ctx context.Context) error {
	size := maxPageSize
	if remaining := l.limit - l.fetched; remaining < size {
		size = remaining
	}
	if size <= 0 {
		l.done = true
		return nil
	}

	query := map[string]string{
		"limit":    strconv.Itoa(size),
		"raw_json": "1",
	}
	if l.after != "" {
		query["after"] = l.after
	}

	var resp listingResponse
	if err := l.client.get(ctx, l.path, query, &resp); err != nil {
		return fmt.Errorf("failed to fetch listing %s: %w", l.path, err)
	}

	for i := range resp.Data.Children {
		child := &resp.Data.Children[i]
		if v, ok := l.convert(child.Kind, &child.Data); ok {
			l.buf = append(l.buf, v)
		}
	}

	l.fetched += len(resp.Data.Children)
	l.after = resp.Data.After
	if l.after == "" || len(resp.Data.Children) == 0 || l.fetched >= l.limit {
		l.done = true
	}
	return nil
}

func toItem(kind string, t *thing) (*models.Item, bool) {
	item := &models.Item{
		ID:                  t.ID,
		CreatedAt:           t.created(),
		Author:              t.Author,
		Subreddit:           t.Subreddit,
		Permalink:           absolutePermalink(t.Permalink),
		AuthorFlairText:     deref(t.AuthorFlairText),
		AuthorFlairCSSClass: deref(t.AuthorFlairCSSClass),
	}

	switch kind {
	case "t3":
		item.Kind = models.SubjectSubmission
		item.Title = t.Title
		item.URL = t.URL
		item.Domain = t.Domain
		item.Selftext = t.Selftext
		if t.Media != nil {
			item.Oembed = t.Media.Oembed
		}
	case "t1":
		item.Kind = models.SubjectComment
		item.Body = t.Body
		item.LinkID = t.LinkID
	default:
		return nil, false
	}

	return item, true
}

func toModmail(kind string, t *thing) (*models.ModmailMessage, bool) {
	if kind != "t4" {
		return nil, false
	}
	return &models.ModmailMessage{
		Fullname:   t.Name,
		Author:     t.Author,
		Dest:       t.Dest,
		CreatedAt:  t.created(),
		HasReplies: hasReplies(t.Replies),
	}, true
}

// hasReplies treats the empty string Reddit sends for no replies as false
func hasReplies(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s != ""
	}
	return string(raw) != "null"
}
