package meme

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redditmod/modbot/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

type site int

const (
	siteUnknown site = iota
	siteQuickmeme
	siteMemegenerator
	siteTrollme
)

var (
	qkmeImage         = regexp.MustCompile(`.+/(.+?)\.jpg$`)
	memegenInstance   = regexp.MustCompile(`/instance/(\d+)$`)
	memegenImage      = regexp.MustCompile(`(\d+)\.jpg$`)
	memegenRank       = regexp.MustCompile(`#\d+ (.+)$`)
	trollmeTitleParts = regexp.MustCompile(`^.+?\| (.+?) \|.+?$`)
)

// Resolver looks up the meme template name of linked images
type Resolver struct {
	client *resty.Client
	cache  *expirable.LRU[string, string]
}

// NewResolver creates a resolver whose results are cached for ttl
func NewResolver(ttl time.Duration) *Resolver {
	return &Resolver{
		client: resty.New().
			SetTimeout(15*time.Second).
			SetHeader("User-Agent", "modbot/1.0"),
		cache: expirable.NewLRU[string, string](1024, nil, ttl),
	}
}

// MemeName returns the meme name for the item's link, or "" when the domain
// is not a known meme site or the page cannot be read
func (r *Resolver) MemeName(ctx context.Context, item *models.Item) (string, error) {
	page, s := pageURL(item.Domain, item.URL)
	if s == siteUnknown {
		return "", nil
	}

	if name, ok := r.cache.Get(page); ok {
		return name, nil
	}

	name, err := r.fetch(ctx, page, s)
	if err != nil {
		logrus.Debugf("Meme lookup for %s failed: %v", page, err)
		return "", nil
	}

	r.cache.Add(page, name)
	return name, nil
}

func (r *Resolver) fetch(ctx context.Context, page string, s site) (string, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		Get(page)
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("meme page returned status %d", resp.StatusCode())
	}

	doc, err := html.Parse(strings.NewReader(string(resp.Body())))
	if err != nil {
		return "", fmt.Errorf("failed to parse meme page: %w", err)
	}

	return extractName(doc, s), nil
}

// pageURL derives the page holding the meme name from an item's link
func pageURL(domain, link string) (string, site) {
	domain = strings.ToLower(domain)

	switch {
	case domain == "quickmeme.com" || domain == "qkme.me":
		return link, siteQuickmeme
	case strings.HasSuffix(domain, ".qkme.me"):
		m := qkmeImage.FindStringSubmatch(link)
		if m == nil {
			return "", siteUnknown
		}
		return "http://qkme.me/" + m[1], siteQuickmeme
	case strings.HasSuffix(domain, "memegenerator.net"):
		for _, re := range []*regexp.Regexp{memegenInstance, memegenImage} {
			if m := re.FindStringSubmatch(link); m != nil {
				return "http://memegenerator.net/instance/" + m[1], siteMemegenerator
			}
		}
		return "", siteUnknown
	case domain == "troll.me":
		return link, siteTrollme
	}

	return "", siteUnknown
}

func extractName(doc *html.Node, s site) string {
	switch s {
	case siteQuickmeme:
		if n := findNode(doc, func(n *html.Node) bool { return attr(n, "id") == "meme_name" }); n != nil {
			return textContent(n)
		}
	case siteMemegenerator:
		if n := findNode(doc, func(n *html.Node) bool { return hasClass(n, "rank") }); n != nil {
			if m := memegenRank.FindStringSubmatch(textContent(n)); m != nil {
				return m[1]
			}
		}
	case siteTrollme:
		if n := findNode(doc, func(n *html.Node) bool { return n.Data == "title" }); n != nil {
			if m := trollmeTitleParts.FindStringSubmatch(textContent(n)); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text.WriteString(textContent(c))
	}
	return strings.TrimSpace(text.String())
}
