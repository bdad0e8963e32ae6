package meme

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redditmod/modbot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestPageURL(t *testing.T) {
	tests := []struct {
		name     string
		domain   string
		link     string
		expected string
		site     site
	}{
		{name: "quickmeme page", domain: "quickmeme.com", link: "http://www.quickmeme.com/meme/3abc", expected: "http://www.quickmeme.com/meme/3abc", site: siteQuickmeme},
		{name: "qkme short link", domain: "qkme.me", link: "http://qkme.me/3abc", expected: "http://qkme.me/3abc", site: siteQuickmeme},
		{name: "qkme image", domain: "i.qkme.me", link: "http://i.qkme.me/3abc.jpg", expected: "http://qkme.me/3abc", site: siteQuickmeme},
		{name: "qkme image without jpg", domain: "i.qkme.me", link: "http://i.qkme.me/3abc.png", site: siteUnknown},
		{name: "memegenerator instance", domain: "memegenerator.net", link: "http://memegenerator.net/instance/12345", expected: "http://memegenerator.net/instance/12345", site: siteMemegenerator},
		{name: "memegenerator image", domain: "cdn.memegenerator.net", link: "http://cdn.memegenerator.net/instances/400x/12345.jpg", expected: "http://memegenerator.net/instance/12345", site: siteMemegenerator},
		{name: "troll.me", domain: "troll.me", link: "http://troll.me/image/abc", expected: "http://troll.me/image/abc", site: siteTrollme},
		{name: "unrelated domain", domain: "imgur.com", link: "http://imgur.com/abc.jpg", site: siteUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, s := pageURL(tt.domain, tt.link)
			assert.Equal(t, tt.site, s)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExtractName(t *testing.T) {
	tests := []struct {
		name     string
		page     string
		site     site
		expected string
	}{
		{
			name:     "quickmeme",
			page:     `<html><body><h1 id="meme_name"> Scumbag Steve </h1></body></html>`,
			site:     siteQuickmeme,
			expected: "Scumbag Steve",
		},
		{
			name:     "memegenerator",
			page:     `<html><body><div class="stats rank">#12 Success Kid</div></body></html>`,
			site:     siteMemegenerator,
			expected: "Success Kid",
		},
		{
			name:     "troll.me",
			page:     `<html><head><title>Troll.me | Y U NO | Funny</title></head></html>`,
			site:     siteTrollme,
			expected: "Y U NO",
		},
		{
			name: "missing element",
			page: `<html><body><p>nothing</p></body></html>`,
			site: siteQuickmeme,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := html.Parse(strings.NewReader(tt.page))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, extractName(doc, tt.site))
		})
	}
}

func TestResolver_MemeName(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `<html><body><span id="meme_name">Good Guy Greg</span></body></html>`)
	}))
	defer server.Close()

	r := NewResolver(time.Minute)
	ctx := context.Background()

	item := &models.Item{Domain: "qkme.me", URL: server.URL + "/3abc"}
	name, err := r.MemeName(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, "Good Guy Greg", name)

	name, err = r.MemeName(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, "Good Guy Greg", name)
	assert.Equal(t, 1, hits)

	name, err = r.MemeName(ctx, &models.Item{Domain: "qkme.me", URL: server.URL + "/missing"})
	require.NoError(t, err)
	assert.Empty(t, name)

	name, err = r.MemeName(ctx, &models.Item{Domain: "imgur.com", URL: server.URL + "/3abc"})
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Equal(t, 2, hits)
}
