package collect

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/TobiSchelling/linkscope/internal/fetch"
)

// FeedCollector lists published pages from the site's RSS/Atom feed, walking
// WordPress-style pagination (?paged=N) until a page yields nothing new.
type FeedCollector struct {
	feedURL  string
	maxPages int
	fetcher  *fetch.Fetcher
	parser   *gofeed.Parser
}

// NewFeedCollector creates a collector for feedURL.
func NewFeedCollector(feedURL string, maxPages int, fetcher *fetch.Fetcher) *FeedCollector {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &FeedCollector{
		feedURL:  feedURL,
		maxPages: maxPages,
		fetcher:  fetcher,
		parser:   gofeed.NewParser(),
	}
}

// ListPublishedPages collects every feed item as a Page. Items whose feed entry
// carries no full content are fetched individually.
func (c *FeedCollector) ListPublishedPages(ctx context.Context, siteRoot string) ([]Page, error) {
	feedURL := c.feedURL
	if feedURL == "" {
		feedURL = strings.TrimRight(siteRoot, "/") + "/feed"
	}

	seen := make(map[string]struct{})
	var pages []Page

	for n := 1; n <= c.maxPages; n++ {
		pageURL, err := pagedURL(feedURL, n)
		if err != nil {
			return nil, err
		}

		feed, err := c.parser.ParseURLWithContext(pageURL, ctx)
		if err != nil {
			if n == 1 {
				return nil, fmt.Errorf("parsing feed %s: %w", pageURL, err)
			}
			// Past the last page WordPress answers 404.
			break
		}

		added := 0
		for _, item := range feed.Items {
			p := parseItem(item)
			if p == nil {
				continue
			}
			if _, ok := seen[p.URL]; ok {
				continue
			}
			seen[p.URL] = struct{}{}

			if p.Body == "" && c.fetcher != nil {
				body, err := c.fetcher.FetchHTML(ctx, p.URL)
				if err != nil {
					zap.L().Warn("skipping page without content", zap.String("url", p.URL), zap.Error(err))
					continue
				}
				p.Body = body
			}
			pages = append(pages, *p)
			added++
		}

		zap.L().Info("parsed feed page", zap.String("url", pageURL), zap.Int("new_pages", added))
		if added == 0 {
			break
		}
	}

	return pages, nil
}

// GetPageBody fetches the live HTML of one page.
func (c *FeedCollector) GetPageBody(ctx context.Context, pageURL string) (string, error) {
	if c.fetcher == nil {
		return "", fmt.Errorf("no fetcher configured")
	}
	return c.fetcher.FetchHTML(ctx, pageURL)
}

func pagedURL(feedURL string, n int) (string, error) {
	if n == 1 {
		return feedURL, nil
	}
	u, err := url.Parse(feedURL)
	if err != nil {
		return "", fmt.Errorf("invalid feed url %q: %w", feedURL, err)
	}
	q := u.Query()
	q.Set("paged", fmt.Sprintf("%d", n))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseItem(item *gofeed.Item) *Page {
	itemURL := strings.TrimSpace(item.Link)
	if itemURL == "" {
		itemURL = strings.TrimSpace(item.GUID)
	}
	if itemURL == "" || !strings.HasPrefix(itemURL, "http") {
		return nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = itemURL
	}

	return &Page{
		URL:   itemURL,
		Title: title,
		Body:  item.Content,
	}
}
