package collect

import (
	"context"
	"fmt"
	"sort"
)

// Page is one published document of the analyzed site.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Collector lists published documents and fetches single document bodies.
type Collector interface {
	ListPublishedPages(ctx context.Context, siteRoot string) ([]Page, error)
	GetPageBody(ctx context.Context, pageURL string) (string, error)
}

// Static is an in-memory Collector, keyed by page URL.
type Static struct {
	pages map[string]Page
}

// NewStatic creates a Static collector over the given pages.
func NewStatic(pages []Page) *Static {
	s := &Static{pages: make(map[string]Page, len(pages))}
	for _, p := range pages {
		s.pages[p.URL] = p
	}
	return s
}

// ListPublishedPages returns every page ordered by URL.
func (s *Static) ListPublishedPages(_ context.Context, _ string) ([]Page, error) {
	out := make([]Page, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

// GetPageBody returns the stored body for pageURL.
func (s *Static) GetPageBody(_ context.Context, pageURL string) (string, error) {
	p, ok := s.pages[pageURL]
	if !ok {
		return "", fmt.Errorf("page not found: %s", pageURL)
	}
	return p.Body, nil
}
