// Package pipeline orchestrates link-graph analysis and the multi-phase
// text-generation workflow built on top of it.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/TobiSchelling/linkscope/internal/authority"
	"github.com/TobiSchelling/linkscope/internal/collect"
	"github.com/TobiSchelling/linkscope/internal/config"
	"github.com/TobiSchelling/linkscope/internal/fetch"
	"github.com/TobiSchelling/linkscope/internal/keywords"
	"github.com/TobiSchelling/linkscope/internal/linkgraph"
	"github.com/TobiSchelling/linkscope/internal/llm"
	"github.com/TobiSchelling/linkscope/internal/opportunity"
	"github.com/TobiSchelling/linkscope/internal/retry"
)

const excerptChars = 280

// Pipeline runs analyses against one text-generation provider.
type Pipeline struct {
	gen       *Generator
	collector collect.Collector
	keywords  *keywords.Client
	now       func() time.Time
}

// New creates a pipeline. collector may be nil when every request supplies
// its own pages; kw may be nil to skip keyword enrichment.
func New(gen *Generator, collector collect.Collector, kw *keywords.Client) *Pipeline {
	return &Pipeline{
		gen:       gen,
		collector: collector,
		keywords:  kw,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// FromConfig wires a pipeline from configuration: a feed collector over a
// rate-limited fetcher, the configured provider and optional keyword metrics.
func FromConfig(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	provider := llm.CreateProvider(ctx, cfg.Generation)
	if provider == nil {
		return nil, eris.New("no text-generation provider available; set an API key or start Ollama")
	}

	fetcher := fetch.New(fetch.Options{
		Timeout:   cfg.Site.FetchTimeout,
		UserAgent: cfg.Site.UserAgent,
		RPS:       cfg.Site.FetchRPS,
	})

	var collector collect.Collector
	if feed := cfg.Site.FeedLocation(); feed != "" {
		collector = collect.NewFeedCollector(feed, cfg.Site.MaxFeedPages, fetcher)
	}

	gen := NewGenerator(provider, retry.Options{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxJitter:    cfg.Retry.MaxJitter,
	}, cfg.Generation.RateLimitRPS)

	return New(gen, collector, keywords.New(cfg.Keywords)), nil
}

func validateSiteURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &InputError{Field: "siteUrl", Problem: "is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &InputError{Field: "siteUrl", Problem: fmt.Sprintf("%q is not an absolute http(s) URL", raw)}
	}
	return nil
}

// loadPages returns the supplied pages or collects them from the site.
func (p *Pipeline) loadPages(ctx context.Context, siteURL string, supplied []collect.Page) ([]collect.Page, error) {
	pages := supplied
	if len(pages) == 0 {
		if p.collector == nil {
			return nil, &InputError{Field: "pages", Problem: "no pages supplied and no content collector configured"}
		}
		var err error
		pages, err = p.collector.ListPublishedPages(ctx, siteURL)
		if err != nil {
			return nil, eris.Wrap(err, "listing published pages")
		}
	}
	if len(pages) == 0 {
		return nil, eris.Errorf("no published pages found for %s", siteURL)
	}
	return pages, nil
}

// graph is the locally computed view of a site.
type graph struct {
	pages     []collect.Page
	adj       linkgraph.AdjacencyMap
	inbound   map[string][]string
	scores    []authority.Score
	byURL     map[string]float64
	crawled   map[string]bool
	titles    map[string]string
	bodyByURL map[string]string
}

func buildGraph(pages []collect.Page, siteURL string) (*graph, error) {
	adj, err := linkgraph.Build(pages, siteURL)
	if err != nil {
		return nil, err
	}
	scores := authority.Compute(pages, adj)
	g := &graph{
		pages:     pages,
		adj:       adj,
		inbound:   adj.Inbound(),
		scores:    scores,
		byURL:     authority.Lookup(scores),
		crawled:   make(map[string]bool, len(pages)),
		titles:    authority.Titles(scores),
		bodyByURL: make(map[string]string, len(pages)),
	}
	for _, pg := range pages {
		u := linkgraph.Normalize(pg.URL)
		g.crawled[u] = true
		g.bodyByURL[u] = pg.Body
	}
	return g, nil
}

func (g *graph) title(u string) string {
	if t := g.titles[u]; t != "" {
		return t
	}
	return u
}

func (g *graph) urls() []string {
	out := make([]string, 0, len(g.crawled))
	for u := range g.crawled {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func excerpt(body, pageURL string) string {
	text := fetch.ExtractText(body, pageURL)
	if len(text) > excerptChars {
		text = text[:excerptChars] + "..."
	}
	return text
}

func formatPageList(g *graph, withExcerpt bool) string {
	var b strings.Builder
	for _, u := range g.urls() {
		fmt.Fprintf(&b, "- %s | %s", u, g.title(u))
		if withExcerpt {
			if ex := excerpt(g.bodyByURL[u], u); ex != "" {
				fmt.Fprintf(&b, " | %s", ex)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatScores(scores []authority.Score) string {
	var b strings.Builder
	for _, s := range scores {
		fmt.Fprintf(&b, "- %s (%s): %.2f\n", s.URL, s.Title, s.Score)
	}
	return b.String()
}

func formatClusters(clusters []Cluster) string {
	var b strings.Builder
	for _, c := range clusters {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Theme)
		for _, u := range c.Pages {
			fmt.Fprintf(&b, "  - %s\n", u)
		}
	}
	return b.String()
}

func formatOpportunities(pages []opportunity.Page) string {
	if len(pages) == 0 {
		return "(no search performance data)\n"
	}
	var b strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&b, "- %s (%s): %d impressions, %.2f%% CTR, score %.0f\n",
			p.URL, p.Title, p.TotalImpressions, p.AverageCTR*100, p.OpportunityScore)
	}
	return b.String()
}

func formatQueries(rows []opportunity.SearchRow) string {
	if len(rows) == 0 {
		return "(none)\n"
	}
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "- %q: %d impressions, %d clicks, position %.1f\n", r.Query, r.Impressions, r.Clicks, r.Position)
	}
	return b.String()
}

func formatURLs(urls []string) string {
	if len(urls) == 0 {
		return "(none)\n"
	}
	var b strings.Builder
	for _, u := range urls {
		fmt.Fprintf(&b, "- %s\n", u)
	}
	return b.String()
}
