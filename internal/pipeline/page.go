package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/TobiSchelling/linkscope/internal/events"
	"github.com/TobiSchelling/linkscope/internal/fetch"
	"github.com/TobiSchelling/linkscope/internal/linkgraph"
	"github.com/TobiSchelling/linkscope/internal/opportunity"
)

const (
	phasePageBody  = "page content"
	phaseDeepPage  = "page analysis"
	maxPromptChars = 12000
	topPageQueries = 15
)

// AnalyzePage produces an authority-aware action plan for one page. It runs
// independently of the primary analysis and any failure is fatal.
func (p *Pipeline) AnalyzePage(ctx context.Context, req PageRequest, em *events.Emitter) (*PageAnalysis, error) {
	r := newRun("page", em, 3)

	if err := validateSiteURL(req.SiteURL); err != nil {
		return nil, r.fail("validation", err)
	}
	if u, err := url.Parse(req.PageURL); err != nil || u.Host == "" {
		return nil, r.fail("validation", &InputError{Field: "pageUrl", Problem: fmt.Sprintf("%q is not an absolute URL", req.PageURL)})
	}
	pageURL := linkgraph.Normalize(req.PageURL)

	started := r.begin(phaseGraph, "Collecting pages and computing diagnostics...")
	pages, err := p.loadPages(ctx, req.SiteURL, req.Pages)
	if err != nil {
		return nil, r.fail(phaseCollect, err)
	}
	g, err := buildGraph(pages, req.SiteURL)
	if err != nil {
		return nil, r.fail(phaseGraph, err)
	}
	rows := opportunity.ForPage(req.SearchRows, pageURL)
	diag := Diagnostics{
		URL:            pageURL,
		Title:          g.title(pageURL),
		AuthorityScore: g.byURL[pageURL],
		InboundLinks:   len(g.inbound[pageURL]),
		OutboundLinks:  len(g.adj[pageURL]),
		Cluster:        req.Cluster,
		Search:         opportunity.Summarize(rows, topPageQueries),
	}
	r.succeed(phaseGraph, false, started, fmt.Sprintf("authority %.2f, %d in / %d out", diag.AuthorityScore, diag.InboundLinks, diag.OutboundLinks))

	started = r.begin(phasePageBody, "Reading page content...")
	body, err := p.pageBody(ctx, g, pageURL)
	if err != nil {
		return nil, r.fail(phasePageBody, err)
	}
	text := fetch.ExtractText(body, pageURL)
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}
	r.succeed(phasePageBody, false, started, fmt.Sprintf("%d characters", len(text)))

	started = r.begin(phaseDeepPage, "Generating action plan...")
	cluster := diag.Cluster
	if cluster == "" {
		cluster = "(unknown)"
	}
	prompt := fmt.Sprintf(pagePrompt,
		req.SiteURL,
		diag.URL, diag.Title, diag.AuthorityScore,
		diag.InboundLinks, diag.OutboundLinks, cluster,
		diag.Search.Impressions, diag.Search.Clicks, diag.Search.AverageCTR*100, diag.Search.AveragePosition,
		formatQueries(diag.Search.TopQueries),
		formatPageList(g, false),
		text)

	resp := &pageResponse{}
	if err := p.gen.Generate(ctx, r.em, phaseDeepPage, prompt, pageSchema, resp); err != nil {
		return nil, r.fail(phaseDeepPage, err)
	}
	r.succeed(phaseDeepPage, false, started, fmt.Sprintf("%d actions", len(resp.Actions)))

	status := r.finish()
	analysis := &PageAnalysis{
		SiteURL:      req.SiteURL,
		GeneratedAt:  p.now(),
		Status:       status,
		Diagnostics:  diag,
		Summary:      strings.TrimSpace(resp.Summary),
		Actions:      resp.Actions,
		Inbound:      knownLinks(resp.Inbound, g, pageURL),
		Outbound:     knownLinks(resp.Outbound, g, pageURL),
		ContentNotes: resp.ContentNotes,
	}
	r.emitDone(analysis)
	return analysis, nil
}

// pageBody prefers the crawled body and falls back to the collector.
func (p *Pipeline) pageBody(ctx context.Context, g *graph, pageURL string) (string, error) {
	if body := g.bodyByURL[pageURL]; strings.TrimSpace(body) != "" {
		return body, nil
	}
	if p.collector == nil {
		return "", eris.Errorf("no content available for %s", pageURL)
	}
	body, err := p.collector.GetPageBody(ctx, pageURL)
	if err != nil {
		return "", eris.Wrapf(err, "fetching %s", pageURL)
	}
	return body, nil
}

// knownLinks keeps link ideas that point at crawled pages other than self.
func knownLinks(in []LinkIdea, g *graph, self string) []LinkIdea {
	var out []LinkIdea
	for _, l := range in {
		l.URL = linkgraph.Normalize(l.URL)
		if l.URL == self || !g.crawled[l.URL] {
			continue
		}
		out = append(out, l)
	}
	return out
}
