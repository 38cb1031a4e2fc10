package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/linkscope/internal/events"
	"github.com/TobiSchelling/linkscope/internal/linkgraph"
	"github.com/TobiSchelling/linkscope/internal/opportunity"
)

const (
	phaseCollect     = "collect"
	phaseGraph       = "link graph"
	phaseOpportunity = "opportunity"
	phaseClustering  = "clustering"
	phaseSuggestions = "suggestions"
	phaseGaps        = "content gaps"

	maxKeywordsPerGap = 3
	enrichConcurrency = 4
)

// Analyze runs the primary analysis: link graph, authority and opportunity
// scoring, clustering, link suggestions and optional content-gap analysis.
// Exactly one terminal event is emitted on em.
func (p *Pipeline) Analyze(ctx context.Context, req AnalyzeRequest, em *events.Emitter) (*Report, error) {
	r := newRun("analyze", em, 6)

	if err := validateSiteURL(req.SiteURL); err != nil {
		return nil, r.fail("validation", err)
	}
	strategy, err := ParseStrategy(string(req.Strategy))
	if err != nil {
		return nil, r.fail("validation", err)
	}

	started := r.begin(phaseCollect, "Collecting pages...")
	pages, err := p.loadPages(ctx, req.SiteURL, req.Pages)
	if err != nil {
		return nil, r.fail(phaseCollect, err)
	}
	r.succeed(phaseCollect, false, started, fmt.Sprintf("%d pages", len(pages)))

	started = r.begin(phaseGraph, "Building link graph and authority scores...")
	g, err := buildGraph(pages, req.SiteURL)
	if err != nil {
		return nil, r.fail(phaseGraph, err)
	}
	r.succeed(phaseGraph, false, started, fmt.Sprintf("%d links between %d pages", g.adj.EdgeCount(), len(pages)))

	started = r.begin(phaseOpportunity, "Ranking search opportunities...")
	opps := opportunity.Rank(req.SearchRows, g.titles)
	r.succeed(phaseOpportunity, false, started, fmt.Sprintf("%d opportunity pages", len(opps)))

	started = r.begin(phaseClustering, "Clustering pages by theme...")
	clusters, err := p.cluster(ctx, r, g, req.SiteURL)
	if err != nil {
		return nil, r.fail(phaseClustering, err)
	}
	r.succeed(phaseClustering, false, started, fmt.Sprintf("%d clusters", len(clusters)))

	started = r.begin(phaseSuggestions, fmt.Sprintf("Generating %s link suggestions...", strategy))
	suggestions, err := p.suggest(ctx, r, g, req.SiteURL, strategy, clusters, opps)
	if err != nil {
		return nil, r.fail(phaseSuggestions, err)
	}
	r.succeed(phaseSuggestions, false, started, fmt.Sprintf("%d suggestions", len(suggestions)))

	started = r.begin(phaseGaps, "Analyzing content gaps...")
	gaps, err := p.contentGaps(ctx, r, req.SiteURL, clusters, opps, req.SearchRows)
	if err != nil {
		r.skip(phaseGaps, started, err)
	} else {
		r.succeed(phaseGaps, true, started, fmt.Sprintf("%d content gaps", len(gaps)))
	}

	status := r.finish()
	phases, failures := r.snapshot()
	report := &Report{
		SiteURL:       req.SiteURL,
		Strategy:      strategy,
		GeneratedAt:   p.now(),
		Status:        status,
		Graph:         GraphStats{Pages: len(pages), Links: g.adj.EdgeCount()},
		Authority:     g.scores,
		Opportunities: opps,
		Clusters:      clusters,
		Suggestions:   suggestions,
		ContentGaps:   gaps,
		Phases:        phases,
		Failures:      failures,
	}
	r.emitDone(report)
	return report, nil
}

// cluster groups every page into thematic clusters. URLs the service invents
// are dropped; crawled pages it forgets are left unclustered.
func (p *Pipeline) cluster(ctx context.Context, r *run, g *graph, siteURL string) ([]Cluster, error) {
	resp := &clusteringResponse{pageCount: len(g.crawled)}
	prompt := fmt.Sprintf(clusteringPrompt, siteURL, min(minClusters, len(g.crawled)), maxClusters, formatPageList(g, true))
	if err := p.gen.Generate(ctx, r.em, phaseClustering, prompt, clusteringSchema, resp); err != nil {
		return nil, err
	}

	assigned := make(map[string]bool)
	clusters := make([]Cluster, 0, len(resp.Clusters))
	for _, c := range resp.Clusters {
		out := Cluster{Name: strings.TrimSpace(c.Name), Theme: strings.TrimSpace(c.Theme)}
		for _, u := range c.Pages {
			u = linkgraph.Normalize(u)
			if !g.crawled[u] || assigned[u] {
				continue
			}
			assigned[u] = true
			out.Pages = append(out.Pages, u)
		}
		clusters = append(clusters, out)
	}
	return clusters, nil
}

// candidates narrows the source and target pages for a strategy.
func candidates(strategy Strategy, g *graph, clusters []Cluster, opps []opportunity.Page) (sources, targets []string, framing string) {
	all := g.urls()
	switch strategy {
	case StrategyPillar:
		// Each cluster's strongest page is its hub.
		for _, c := range clusters {
			if len(c.Pages) == 0 {
				continue
			}
			hub := c.Pages[0]
			for _, u := range c.Pages[1:] {
				if g.byURL[u] > g.byURL[hub] {
					hub = u
				}
			}
			targets = append(targets, hub)
		}
		return all, dedupe(append(targets, all...)), strategyPillar

	case StrategyMoney:
		for _, o := range opps {
			if g.crawled[o.URL] {
				targets = append(targets, o.URL)
			}
		}
		if len(targets) == 0 {
			targets = weakest(g, 10)
		}
		return strongest(g, 10), targets, strategyMoney

	default:
		for _, o := range opps {
			if g.crawled[o.URL] {
				targets = append(targets, o.URL)
			}
		}
		targets = append(targets, weakest(g, 10)...)
		return all, dedupe(targets), strategyGlobal
	}
}

func strongest(g *graph, n int) []string {
	var out []string
	for _, s := range g.scores {
		if len(out) == n {
			break
		}
		out = append(out, s.URL)
	}
	return out
}

func weakest(g *graph, n int) []string {
	var out []string
	for i := len(g.scores) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, g.scores[i].URL)
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// suggest generates link suggestions and checks them against the crawl.
func (p *Pipeline) suggest(ctx context.Context, r *run, g *graph, siteURL string, strategy Strategy, clusters []Cluster, opps []opportunity.Page) ([]Suggestion, error) {
	sources, targets, framing := candidates(strategy, g, clusters, opps)
	prompt := fmt.Sprintf(suggestionPrompt,
		siteURL, framing,
		formatScores(g.scores),
		formatClusters(clusters),
		formatOpportunities(opps),
		formatURLs(sources),
		formatURLs(targets),
		maxSuggestions)

	resp := &suggestionResponse{}
	if err := p.gen.Generate(ctx, r.em, phaseSuggestions, prompt, suggestionSchema, resp); err != nil {
		return nil, err
	}
	return verifySuggestions(resp.Suggestions, g), nil
}

// verifySuggestions drops self-links and links that already exist, and forces
// the reachability flag off for targets outside the crawl.
func verifySuggestions(in []Suggestion, g *graph) []Suggestion {
	seen := make(map[string]bool)
	var out []Suggestion
	for _, s := range in {
		s.SourceURL = linkgraph.Normalize(s.SourceURL)
		s.TargetURL = linkgraph.Normalize(s.TargetURL)
		key := s.SourceURL + " -> " + s.TargetURL
		if s.SourceURL == s.TargetURL || seen[key] || g.adj.LinksTo(s.SourceURL, s.TargetURL) {
			continue
		}
		seen[key] = true
		if !g.crawled[s.TargetURL] {
			s.Risks.TargetReachable = false
		}
		out = append(out, s)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// contentGaps proposes missing topics and enriches each one with keyword
// metrics. A failed lookup marks only its own item.
func (p *Pipeline) contentGaps(ctx context.Context, r *run, siteURL string, clusters []Cluster, opps []opportunity.Page, rows []opportunity.SearchRow) ([]ContentGap, error) {
	top := opportunity.Summarize(rows, 20).TopQueries
	prompt := fmt.Sprintf(gapsPrompt, siteURL, formatClusters(clusters), formatOpportunities(opps), formatQueries(top))

	resp := &gapsResponse{}
	if err := p.gen.Generate(ctx, r.em, phaseGaps, prompt, gapsSchema, resp); err != nil {
		return nil, err
	}

	gaps := make([]ContentGap, len(resp.Gaps))
	for i, item := range resp.Gaps {
		gaps[i] = ContentGap{
			Topic:     item.Topic,
			Cluster:   item.Cluster,
			Rationale: item.Rationale,
			Keywords:  item.Keywords,
			Priority:  item.Priority,
		}
	}

	sort.SliceStable(gaps, func(i, j int) bool { return priorityRank(gaps[i].Priority) < priorityRank(gaps[j].Priority) })

	if !p.keywords.Configured() || len(gaps) == 0 {
		return gaps, nil
	}

	r.em.Progress(fmt.Sprintf("Enriching %d content gaps with keyword data...", len(gaps)))
	var eg errgroup.Group
	eg.SetLimit(enrichConcurrency)
	for i := range gaps {
		gap := &gaps[i]
		eg.Go(func() error {
			for j, kw := range gap.Keywords {
				if j == maxKeywordsPerGap {
					break
				}
				m, err := p.keywords.Lookup(ctx, kw)
				if err != nil {
					gap.Enrichment = err.Error()
					r.isolate(phaseGaps, gap.Topic, eris.Wrapf(err, "keyword metrics for %q", kw))
					return nil
				}
				gap.Metrics = append(gap.Metrics, m)
			}
			return nil
		})
	}
	eg.Wait()
	return gaps, nil
}

func priorityRank(p string) int {
	switch strings.ToLower(p) {
	case "high":
		return 0
	case "medium":
		return 1
	case "low":
		return 2
	}
	return 3
}
