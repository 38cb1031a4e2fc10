package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"

	"github.com/TobiSchelling/linkscope/internal/collect"
	"github.com/TobiSchelling/linkscope/internal/events"
	"github.com/TobiSchelling/linkscope/internal/keywords"
	"github.com/TobiSchelling/linkscope/internal/llm"
	"github.com/TobiSchelling/linkscope/internal/opportunity"
	"github.com/TobiSchelling/linkscope/internal/retry"
)

const site = "https://example.com"

// fnProvider answers by schema so each phase can be scripted independently.
type fnProvider struct {
	mu    sync.Mutex
	calls map[*genai.Schema]int
	fn    func(prompt string, schema *genai.Schema) (string, error)
}

func newProvider(fn func(prompt string, schema *genai.Schema) (string, error)) *fnProvider {
	return &fnProvider{calls: make(map[*genai.Schema]int), fn: fn}
}

func (f *fnProvider) Generate(_ context.Context, prompt string, schema *genai.Schema) (string, error) {
	f.mu.Lock()
	f.calls[schema]++
	f.mu.Unlock()
	return f.fn(prompt, schema)
}

func (f *fnProvider) IsConfigured() bool { return true }

func (f *fnProvider) count(schema *genai.Schema) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[schema]
}

func page(path, title string, links ...string) collect.Page {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><body><h1>%s</h1><p>About %s.</p>", title, title)
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return collect.Page{URL: site + path, Title: title, Body: b.String()}
}

// a -> b, c; b -> c; d -> a
func testPages() []collect.Page {
	return []collect.Page{
		page("/a", "Alpha guide", "/b", "/c"),
		page("/b", "Beta guide", "/c"),
		page("/c", "Core guide"),
		page("/d", "Deep dive", "/a"),
	}
}

func testPipeline(p llm.Provider, kw *keywords.Client) *Pipeline {
	gen := NewGenerator(p, retry.Options{MaxRetries: 3}, 0)
	return New(gen, nil, kw)
}

const clusteringJSON = `{"clusters": [
	{"name": "A", "theme": "a", "pages": ["https://example.com/a"]},
	{"name": "B", "theme": "b", "pages": ["https://example.com/b"]},
	{"name": "C", "theme": "c", "pages": ["https://example.com/c", "https://example.com/invented"]},
	{"name": "D", "theme": "d", "pages": ["https://example.com/d#top"]}
]}`

const risksOK = `"risks": {"targetReachable": true, "indexable": true, "canonical": true, "cannibalizationRisk": false}`

var suggestionsJSON = `{"suggestions": [
	{"sourceUrl": "https://example.com/c", "targetUrl": "https://example.com/d", "anchors": ["deep dive", "dive"], "insertionHint": "intro", "rationale": "related", ` + risksOK + `},
	{"sourceUrl": "https://example.com/a", "targetUrl": "https://example.com/b", "anchors": ["beta"], "insertionHint": "x", "rationale": "exists", ` + risksOK + `},
	{"sourceUrl": "https://example.com/b", "targetUrl": "https://example.com/b", "anchors": ["self"], "insertionHint": "x", "rationale": "self", ` + risksOK + `},
	{"sourceUrl": "https://example.com/c", "targetUrl": "https://example.com/missing", "anchors": ["gone"], "insertionHint": "x", "rationale": "dead", ` + risksOK + `}
]}`

const gapsJSON = `{"gaps": [
	{"topic": "Low topic", "cluster": "A", "rationale": "r", "keywords": ["good kw"], "priority": "low"},
	{"topic": "High topic", "cluster": "B", "rationale": "r", "keywords": ["bad kw"], "priority": "high"}
]}`

func analyzeResponder(gapsErr error) func(string, *genai.Schema) (string, error) {
	return func(prompt string, schema *genai.Schema) (string, error) {
		switch schema {
		case clusteringSchema:
			return clusteringJSON, nil
		case suggestionSchema:
			return suggestionsJSON, nil
		case gapsSchema:
			if gapsErr != nil {
				return "", gapsErr
			}
			return gapsJSON, nil
		}
		return "", fmt.Errorf("unexpected schema")
	}
}

func searchRows() []opportunity.SearchRow {
	return []opportunity.SearchRow{
		{Query: "alpha", Page: site + "/a", Impressions: 1000, Clicks: 10, CTR: 0.01, Position: 8},
		{Query: "core", Page: site + "/c", Impressions: 400, Clicks: 40, CTR: 0.1, Position: 3},
		{Query: "core guide", Page: site + "/c", Impressions: 100, Clicks: 5, CTR: 0.05, Position: 5},
	}
}

func TestAnalyzeCompleted(t *testing.T) {
	prov := newProvider(analyzeResponder(nil))
	rec := &events.Recorder{}

	report, err := testPipeline(prov, nil).Analyze(context.Background(), AnalyzeRequest{
		SiteURL:    site,
		Pages:      testPages(),
		SearchRows: searchRows(),
	}, events.NewEmitter(rec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", report.Status)
	}
	if report.Strategy != StrategyGlobal {
		t.Errorf("expected default global strategy, got %s", report.Strategy)
	}
	if report.Graph.Pages != 4 || report.Graph.Links != 4 {
		t.Errorf("unexpected graph stats %+v", report.Graph)
	}
	if len(report.Authority) != 4 || report.Authority[0].URL != site+"/c" || report.Authority[0].Score != 10 {
		t.Errorf("expected /c to lead authority, got %+v", report.Authority)
	}
	if len(report.Opportunities) != 2 || report.Opportunities[0].URL != site+"/a" {
		t.Errorf("unexpected opportunities %+v", report.Opportunities)
	}

	wantClusterPages := [][]string{{site + "/a"}, {site + "/b"}, {site + "/c"}, {site + "/d"}}
	var gotClusterPages [][]string
	for _, c := range report.Clusters {
		gotClusterPages = append(gotClusterPages, c.Pages)
	}
	if diff := cmp.Diff(wantClusterPages, gotClusterPages); diff != "" {
		t.Errorf("cluster pages mismatch (-want +got):\n%s", diff)
	}

	if len(report.Suggestions) != 2 {
		t.Fatalf("expected 2 suggestions after verification, got %+v", report.Suggestions)
	}
	if !report.Suggestions[0].Risks.TargetReachable {
		t.Error("expected crawled target to stay reachable")
	}
	if report.Suggestions[1].TargetURL != site+"/missing" || report.Suggestions[1].Risks.TargetReachable {
		t.Errorf("expected uncrawled target flagged unreachable, got %+v", report.Suggestions[1])
	}
	if len(report.ContentGaps) != 2 || report.ContentGaps[0].Topic != "High topic" {
		t.Errorf("expected gaps ordered by priority, got %+v", report.ContentGaps)
	}
	if len(report.Phases) != 6 {
		t.Errorf("expected 6 phase results, got %d", len(report.Phases))
	}

	terminal := rec.Terminal()
	if len(terminal) != 1 || terminal[0].Type != events.TypeDone {
		t.Fatalf("expected exactly one done event, got %+v", terminal)
	}
	if terminal[0].Payload != report {
		t.Error("expected done payload to be the report")
	}
	if !strings.HasPrefix(rec.Events()[0].Message, "Step 1/6") {
		t.Errorf("expected step progress first, got %q", rec.Events()[0].Message)
	}
}

func TestAnalyzeOptionalPhaseFailureIsPartial(t *testing.T) {
	prov := newProvider(analyzeResponder(errors.New("invalid argument")))
	rec := &events.Recorder{}

	report, err := testPipeline(prov, nil).Analyze(context.Background(), AnalyzeRequest{
		SiteURL: site,
		Pages:   testPages(),
	}, events.NewEmitter(rec))
	if err != nil {
		t.Fatalf("optional failure must not fail the run: %v", err)
	}
	if report.Status != StatusPartiallyFailed {
		t.Errorf("expected partially_failed, got %s", report.Status)
	}
	if report.ContentGaps != nil {
		t.Errorf("expected no content gaps, got %+v", report.ContentGaps)
	}
	if len(report.Failures) != 1 || report.Failures[0].Phase != phaseGaps {
		t.Errorf("expected one content gap failure, got %+v", report.Failures)
	}
	if prov.count(gapsSchema) != 1 {
		t.Errorf("permanent error must not be retried, got %d calls", prov.count(gapsSchema))
	}
	if terminal := rec.Terminal(); len(terminal) != 1 || terminal[0].Type != events.TypeDone {
		t.Fatalf("expected one done event, got %+v", terminal)
	}
}

func TestAnalyzeClusteringSchemaViolationIsFatal(t *testing.T) {
	prov := newProvider(func(prompt string, schema *genai.Schema) (string, error) {
		if schema == clusteringSchema {
			return `{"clusters": [{"name": "only", "theme": "t", "pages": []}]}`, nil
		}
		return "", fmt.Errorf("should not be reached")
	})
	rec := &events.Recorder{}

	report, err := testPipeline(prov, nil).Analyze(context.Background(), AnalyzeRequest{SiteURL: site, Pages: testPages()}, events.NewEmitter(rec))
	if err == nil || report != nil {
		t.Fatalf("expected fatal error, got report=%v err=%v", report, err)
	}
	if prov.count(clusteringSchema) != 1 {
		t.Errorf("schema violations must not be retried, got %d calls", prov.count(clusteringSchema))
	}
	if prov.count(suggestionSchema) != 0 {
		t.Error("later phases must not run after a fatal failure")
	}
	terminal := rec.Terminal()
	if len(terminal) != 1 || terminal[0].Type != events.TypeError {
		t.Fatalf("expected exactly one error event, got %+v", terminal)
	}
	if !strings.Contains(terminal[0].Message, "clustering") || terminal[0].Details == "" {
		t.Errorf("expected clustering error with details, got %+v", terminal[0])
	}
}

func TestAnalyzeSuggestionFailureIsFatal(t *testing.T) {
	prov := newProvider(func(prompt string, schema *genai.Schema) (string, error) {
		if schema == clusteringSchema {
			return clusteringJSON, nil
		}
		return "", errors.New("permission denied")
	})
	rec := &events.Recorder{}

	if _, err := testPipeline(prov, nil).Analyze(context.Background(), AnalyzeRequest{SiteURL: site, Pages: testPages()}, events.NewEmitter(rec)); err == nil {
		t.Fatal("expected fatal error")
	}
	if prov.count(gapsSchema) != 0 {
		t.Error("content gaps must not run after suggestions fail")
	}
	if terminal := rec.Terminal(); len(terminal) != 1 || terminal[0].Type != events.TypeError {
		t.Fatalf("expected one error event, got %+v", terminal)
	}
}

func TestAnalyzeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  AnalyzeRequest
	}{
		{name: "missing_site", req: AnalyzeRequest{Pages: testPages()}},
		{name: "relative_site", req: AnalyzeRequest{SiteURL: "example.com", Pages: testPages()}},
		{name: "bad_strategy", req: AnalyzeRequest{SiteURL: site, Strategy: "viral", Pages: testPages()}},
		{name: "no_pages_no_collector", req: AnalyzeRequest{SiteURL: site}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov := newProvider(analyzeResponder(nil))
			rec := &events.Recorder{}
			_, err := testPipeline(prov, nil).Analyze(context.Background(), tt.req, events.NewEmitter(rec))

			var inputErr *InputError
			if !errors.As(err, &inputErr) {
				t.Fatalf("expected InputError, got %v", err)
			}
			if prov.count(clusteringSchema) != 0 {
				t.Error("provider must not be called for invalid input")
			}
			if terminal := rec.Terminal(); len(terminal) != 1 || terminal[0].Type != events.TypeError {
				t.Fatalf("expected one error event, got %+v", terminal)
			}
		})
	}
}

func TestAnalyzeRetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	failures := 2
	prov := newProvider(func(prompt string, schema *genai.Schema) (string, error) {
		if schema == clusteringSchema {
			mu.Lock()
			defer mu.Unlock()
			if failures > 0 {
				failures--
				return "", &llm.TransientError{Err: errors.New("model overloaded")}
			}
		}
		return analyzeResponder(nil)(prompt, schema)
	})
	rec := &events.Recorder{}

	report, err := testPipeline(prov, nil).Analyze(context.Background(), AnalyzeRequest{SiteURL: site, Pages: testPages()}, events.NewEmitter(rec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", report.Status)
	}
	if prov.count(clusteringSchema) != 3 {
		t.Errorf("expected 3 clustering attempts, got %d", prov.count(clusteringSchema))
	}
	retries := 0
	for _, ev := range rec.Events() {
		if strings.Contains(ev.Message, "retrying") {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("expected 2 retry progress events, got %d", retries)
	}
}

func TestAnalyzeTransientExhaustionIsFatal(t *testing.T) {
	prov := newProvider(func(prompt string, schema *genai.Schema) (string, error) {
		return "", &llm.TransientError{Err: errors.New("503 unavailable")}
	})
	_, err := testPipeline(prov, nil).Analyze(context.Background(), AnalyzeRequest{SiteURL: site, Pages: testPages()}, events.Discard())
	if err == nil {
		t.Fatal("expected error after retries are exhausted")
	}
	if prov.count(clusteringSchema) != 3 {
		t.Errorf("expected exactly MaxRetries attempts, got %d", prov.count(clusteringSchema))
	}
}

func TestContentGapEnrichmentIsolatedPerItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Keyword string `json:"keyword"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Keyword == "bad kw" {
			http.Error(w, "quota exceeded", http.StatusPaymentRequired)
			return
		}
		fmt.Fprintf(w, `{"volume": 720, "difficulty": 21, "intent": "informational"}`)
	}))
	defer srv.Close()

	prov := newProvider(analyzeResponder(nil))
	report, err := testPipeline(prov, keywords.NewClient(srv.URL, "k", 0)).Analyze(context.Background(), AnalyzeRequest{
		SiteURL: site,
		Pages:   testPages(),
	}, events.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byTopic := make(map[string]ContentGap)
	for _, g := range report.ContentGaps {
		byTopic[g.Topic] = g
	}
	if g := byTopic["Low topic"]; len(g.Metrics) != 1 || g.Metrics[0].Volume != 720 || g.Enrichment != "" {
		t.Errorf("expected enriched gap, got %+v", g)
	}
	if g := byTopic["High topic"]; len(g.Metrics) != 0 || g.Enrichment == "" {
		t.Errorf("expected isolated enrichment failure, got %+v", g)
	}
	if report.Status != StatusPartiallyFailed {
		t.Errorf("expected partially_failed, got %s", report.Status)
	}
	if len(report.Failures) != 1 || report.Failures[0].Item != "High topic" {
		t.Errorf("expected one per-item failure, got %+v", report.Failures)
	}
}

func TestCandidatesByStrategy(t *testing.T) {
	g, err := buildGraph(testPages(), site)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clusters := []Cluster{
		{Name: "guides", Pages: []string{site + "/a", site + "/c"}},
		{Name: "dives", Pages: []string{site + "/d"}},
	}
	opps := []opportunity.Page{{URL: site + "/b"}, {URL: site + "/elsewhere"}}

	_, targets, framing := candidates(StrategyPillar, g, clusters, opps)
	if framing != strategyPillar || targets[0] != site+"/c" || targets[1] != site+"/d" {
		t.Errorf("expected cluster hubs first, got %v", targets)
	}

	sources, targets, framing := candidates(StrategyMoney, g, clusters, opps)
	if framing != strategyMoney {
		t.Errorf("unexpected framing %q", framing)
	}
	if diff := cmp.Diff([]string{site + "/b"}, targets); diff != "" {
		t.Errorf("money targets mismatch (-want +got):\n%s", diff)
	}
	if sources[0] != site+"/c" {
		t.Errorf("expected strongest page as first source, got %v", sources)
	}

	_, targets, _ = candidates(StrategyGlobal, g, clusters, opps)
	if targets[0] != site+"/b" || len(targets) != 4 {
		t.Errorf("expected opportunities then weakest pages, got %v", targets)
	}
}

const pageJSON = `{
	"summary": "Strong hub page.",
	"actions": [{"title": "Expand intro", "detail": "Add a summary", "priority": "high"}],
	"inboundSuggestions": [
		{"url": "https://example.com/d", "anchor": "core guide", "reason": "related"},
		{"url": "https://other.com/x", "anchor": "x", "reason": "external"}
	],
	"outboundSuggestions": [{"url": "https://example.com/c", "anchor": "self", "reason": "self"}],
	"contentNotes": ["Add examples"]
}`

func TestAnalyzePage(t *testing.T) {
	var gotPrompt string
	prov := newProvider(func(prompt string, schema *genai.Schema) (string, error) {
		if schema != pageSchema {
			return "", fmt.Errorf("unexpected schema")
		}
		gotPrompt = prompt
		return pageJSON, nil
	})
	rec := &events.Recorder{}

	analysis, err := testPipeline(prov, nil).AnalyzePage(context.Background(), PageRequest{
		SiteURL:    site,
		PageURL:    site + "/c",
		Cluster:    "Guides",
		Pages:      testPages(),
		SearchRows: searchRows(),
	}, events.NewEmitter(rec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d := analysis.Diagnostics
	if d.AuthorityScore != 10 || d.InboundLinks != 2 || d.OutboundLinks != 0 {
		t.Errorf("unexpected diagnostics %+v", d)
	}
	if d.Search.Impressions != 500 || d.Cluster != "Guides" || d.Title != "Core guide" {
		t.Errorf("unexpected diagnostics %+v", d)
	}
	if !strings.Contains(gotPrompt, "Core guide") || !strings.Contains(gotPrompt, "Guides") {
		t.Errorf("expected diagnostics in prompt")
	}
	if len(analysis.Inbound) != 1 || analysis.Inbound[0].URL != site+"/d" {
		t.Errorf("expected only crawled inbound suggestions, got %+v", analysis.Inbound)
	}
	if len(analysis.Outbound) != 0 {
		t.Errorf("expected self link dropped, got %+v", analysis.Outbound)
	}
	if analysis.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", analysis.Status)
	}
	if terminal := rec.Terminal(); len(terminal) != 1 || terminal[0].Type != events.TypeDone {
		t.Fatalf("expected one done event, got %+v", terminal)
	}
}

func TestAnalyzePageFailureIsFatal(t *testing.T) {
	prov := newProvider(func(string, *genai.Schema) (string, error) {
		return `{"summary": "", "actions": []}`, nil
	})
	rec := &events.Recorder{}
	_, err := testPipeline(prov, nil).AnalyzePage(context.Background(), PageRequest{
		SiteURL: site, PageURL: site + "/a", Pages: testPages(),
	}, events.NewEmitter(rec))
	if err == nil {
		t.Fatal("expected error for invalid page analysis")
	}
	if terminal := rec.Terminal(); len(terminal) != 1 || terminal[0].Type != events.TypeError {
		t.Fatalf("expected one error event, got %+v", terminal)
	}
}

func TestAnalyzePageFetchesMissingBody(t *testing.T) {
	pages := testPages()
	target := site + "/c"
	collector := collect.NewStatic([]collect.Page{{URL: target, Title: "Core guide", Body: "<p>fetched body text</p>"}})

	var gotPrompt string
	prov := newProvider(func(prompt string, schema *genai.Schema) (string, error) {
		gotPrompt = prompt
		return pageJSON, nil
	})
	pages[2].Body = ""
	p := New(NewGenerator(prov, retry.Options{MaxRetries: 1}, 0), collector, nil)

	if _, err := p.AnalyzePage(context.Background(), PageRequest{SiteURL: site, PageURL: target, Pages: pages}, events.Discard()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gotPrompt, "fetched body text") {
		t.Error("expected collector body in prompt")
	}
}

const pillarsJSON = `{"pillars": [
	{"name": "Alpha", "description": "a", "intent": "informational"},
	{"name": "Beta", "description": "b", "intent": "commercial"},
	{"name": "Gamma", "description": "c", "intent": "transactional"}
]}`

const mappingJSON = `{"assignments": [
	{"url": "https://example.com/a", "pillar": "Alpha"},
	{"url": "https://example.com/a", "pillar": "Beta"},
	{"url": "https://example.com/b", "pillar": "beta"},
	{"url": "https://example.com/c", "pillar": "Unknown"},
	{"url": "https://example.com/zzz", "pillar": "Gamma"}
]}`

const planJSON = `{"clusters": [{"name": "Basics", "articles": [
	{"title": "Getting started", "targetKeyword": "start", "intent": "informational", "impactScore": 8.5, "rationale": "r"}
]}]}`

func roadmapResponder(failPillars ...string) func(string, *genai.Schema) (string, error) {
	return func(prompt string, schema *genai.Schema) (string, error) {
		switch schema {
		case pillarsSchema:
			return pillarsJSON, nil
		case mappingSchema:
			return mappingJSON, nil
		case pillarPlanSchema:
			for _, name := range failPillars {
				if strings.Contains(prompt, fmt.Sprintf("pillar %q", name)) {
					return "", fmt.Errorf("pillar %s rejected", name)
				}
			}
			return planJSON, nil
		case bridgesSchema:
			return `{"bridges": []}`, nil
		}
		return "", fmt.Errorf("unexpected schema")
	}
}

func TestBuildRoadmapIsolatesPillarFailure(t *testing.T) {
	prov := newProvider(roadmapResponder("Beta"))
	rec := &events.Recorder{}

	roadmap, err := testPipeline(prov, nil).BuildRoadmap(context.Background(), RoadmapRequest{
		SiteURL:         site,
		BusinessContext: "We sell guides.",
		Pages:           testPages(),
	}, events.NewEmitter(rec))
	if err != nil {
		t.Fatalf("a single pillar failure must not fail the run: %v", err)
	}

	if roadmap.Status == StatusFailed || roadmap.Status != StatusPartiallyFailed {
		t.Errorf("expected partially_failed, got %s", roadmap.Status)
	}
	var planned []string
	for _, plan := range roadmap.Plans {
		planned = append(planned, plan.Pillar.Name)
	}
	if diff := cmp.Diff([]string{"Alpha", "Gamma"}, planned); diff != "" {
		t.Errorf("planned pillars mismatch (-want +got):\n%s", diff)
	}
	if len(roadmap.Failures) != 1 || roadmap.Failures[0].Item != "Beta" {
		t.Errorf("expected one failure for Beta, got %+v", roadmap.Failures)
	}
	if diff := cmp.Diff([]string{site + "/a"}, roadmap.Plans[0].ExistingPages); diff != "" {
		t.Errorf("first assignment should win (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{site + "/c", site + "/d"}, roadmap.Unmapped); diff != "" {
		t.Errorf("unmapped pages mismatch (-want +got):\n%s", diff)
	}
	if roadmap.Bridges != nil {
		t.Errorf("invalid bridges must be omitted, got %+v", roadmap.Bridges)
	}
	if len(roadmap.Pillars) != 3 {
		t.Errorf("expected all discovered pillars kept, got %d", len(roadmap.Pillars))
	}
	if terminal := rec.Terminal(); len(terminal) != 1 || terminal[0].Type != events.TypeDone {
		t.Fatalf("expected one done event, got %+v", terminal)
	}
}

func TestBuildRoadmapCompletedWithBridges(t *testing.T) {
	responder := roadmapResponder()
	prov := newProvider(func(prompt string, schema *genai.Schema) (string, error) {
		if schema == bridgesSchema {
			return `{"bridges": [{"title": "Alpha meets Gamma", "pillars": ["Alpha", "Gamma"], "rationale": "r"}]}`, nil
		}
		return responder(prompt, schema)
	})

	roadmap, err := testPipeline(prov, nil).BuildRoadmap(context.Background(), RoadmapRequest{
		SiteURL: site, BusinessContext: "ctx", Location: "Berlin", Pages: testPages(),
	}, events.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roadmap.Status != StatusCompleted || len(roadmap.Plans) != 3 || len(roadmap.Bridges) != 1 {
		t.Errorf("unexpected roadmap status=%s plans=%d bridges=%d", roadmap.Status, len(roadmap.Plans), len(roadmap.Bridges))
	}
	if roadmap.Location != "Berlin" {
		t.Errorf("expected location carried, got %q", roadmap.Location)
	}
}

func TestBuildRoadmapAllPillarsFail(t *testing.T) {
	prov := newProvider(roadmapResponder("Alpha", "Beta", "Gamma"))
	rec := &events.Recorder{}
	if _, err := testPipeline(prov, nil).BuildRoadmap(context.Background(), RoadmapRequest{
		SiteURL: site, BusinessContext: "ctx", Pages: testPages(),
	}, events.NewEmitter(rec)); err == nil {
		t.Fatal("expected failure when no pillar could be planned")
	}
	if terminal := rec.Terminal(); len(terminal) != 1 || terminal[0].Type != events.TypeError {
		t.Fatalf("expected one error event, got %+v", terminal)
	}
}

func TestBuildRoadmapRequiresContext(t *testing.T) {
	prov := newProvider(roadmapResponder())
	_, err := testPipeline(prov, nil).BuildRoadmap(context.Background(), RoadmapRequest{SiteURL: site, Pages: testPages()}, events.Discard())
	if !IsInputError(err) {
		t.Fatalf("expected InputError, got %v", err)
	}
}

func sampleRoadmap() *Roadmap {
	return &Roadmap{
		SiteURL:         site,
		BusinessContext: "ctx",
		Pillars:         []Pillar{{Name: "Running", Description: "d", Intent: "i"}, {Name: "Failed", Description: "f"}},
		Plans: []PillarPlan{{
			Pillar:        Pillar{Name: "Running", Description: "d", Intent: "i"},
			ExistingPages: []string{site + "/a"},
			Clusters: []RoadmapCluster{{Name: "Shoes", Articles: []ArticleIdea{
				{Title: "Best shoes", TargetKeyword: "best shoes", Intent: "commercial", ImpactScore: 7.5, Rationale: "r"},
				{Title: "Shoe care", TargetKeyword: "shoe care", Intent: "informational", ImpactScore: 3, Rationale: "r"},
			}}},
		}},
		Bridges: []Bridge{{Title: "Run further", Pillars: []string{"Running"}, Rationale: "r"}},
	}
}

const replicatedJSON = `{"plans": [{
	"pillar": {"name": "Laufen", "description": "d-de", "intent": "i-de"},
	"clusters": [{"name": "Schuhe", "articles": [
		{"title": "Beste Laufschuhe", "targetKeyword": "laufschuhe", "intent": "commercial", "rationale": "r-de"},
		{"title": "Schuhpflege", "targetKeyword": "schuhpflege", "intent": "informational", "rationale": "r-de"}
	]}]
}], "bridges": [{"title": "Weiter laufen", "rationale": "r-de"}]}`

func TestReplicate(t *testing.T) {
	var gotPrompt string
	prov := newProvider(func(prompt string, schema *genai.Schema) (string, error) {
		gotPrompt = prompt
		return replicatedJSON, nil
	})
	orig := sampleRoadmap()

	out, err := testPipeline(prov, nil).Replicate(context.Background(), ReplicateRequest{Roadmap: orig, Location: "Munich"}, events.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gotPrompt, "Munich") || !strings.Contains(gotPrompt, "Best shoes") {
		t.Error("expected location and roadmap text in prompt")
	}

	articles := out.Plans[0].Clusters[0].Articles
	if articles[0].Title != "Beste Laufschuhe" || articles[0].ImpactScore != 7.5 || articles[1].ImpactScore != 3 {
		t.Errorf("expected localized text with original scores, got %+v", articles)
	}
	if out.Location != "Munich" || out.Status != StatusCompleted {
		t.Errorf("unexpected location/status %q/%s", out.Location, out.Status)
	}
	if diff := cmp.Diff(orig.Plans[0].ExistingPages, out.Plans[0].ExistingPages); diff != "" {
		t.Errorf("existing pages changed (-want +got):\n%s", diff)
	}
	wantPillars := []string{"Laufen", "Failed"}
	var gotPillars []string
	for _, p := range out.Pillars {
		gotPillars = append(gotPillars, p.Name)
	}
	if diff := cmp.Diff(wantPillars, gotPillars); diff != "" {
		t.Errorf("pillars mismatch (-want +got):\n%s", diff)
	}
	if out.Bridges[0].Title != "Weiter laufen" || out.Bridges[0].Pillars[0] != "Laufen" {
		t.Errorf("unexpected bridge %+v", out.Bridges[0])
	}
	if orig.Plans[0].Clusters[0].Articles[0].Title != "Best shoes" {
		t.Error("original roadmap must not be modified")
	}
}

func TestReplicateShapeMismatchIsFatal(t *testing.T) {
	prov := newProvider(func(string, *genai.Schema) (string, error) {
		return `{"plans": [{"pillar": {"name": "Laufen"}, "clusters": [{"name": "Schuhe", "articles": [
			{"title": "Beste Laufschuhe"}
		]}]}], "bridges": [{"title": "x"}]}`, nil
	})
	rec := &events.Recorder{}

	_, err := testPipeline(prov, nil).Replicate(context.Background(), ReplicateRequest{Roadmap: sampleRoadmap(), Location: "Munich"}, events.NewEmitter(rec))
	if err == nil {
		t.Fatal("expected error for mismatched structure")
	}
	if prov.count(replicationSchema) != 1 {
		t.Errorf("structural mismatch must not be retried, got %d calls", prov.count(replicationSchema))
	}
	if terminal := rec.Terminal(); len(terminal) != 1 || terminal[0].Type != events.TypeError {
		t.Fatalf("expected one error event, got %+v", terminal)
	}
}

func TestReplicateRequiresInput(t *testing.T) {
	prov := newProvider(func(string, *genai.Schema) (string, error) { return replicatedJSON, nil })
	p := testPipeline(prov, nil)

	if _, err := p.Replicate(context.Background(), ReplicateRequest{Location: "Munich"}, events.Discard()); !IsInputError(err) {
		t.Errorf("expected InputError without roadmap, got %v", err)
	}
	if _, err := p.Replicate(context.Background(), ReplicateRequest{Roadmap: sampleRoadmap()}, events.Discard()); !IsInputError(err) {
		t.Errorf("expected InputError without location, got %v", err)
	}
}

func TestGeneratorWithoutProvider(t *testing.T) {
	var out clusteringResponse
	if err := NewGenerator(nil, retry.Options{}, 0).Generate(context.Background(), events.Discard(), "x", "p", nil, &out); err == nil {
		t.Error("expected error without provider")
	}
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{"": StrategyGlobal, "Pillar": StrategyPillar, " money ": StrategyMoney} {
		got, err := ParseStrategy(in)
		if err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseStrategy("viral"); !IsInputError(err) {
		t.Errorf("expected InputError, got %v", err)
	}
}
