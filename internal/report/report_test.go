package report

import (
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/linkscope/internal/authority"
	"github.com/TobiSchelling/linkscope/internal/keywords"
	"github.com/TobiSchelling/linkscope/internal/pipeline"
)

func sampleReport() *pipeline.Report {
	return &pipeline.Report{
		SiteURL:     "https://example.com",
		Strategy:    pipeline.StrategyMoney,
		GeneratedAt: time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC),
		Status:      pipeline.StatusPartiallyFailed,
		Graph:       pipeline.GraphStats{Pages: 2, Links: 1},
		Authority: []authority.Score{
			{URL: "https://example.com/b", Title: "B | guide", Score: 10},
			{URL: "https://example.com/a", Title: "A", Score: 5.67},
		},
		Clusters: []pipeline.Cluster{{Name: "Guides", Theme: "How-tos", Pages: []string{"https://example.com/a"}}},
		Suggestions: []pipeline.Suggestion{{
			SourceURL: "https://example.com/a", TargetURL: "https://example.com/x",
			Anchors: []string{"x guide"}, InsertionHint: "intro", Rationale: "related",
			Risks: pipeline.RiskFlags{Indexable: true, Canonical: true},
		}},
		ContentGaps: []pipeline.ContentGap{{
			Topic: "Sizing", Priority: "high", Rationale: "missing",
			Metrics: []keywords.Metrics{{Keyword: "shoe sizing", Volume: 900, Difficulty: 12, Intent: "informational"}},
		}},
		Failures: []pipeline.Failure{{Phase: "content gaps", Item: "Fit", Message: "quota exceeded"}},
	}
}

func TestAnalysisMarkdown(t *testing.T) {
	md := Analysis(sampleReport())

	for _, want := range []string{
		"# Internal link report: https://example.com",
		"**money** strategy",
		"**partially_failed**",
		`| https://example.com/b | B \| guide | 10.00 |`,
		"### Guides",
		`Anchors: "x guide"`,
		"Risks: target unreachable",
		"`shoe sizing`: 900 searches/month",
		"- content gaps (Fit): quota exceeded",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected markdown to contain %q\n%s", want, md)
		}
	}
	if strings.Count(md, sectionSeparator) < 4 {
		t.Errorf("expected sections separated by rules")
	}
}

func TestAnalysisWithoutSuggestions(t *testing.T) {
	r := sampleReport()
	r.Suggestions = nil
	if md := Analysis(r); !strings.Contains(md, "No new links suggested.") {
		t.Error("expected empty suggestions note")
	}
}

func TestPageMarkdown(t *testing.T) {
	a := &pipeline.PageAnalysis{
		Diagnostics: pipeline.Diagnostics{URL: "https://example.com/a", Title: "A", AuthorityScore: 4.2, InboundLinks: 3, Cluster: "Guides"},
		Summary:     "Decent page.",
		Actions:     []pipeline.Action{{Title: "Add FAQ", Detail: "Answer questions", Priority: "high"}},
		Inbound:     []pipeline.LinkIdea{{URL: "https://example.com/b", Anchor: "a guide", Reason: "topical"}},
	}
	md := Page(a)
	for _, want := range []string{"# Page analysis: A", "Authority: 4.20 / 10", "Cluster: Guides", "1. **Add FAQ** (high)", `anchor "a guide"`} {
		if !strings.Contains(md, want) {
			t.Errorf("expected markdown to contain %q\n%s", want, md)
		}
	}
	if strings.Contains(md, "Link from this page to") {
		t.Error("empty outbound section should be omitted")
	}
}

func TestRoadmapMarkdown(t *testing.T) {
	rm := &pipeline.Roadmap{
		SiteURL:  "https://example.com",
		Location: "Munich",
		Status:   pipeline.StatusCompleted,
		Pillars:  []pipeline.Pillar{{Name: "Running", Description: "d", Intent: "informational"}},
		Plans: []pipeline.PillarPlan{{
			Pillar: pipeline.Pillar{Name: "Running"},
			Clusters: []pipeline.RoadmapCluster{{Name: "Shoes", Articles: []pipeline.ArticleIdea{
				{Title: "Best shoes", TargetKeyword: "best shoes", Intent: "commercial", ImpactScore: 7.5},
			}}},
		}},
		Bridges:  []pipeline.Bridge{{Title: "Run and rest", Pillars: []string{"Running", "Recovery"}, Rationale: "r"}},
		Unmapped: []string{"https://example.com/about"},
	}
	md := Roadmap(rm)
	for _, want := range []string{"Target location: **Munich**", "## Running", "| Best shoes | best shoes | commercial | 7.5 |", "(Running + Recovery)", "https://example.com/about"} {
		if !strings.Contains(md, want) {
			t.Errorf("expected markdown to contain %q\n%s", want, md)
		}
	}
}

func TestMarkdownDispatch(t *testing.T) {
	if _, err := Markdown(sampleReport()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := Markdown("nope"); err == nil {
		t.Error("expected error for unknown type")
	}
	if got := Summary(&pipeline.Roadmap{Location: "Munich"}); !strings.Contains(got, "for Munich") {
		t.Errorf("unexpected summary %q", got)
	}
}
