// Package report renders analysis results as Markdown.
package report

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/linkscope/internal/pipeline"
)

const sectionSeparator = "\n\n---\n\n"

// Markdown renders any pipeline result.
func Markdown(v any) (string, error) {
	switch r := v.(type) {
	case *pipeline.Report:
		return Analysis(r), nil
	case *pipeline.PageAnalysis:
		return Page(r), nil
	case *pipeline.Roadmap:
		return Roadmap(r), nil
	}
	return "", fmt.Errorf("cannot render %T", v)
}

// Summary returns a one-line description of a result.
func Summary(v any) string {
	switch r := v.(type) {
	case *pipeline.Report:
		return fmt.Sprintf("%d pages, %d links, %d suggestions, %d content gaps",
			r.Graph.Pages, r.Graph.Links, len(r.Suggestions), len(r.ContentGaps))
	case *pipeline.PageAnalysis:
		return fmt.Sprintf("%s: %d actions", r.Diagnostics.URL, len(r.Actions))
	case *pipeline.Roadmap:
		s := fmt.Sprintf("%d pillars, %d planned, %d bridges", len(r.Pillars), len(r.Plans), len(r.Bridges))
		if r.Location != "" {
			s += " for " + r.Location
		}
		return s
	}
	return ""
}

// Analysis renders the primary analysis report.
func Analysis(r *pipeline.Report) string {
	var sections []string

	var head strings.Builder
	fmt.Fprintf(&head, "# Internal link report: %s\n\n", r.SiteURL)
	fmt.Fprintf(&head, "Generated %s with the **%s** strategy. Status: **%s**.\n\n", r.GeneratedAt.Format("2006-01-02 15:04 MST"), r.Strategy, r.Status)
	fmt.Fprintf(&head, "%d pages, %d internal links.", r.Graph.Pages, r.Graph.Links)
	sections = append(sections, head.String())

	if len(r.Failures) > 0 {
		sections = append(sections, failures(r.Failures))
	}

	var auth strings.Builder
	auth.WriteString("## Authority\n\n| Page | Title | Score |\n|---|---|---|\n")
	for _, s := range r.Authority {
		fmt.Fprintf(&auth, "| %s | %s | %.2f |\n", s.URL, cell(s.Title), s.Score)
	}
	sections = append(sections, strings.TrimRight(auth.String(), "\n"))

	if len(r.Opportunities) > 0 {
		var opp strings.Builder
		opp.WriteString("## Search opportunities\n\n| Page | Impressions | CTR | Score |\n|---|---|---|---|\n")
		for _, o := range r.Opportunities {
			fmt.Fprintf(&opp, "| [%s](%s) | %d | %.2f%% | %.0f |\n", cell(o.Title), o.URL, o.TotalImpressions, o.AverageCTR*100, o.OpportunityScore)
		}
		sections = append(sections, strings.TrimRight(opp.String(), "\n"))
	}

	var cl strings.Builder
	cl.WriteString("## Clusters\n")
	for _, c := range r.Clusters {
		fmt.Fprintf(&cl, "\n### %s\n\n%s\n\n", c.Name, c.Theme)
		for _, u := range c.Pages {
			fmt.Fprintf(&cl, "- %s\n", u)
		}
	}
	sections = append(sections, strings.TrimRight(cl.String(), "\n"))

	var sug strings.Builder
	sug.WriteString("## Link suggestions\n")
	if len(r.Suggestions) == 0 {
		sug.WriteString("\nNo new links suggested.")
	}
	for i, s := range r.Suggestions {
		fmt.Fprintf(&sug, "\n%d. **%s** → **%s**\n", i+1, s.SourceURL, s.TargetURL)
		fmt.Fprintf(&sug, "   - Anchors: %s\n", strings.Join(quoted(s.Anchors), ", "))
		fmt.Fprintf(&sug, "   - Where: %s\n", s.InsertionHint)
		fmt.Fprintf(&sug, "   - Why: %s\n", s.Rationale)
		if flags := riskNotes(s.Risks); flags != "" {
			fmt.Fprintf(&sug, "   - Risks: %s\n", flags)
		}
	}
	sections = append(sections, strings.TrimRight(sug.String(), "\n"))

	if len(r.ContentGaps) > 0 {
		var gaps strings.Builder
		gaps.WriteString("## Content gaps\n")
		for _, g := range r.ContentGaps {
			fmt.Fprintf(&gaps, "\n### %s (%s)\n\n%s\n", g.Topic, g.Priority, g.Rationale)
			if g.Cluster != "" {
				fmt.Fprintf(&gaps, "\nExtends cluster: %s\n", g.Cluster)
			}
			for _, m := range g.Metrics {
				fmt.Fprintf(&gaps, "- `%s`: %d searches/month, difficulty %d, %s intent\n", m.Keyword, m.Volume, m.Difficulty, m.Intent)
			}
			if len(g.Metrics) == 0 && len(g.Keywords) > 0 {
				fmt.Fprintf(&gaps, "- Keywords: %s\n", strings.Join(g.Keywords, ", "))
			}
		}
		sections = append(sections, strings.TrimRight(gaps.String(), "\n"))
	}

	return strings.Join(sections, sectionSeparator) + "\n"
}

// Page renders a deep single-page analysis.
func Page(a *pipeline.PageAnalysis) string {
	d := a.Diagnostics
	var sections []string

	var head strings.Builder
	fmt.Fprintf(&head, "# Page analysis: %s\n\n", d.Title)
	fmt.Fprintf(&head, "%s\n\n", d.URL)
	fmt.Fprintf(&head, "- Authority: %.2f / 10\n", d.AuthorityScore)
	fmt.Fprintf(&head, "- Internal links: %d in, %d out\n", d.InboundLinks, d.OutboundLinks)
	if d.Cluster != "" {
		fmt.Fprintf(&head, "- Cluster: %s\n", d.Cluster)
	}
	fmt.Fprintf(&head, "- Search: %d impressions, %d clicks, %.2f%% CTR, position %.1f\n\n", d.Search.Impressions, d.Search.Clicks, d.Search.AverageCTR*100, d.Search.AveragePosition)
	head.WriteString(a.Summary)
	sections = append(sections, head.String())

	var actions strings.Builder
	actions.WriteString("## Action plan\n")
	for i, act := range a.Actions {
		fmt.Fprintf(&actions, "\n%d. **%s** (%s): %s", i+1, act.Title, act.Priority, act.Detail)
	}
	sections = append(sections, actions.String())

	if len(a.Inbound) > 0 {
		sections = append(sections, linkIdeas("## Link to this page from", a.Inbound))
	}
	if len(a.Outbound) > 0 {
		sections = append(sections, linkIdeas("## Link from this page to", a.Outbound))
	}
	if len(a.ContentNotes) > 0 {
		var notes strings.Builder
		notes.WriteString("## Content notes\n")
		for _, n := range a.ContentNotes {
			fmt.Fprintf(&notes, "\n- %s", n)
		}
		sections = append(sections, notes.String())
	}
	return strings.Join(sections, sectionSeparator) + "\n"
}

// Roadmap renders a topical-authority roadmap.
func Roadmap(rm *pipeline.Roadmap) string {
	var sections []string

	var head strings.Builder
	fmt.Fprintf(&head, "# Topical authority roadmap: %s\n\n", rm.SiteURL)
	if rm.Location != "" {
		fmt.Fprintf(&head, "Target location: **%s**\n\n", rm.Location)
	}
	fmt.Fprintf(&head, "Status: **%s**\n\n", rm.Status)
	head.WriteString("## Pillars\n")
	for _, p := range rm.Pillars {
		fmt.Fprintf(&head, "\n- **%s** (%s): %s", p.Name, p.Intent, p.Description)
	}
	sections = append(sections, head.String())

	if len(rm.Failures) > 0 {
		sections = append(sections, failures(rm.Failures))
	}

	for _, plan := range rm.Plans {
		var b strings.Builder
		fmt.Fprintf(&b, "## %s\n", plan.Pillar.Name)
		if len(plan.ExistingPages) > 0 {
			b.WriteString("\nExisting pages:\n\n")
			for _, u := range plan.ExistingPages {
				fmt.Fprintf(&b, "- %s\n", u)
			}
		}
		for _, c := range plan.Clusters {
			fmt.Fprintf(&b, "\n### %s\n\n| Article | Keyword | Intent | Impact |\n|---|---|---|---|\n", c.Name)
			for _, a := range c.Articles {
				fmt.Fprintf(&b, "| %s | %s | %s | %.1f |\n", cell(a.Title), cell(a.TargetKeyword), a.Intent, a.ImpactScore)
			}
		}
		sections = append(sections, strings.TrimRight(b.String(), "\n"))
	}

	if len(rm.Bridges) > 0 {
		var b strings.Builder
		b.WriteString("## Bridges\n")
		for _, br := range rm.Bridges {
			fmt.Fprintf(&b, "\n- **%s** (%s): %s", br.Title, strings.Join(br.Pillars, " + "), br.Rationale)
		}
		sections = append(sections, b.String())
	}

	if len(rm.Unmapped) > 0 {
		var b strings.Builder
		b.WriteString("## Pages outside every pillar\n")
		for _, u := range rm.Unmapped {
			fmt.Fprintf(&b, "\n- %s", u)
		}
		sections = append(sections, b.String())
	}

	return strings.Join(sections, sectionSeparator) + "\n"
}

func failures(fs []pipeline.Failure) string {
	var b strings.Builder
	b.WriteString("## Partial failures\n")
	for _, f := range fs {
		if f.Item != "" {
			fmt.Fprintf(&b, "\n- %s (%s): %s", f.Phase, f.Item, f.Message)
		} else {
			fmt.Fprintf(&b, "\n- %s: %s", f.Phase, f.Message)
		}
	}
	return b.String()
}

func linkIdeas(heading string, ideas []pipeline.LinkIdea) string {
	var b strings.Builder
	b.WriteString(heading + "\n")
	for _, l := range ideas {
		fmt.Fprintf(&b, "\n- %s, anchor %q: %s", l.URL, l.Anchor, l.Reason)
	}
	return b.String()
}

func riskNotes(r pipeline.RiskFlags) string {
	var notes []string
	if !r.TargetReachable {
		notes = append(notes, "target unreachable")
	}
	if !r.Indexable {
		notes = append(notes, "target not indexable")
	}
	if !r.Canonical {
		notes = append(notes, "target not canonical")
	}
	if r.CannibalizationRisk {
		notes = append(notes, "cannibalization risk")
	}
	return strings.Join(notes, ", ")
}

func quoted(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
