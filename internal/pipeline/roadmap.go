package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/linkscope/internal/events"
	"github.com/TobiSchelling/linkscope/internal/linkgraph"
)

const (
	phasePillars    = "pillar discovery"
	phaseMapping    = "page mapping"
	phasePillarPlan = "pillar roadmap"
	phaseBridges    = "bridges"
)

// BuildRoadmap discovers content pillars, maps existing pages onto them,
// plans each pillar concurrently and finally tries to add bridge content.
// A failed pillar is recorded and does not cancel the others; bridge failures
// are dropped silently.
func (p *Pipeline) BuildRoadmap(ctx context.Context, req RoadmapRequest, em *events.Emitter) (*Roadmap, error) {
	r := newRun("roadmap", em, 5)

	if err := validateSiteURL(req.SiteURL); err != nil {
		return nil, r.fail("validation", err)
	}
	if strings.TrimSpace(req.BusinessContext) == "" {
		return nil, r.fail("validation", &InputError{Field: "businessContext", Problem: "is required"})
	}

	started := r.begin(phaseCollect, "Collecting pages...")
	pages, err := p.loadPages(ctx, req.SiteURL, req.Pages)
	if err != nil {
		return nil, r.fail(phaseCollect, err)
	}
	g, err := buildGraph(pages, req.SiteURL)
	if err != nil {
		return nil, r.fail(phaseCollect, err)
	}
	r.succeed(phaseCollect, false, started, fmt.Sprintf("%d pages", len(pages)))

	locationLine := ""
	if loc := strings.TrimSpace(req.Location); loc != "" {
		locationLine = fmt.Sprintf("Target location: %s\n", loc)
	}

	started = r.begin(phasePillars, "Discovering content pillars...")
	pillars := &pillarsResponse{}
	prompt := fmt.Sprintf(pillarsPrompt, req.SiteURL, req.BusinessContext, locationLine, formatPageList(g, false), minPillars, maxPillars)
	if err := p.gen.Generate(ctx, r.em, phasePillars, prompt, pillarsSchema, pillars); err != nil {
		return nil, r.fail(phasePillars, err)
	}
	r.succeed(phasePillars, false, started, fmt.Sprintf("%d pillars", len(pillars.Pillars)))

	started = r.begin(phaseMapping, "Mapping pages to pillars...")
	mapping := &mappingResponse{}
	prompt = fmt.Sprintf(mappingPrompt, req.SiteURL, formatPillars(pillars.Pillars), formatPageList(g, false))
	if err := p.gen.Generate(ctx, r.em, phaseMapping, prompt, mappingSchema, mapping); err != nil {
		return nil, r.fail(phaseMapping, err)
	}
	byPillar, unmapped := assignPages(pillars.Pillars, mapping.Assignments, g)
	r.succeed(phaseMapping, false, started, fmt.Sprintf("%d pages unmapped", len(unmapped)))

	started = r.begin(phasePillarPlan, fmt.Sprintf("Planning %d pillars in parallel...", len(pillars.Pillars)))
	plans := p.planPillars(ctx, r, req, locationLine, pillars.Pillars, byPillar)
	if len(plans) == 0 {
		return nil, r.fail(phasePillarPlan, eris.New("every pillar roadmap failed"))
	}
	r.succeed(phasePillarPlan, false, started, fmt.Sprintf("%d of %d pillars planned", len(plans), len(pillars.Pillars)))

	started = r.begin(phaseBridges, "Looking for cross-pillar bridges...")
	bridges := p.bridges(ctx, r, req, plans)
	r.succeed(phaseBridges, true, started, fmt.Sprintf("%d bridges", len(bridges)))

	status := r.finish()
	_, failures := r.snapshot()
	roadmap := &Roadmap{
		SiteURL:         req.SiteURL,
		BusinessContext: req.BusinessContext,
		Location:        strings.TrimSpace(req.Location),
		GeneratedAt:     p.now(),
		Status:          status,
		Pillars:         pillars.Pillars,
		Plans:           plans,
		Unmapped:        unmapped,
		Bridges:         bridges,
		Failures:        failures,
	}
	r.emitDone(roadmap)
	return roadmap, nil
}

// assignPages maps each crawled page to at most one pillar. The first
// assignment for a URL wins; unknown pillars and URLs are ignored.
func assignPages(pillars []Pillar, assignments []assignment, g *graph) (map[string][]string, []string) {
	names := make(map[string]string, len(pillars))
	for _, p := range pillars {
		names[strings.ToLower(strings.TrimSpace(p.Name))] = p.Name
	}

	byPillar := make(map[string][]string)
	assigned := make(map[string]bool)
	for _, a := range assignments {
		u := linkgraph.Normalize(a.URL)
		if !g.crawled[u] || assigned[u] {
			continue
		}
		name, ok := names[strings.ToLower(strings.TrimSpace(a.Pillar))]
		if !ok {
			continue
		}
		assigned[u] = true
		byPillar[name] = append(byPillar[name], u)
	}

	var unmapped []string
	for _, u := range g.urls() {
		if !assigned[u] {
			unmapped = append(unmapped, u)
		}
	}
	return byPillar, unmapped
}

// planPillars runs one roadmap request per pillar concurrently. Each
// goroutine writes only its own slot; failures are recorded per pillar.
func (p *Pipeline) planPillars(ctx context.Context, r *run, req RoadmapRequest, locationLine string, pillars []Pillar, byPillar map[string][]string) []PillarPlan {
	results := make([]*PillarPlan, len(pillars))

	var eg errgroup.Group
	for i, pillar := range pillars {
		eg.Go(func() error {
			existing := byPillar[pillar.Name]
			prompt := fmt.Sprintf(pillarPlanPrompt,
				pillar.Name, req.SiteURL, pillar.Description, pillar.Intent,
				req.BusinessContext, locationLine, formatURLs(existing))

			resp := &pillarPlanResponse{}
			if err := p.gen.Generate(ctx, r.em, phasePillarPlan, prompt, pillarPlanSchema, resp); err != nil {
				r.isolate(phasePillarPlan, pillar.Name, err)
				r.em.Progress(fmt.Sprintf("Pillar %q failed: %v", pillar.Name, err))
				return nil
			}
			results[i] = &PillarPlan{Pillar: pillar, ExistingPages: existing, Clusters: resp.Clusters}
			r.em.Progress(fmt.Sprintf("Pillar %q planned", pillar.Name))
			return nil
		})
	}
	eg.Wait()

	var plans []PillarPlan
	for _, res := range results {
		if res != nil {
			plans = append(plans, *res)
		}
	}
	return plans
}

// bridges is best effort: any failure yields no bridges and no recorded failure.
func (p *Pipeline) bridges(ctx context.Context, r *run, req RoadmapRequest, plans []PillarPlan) []Bridge {
	if len(plans) < 2 {
		return nil
	}
	pillars := make([]Pillar, len(plans))
	for i, plan := range plans {
		pillars[i] = plan.Pillar
	}

	resp := &bridgesResponse{}
	prompt := fmt.Sprintf(bridgesPrompt, req.SiteURL, formatPillars(pillars), req.BusinessContext, maxBridges)
	if err := p.gen.Generate(ctx, r.em, phaseBridges, prompt, bridgesSchema, resp); err != nil {
		zap.L().Info("bridge suggestions omitted", zap.Error(err))
		return nil
	}
	return resp.Bridges
}

func formatPillars(pillars []Pillar) string {
	var b strings.Builder
	for _, p := range pillars {
		fmt.Fprintf(&b, "- %s: %s (intent: %s)\n", p.Name, p.Description, p.Intent)
	}
	return b.String()
}
