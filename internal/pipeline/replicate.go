package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/TobiSchelling/linkscope/internal/events"
)

const phaseReplicate = "replication"

// Replicate re-localizes every textual field of a roadmap for a new location.
// The structure must come back unchanged; numeric scores and page URLs are
// copied from the original rather than trusted from the response.
func (p *Pipeline) Replicate(ctx context.Context, req ReplicateRequest, em *events.Emitter) (*Roadmap, error) {
	r := newRun("replicate", em, 1)

	if req.Roadmap == nil || len(req.Roadmap.Plans) == 0 {
		return nil, r.fail("validation", &InputError{Field: "roadmap", Problem: "a roadmap with at least one pillar plan is required"})
	}
	location := strings.TrimSpace(req.Location)
	if location == "" {
		return nil, r.fail("validation", &InputError{Field: "location", Problem: "is required"})
	}
	orig := req.Roadmap

	started := r.begin(phaseReplicate, fmt.Sprintf("Localizing roadmap for %s...", location))
	source, err := json.MarshalIndent(localizable(orig), "", "  ")
	if err != nil {
		return nil, r.fail(phaseReplicate, eris.Wrap(err, "encoding roadmap"))
	}

	resp := &replicationResponse{original: orig}
	prompt := fmt.Sprintf(replicationPrompt, location, location, source)
	if err := p.gen.Generate(ctx, r.em, phaseReplicate, prompt, replicationSchema, resp); err != nil {
		return nil, r.fail(phaseReplicate, err)
	}
	r.succeed(phaseReplicate, false, started, fmt.Sprintf("%d pillar plans localized", len(resp.Plans)))

	out := merge(orig, resp)
	out.Location = location
	out.GeneratedAt = p.now()
	out.Status = r.finish()
	r.emitDone(out)
	return out, nil
}

// localizable strips a roadmap down to the fields sent for localization.
func localizable(rm *Roadmap) replicationResponse {
	var out replicationResponse
	for _, plan := range rm.Plans {
		lp := localizedPlan{Pillar: plan.Pillar}
		for _, c := range plan.Clusters {
			lc := localizedCluster{Name: c.Name}
			for _, a := range c.Articles {
				lc.Articles = append(lc.Articles, localizedArticle{
					Title:         a.Title,
					TargetKeyword: a.TargetKeyword,
					Intent:        a.Intent,
					Rationale:     a.Rationale,
				})
			}
			lp.Clusters = append(lp.Clusters, lc)
		}
		out.Plans = append(out.Plans, lp)
	}
	for _, b := range rm.Bridges {
		out.Bridges = append(out.Bridges, localizedBridge{Title: b.Title, Rationale: b.Rationale})
	}
	if out.Bridges == nil {
		out.Bridges = []localizedBridge{}
	}
	return out
}

// merge builds the localized roadmap. resp has already been validated to
// match orig's shape position by position.
func merge(orig *Roadmap, resp *replicationResponse) *Roadmap {
	out := &Roadmap{
		SiteURL:         orig.SiteURL,
		BusinessContext: orig.BusinessContext,
		Unmapped:        append([]string(nil), orig.Unmapped...),
	}

	localized := make(map[string]Pillar, len(orig.Plans))
	for i, plan := range orig.Plans {
		lp := resp.Plans[i]
		localized[plan.Pillar.Name] = lp.Pillar

		np := PillarPlan{
			Pillar:        lp.Pillar,
			ExistingPages: append([]string(nil), plan.ExistingPages...),
		}
		for j, c := range plan.Clusters {
			lc := lp.Clusters[j]
			nc := RoadmapCluster{Name: lc.Name}
			for k, a := range c.Articles {
				la := lc.Articles[k]
				nc.Articles = append(nc.Articles, ArticleIdea{
					Title:         la.Title,
					TargetKeyword: la.TargetKeyword,
					Intent:        la.Intent,
					ImpactScore:   a.ImpactScore,
					Rationale:     la.Rationale,
				})
			}
			np.Clusters = append(np.Clusters, nc)
		}
		out.Plans = append(out.Plans, np)
	}

	// Pillars whose plan failed keep their original text.
	for _, pillar := range orig.Pillars {
		if lp, ok := localized[pillar.Name]; ok {
			pillar = lp
		}
		out.Pillars = append(out.Pillars, pillar)
	}

	for i, b := range orig.Bridges {
		lb := resp.Bridges[i]
		nb := Bridge{Title: lb.Title, Rationale: lb.Rationale}
		for _, name := range b.Pillars {
			if lp, ok := localized[name]; ok {
				name = lp.Name
			}
			nb.Pillars = append(nb.Pillars, name)
		}
		out.Bridges = append(out.Bridges, nb)
	}
	return out
}
