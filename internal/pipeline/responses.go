package pipeline

import (
	"fmt"
	"strings"
)

const (
	minClusters    = 4
	maxClusters    = 7
	maxSuggestions = 10
	minPillars     = 2
	maxPillars     = 5
	maxBridges     = 3
)

type clusteringResponse struct {
	Clusters []Cluster `json:"clusters"`

	pageCount int
}

func (r *clusteringResponse) Validate() error {
	lo := min(minClusters, r.pageCount)
	if len(r.Clusters) < lo || len(r.Clusters) > maxClusters {
		return fmt.Errorf("expected %d-%d clusters, got %d", lo, maxClusters, len(r.Clusters))
	}
	for i, c := range r.Clusters {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("cluster %d has no name", i)
		}
	}
	return nil
}

type suggestionResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

func (r *suggestionResponse) Validate() error {
	for i, s := range r.Suggestions {
		if strings.TrimSpace(s.SourceURL) == "" || strings.TrimSpace(s.TargetURL) == "" {
			return fmt.Errorf("suggestion %d is missing a source or target", i)
		}
		if len(s.Anchors) == 0 {
			return fmt.Errorf("suggestion %d has no anchor text", i)
		}
	}
	return nil
}

type gapItem struct {
	Topic     string   `json:"topic"`
	Cluster   string   `json:"cluster"`
	Rationale string   `json:"rationale"`
	Keywords  []string `json:"keywords"`
	Priority  string   `json:"priority"`
}

type gapsResponse struct {
	Gaps []gapItem `json:"gaps"`
}

func (r *gapsResponse) Validate() error {
	for i, g := range r.Gaps {
		if strings.TrimSpace(g.Topic) == "" {
			return fmt.Errorf("gap %d has no topic", i)
		}
	}
	return nil
}

type pageResponse struct {
	Summary      string     `json:"summary"`
	Actions      []Action   `json:"actions"`
	Inbound      []LinkIdea `json:"inboundSuggestions"`
	Outbound     []LinkIdea `json:"outboundSuggestions"`
	ContentNotes []string   `json:"contentNotes"`
}

func (r *pageResponse) Validate() error {
	if strings.TrimSpace(r.Summary) == "" {
		return fmt.Errorf("summary is empty")
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("action plan is empty")
	}
	return nil
}

type pillarsResponse struct {
	Pillars []Pillar `json:"pillars"`
}

func (r *pillarsResponse) Validate() error {
	if len(r.Pillars) < minPillars || len(r.Pillars) > maxPillars {
		return fmt.Errorf("expected %d-%d pillars, got %d", minPillars, maxPillars, len(r.Pillars))
	}
	seen := make(map[string]bool)
	for i, p := range r.Pillars {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if key == "" {
			return fmt.Errorf("pillar %d has no name", i)
		}
		if seen[key] {
			return fmt.Errorf("duplicate pillar %q", p.Name)
		}
		seen[key] = true
	}
	return nil
}

type assignment struct {
	URL    string `json:"url"`
	Pillar string `json:"pillar"`
}

type mappingResponse struct {
	Assignments []assignment `json:"assignments"`
}

func (r *mappingResponse) Validate() error {
	for i, a := range r.Assignments {
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("assignment %d has no url", i)
		}
	}
	return nil
}

type pillarPlanResponse struct {
	Clusters []RoadmapCluster `json:"clusters"`
}

func (r *pillarPlanResponse) Validate() error {
	if len(r.Clusters) == 0 {
		return fmt.Errorf("no clusters in pillar roadmap")
	}
	for i, c := range r.Clusters {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("cluster %d has no name", i)
		}
		if len(c.Articles) == 0 {
			return fmt.Errorf("cluster %q has no articles", c.Name)
		}
		for _, a := range c.Articles {
			if strings.TrimSpace(a.Title) == "" {
				return fmt.Errorf("cluster %q has an untitled article", c.Name)
			}
			if a.ImpactScore < 0 || a.ImpactScore > 10 {
				return fmt.Errorf("article %q impact score %v outside 0-10", a.Title, a.ImpactScore)
			}
		}
	}
	return nil
}

type bridgesResponse struct {
	Bridges []Bridge `json:"bridges"`
}

func (r *bridgesResponse) Validate() error {
	if len(r.Bridges) == 0 || len(r.Bridges) > maxBridges {
		return fmt.Errorf("expected 1-%d bridges, got %d", maxBridges, len(r.Bridges))
	}
	for i, b := range r.Bridges {
		if strings.TrimSpace(b.Title) == "" {
			return fmt.Errorf("bridge %d has no title", i)
		}
	}
	return nil
}

type localizedArticle struct {
	Title         string `json:"title"`
	TargetKeyword string `json:"targetKeyword"`
	Intent        string `json:"intent"`
	Rationale     string `json:"rationale"`
}

type localizedCluster struct {
	Name     string             `json:"name"`
	Articles []localizedArticle `json:"articles"`
}

type localizedPlan struct {
	Pillar   Pillar             `json:"pillar"`
	Clusters []localizedCluster `json:"clusters"`
}

type localizedBridge struct {
	Title     string `json:"title"`
	Rationale string `json:"rationale"`
}

type replicationResponse struct {
	Plans   []localizedPlan   `json:"plans"`
	Bridges []localizedBridge `json:"bridges"`

	original *Roadmap
}

// Validate checks that the localized roadmap has exactly the shape of the
// original so numeric fields can be copied across by position.
func (r *replicationResponse) Validate() error {
	if len(r.Plans) != len(r.original.Plans) {
		return fmt.Errorf("expected %d pillar plans, got %d", len(r.original.Plans), len(r.Plans))
	}
	for i, plan := range r.Plans {
		orig := r.original.Plans[i]
		if len(plan.Clusters) != len(orig.Clusters) {
			return fmt.Errorf("plan %d: expected %d clusters, got %d", i, len(orig.Clusters), len(plan.Clusters))
		}
		for j, c := range plan.Clusters {
			if len(c.Articles) != len(orig.Clusters[j].Articles) {
				return fmt.Errorf("plan %d cluster %d: expected %d articles, got %d",
					i, j, len(orig.Clusters[j].Articles), len(c.Articles))
			}
		}
	}
	if len(r.Bridges) != len(r.original.Bridges) {
		return fmt.Errorf("expected %d bridges, got %d", len(r.original.Bridges), len(r.Bridges))
	}
	return nil
}
