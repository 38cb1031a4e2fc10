package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/linkscope/internal/authority"
	"github.com/TobiSchelling/linkscope/internal/collect"
	"github.com/TobiSchelling/linkscope/internal/keywords"
	"github.com/TobiSchelling/linkscope/internal/opportunity"
)

// Strategy narrows the candidate pages for link suggestions.
type Strategy string

const (
	StrategyGlobal Strategy = "global"
	StrategyPillar Strategy = "pillar"
	StrategyMoney  Strategy = "money"
)

// ParseStrategy maps user input to a Strategy. Empty input means global.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyGlobal:
		return StrategyGlobal, nil
	case StrategyPillar:
		return StrategyPillar, nil
	case StrategyMoney:
		return StrategyMoney, nil
	}
	return "", &InputError{Field: "strategy", Problem: fmt.Sprintf("unknown strategy %q (want global, pillar or money)", s)}
}

// Status is the lifecycle state of a run.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
	StatusPartiallyFailed Status = "partially_failed"
	StatusFailed          Status = "failed"
)

// InputError reports a missing or malformed request field. Runs that fail
// validation do no work.
type InputError struct {
	Field   string
	Problem string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Problem)
}

// IsInputError reports whether err is an *InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// PhaseResult records the outcome of one phase.
type PhaseResult struct {
	Name     string        `json:"name"`
	Optional bool          `json:"optional"`
	Summary  string        `json:"summary,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failure is an isolated failure that did not abort the run.
type Failure struct {
	Phase   string `json:"phase"`
	Item    string `json:"item,omitempty"`
	Message string `json:"message"`
}

// Cluster is a thematic group of pages.
type Cluster struct {
	Name  string   `json:"name"`
	Theme string   `json:"theme"`
	Pages []string `json:"pages"`
}

// RiskFlags qualify a link suggestion. A true value means the check passed.
type RiskFlags struct {
	TargetReachable     bool `json:"targetReachable"`
	Indexable           bool `json:"indexable"`
	Canonical           bool `json:"canonical"`
	CannibalizationRisk bool `json:"cannibalizationRisk"`
}

// Suggestion is a proposed internal link.
type Suggestion struct {
	SourceURL     string    `json:"sourceUrl"`
	TargetURL     string    `json:"targetUrl"`
	Anchors       []string  `json:"anchors"`
	InsertionHint string    `json:"insertionHint"`
	Rationale     string    `json:"rationale"`
	Risks         RiskFlags `json:"risks"`
}

// ContentGap is a missing topic, optionally enriched with keyword metrics.
type ContentGap struct {
	Topic      string             `json:"topic"`
	Cluster    string             `json:"cluster"`
	Rationale  string             `json:"rationale"`
	Keywords   []string           `json:"keywords"`
	Priority   string             `json:"priority"`
	Metrics    []keywords.Metrics `json:"metrics,omitempty"`
	Enrichment string             `json:"enrichmentError,omitempty"`
}

// GraphStats summarizes the link graph.
type GraphStats struct {
	Pages int `json:"pages"`
	Links int `json:"links"`
}

// Report is the result of a primary analysis run.
type Report struct {
	SiteURL       string             `json:"siteUrl"`
	Strategy      Strategy           `json:"strategy"`
	GeneratedAt   time.Time          `json:"generatedAt"`
	Status        Status             `json:"status"`
	Graph         GraphStats         `json:"graph"`
	Authority     []authority.Score  `json:"authority"`
	Opportunities []opportunity.Page `json:"opportunities"`
	Clusters      []Cluster          `json:"clusters"`
	Suggestions   []Suggestion       `json:"suggestions"`
	ContentGaps   []ContentGap       `json:"contentGaps,omitempty"`
	Phases        []PhaseResult      `json:"phases"`
	Failures      []Failure          `json:"failures,omitempty"`
}

// Diagnostics are the locally computed facts about one page.
type Diagnostics struct {
	URL            string            `json:"url"`
	Title          string            `json:"title"`
	AuthorityScore float64           `json:"authorityScore"`
	InboundLinks   int               `json:"inboundLinks"`
	OutboundLinks  int               `json:"outboundLinks"`
	Cluster        string            `json:"cluster,omitempty"`
	Search         opportunity.Stats `json:"search"`
}

// Action is one step of a page action plan.
type Action struct {
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Priority string `json:"priority"`
}

// LinkIdea proposes a link to or from the analyzed page.
type LinkIdea struct {
	URL    string `json:"url"`
	Anchor string `json:"anchor"`
	Reason string `json:"reason"`
}

// PageAnalysis is the result of a deep single-page analysis.
type PageAnalysis struct {
	SiteURL      string      `json:"siteUrl"`
	GeneratedAt  time.Time   `json:"generatedAt"`
	Status       Status      `json:"status"`
	Diagnostics  Diagnostics `json:"diagnostics"`
	Summary      string      `json:"summary"`
	Actions      []Action    `json:"actions"`
	Inbound      []LinkIdea  `json:"inboundSuggestions"`
	Outbound     []LinkIdea  `json:"outboundSuggestions"`
	ContentNotes []string    `json:"contentNotes"`
}

// Pillar is a top-level strategic topic.
type Pillar struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Intent      string `json:"intent"`
}

// ArticleIdea is a proposed piece of content within a roadmap cluster.
type ArticleIdea struct {
	Title         string  `json:"title"`
	TargetKeyword string  `json:"targetKeyword"`
	Intent        string  `json:"intent"`
	ImpactScore   float64 `json:"impactScore"`
	Rationale     string  `json:"rationale"`
}

// RoadmapCluster groups article ideas under a subtopic.
type RoadmapCluster struct {
	Name     string        `json:"name"`
	Articles []ArticleIdea `json:"articles"`
}

// PillarPlan is the content roadmap for one pillar.
type PillarPlan struct {
	Pillar        Pillar           `json:"pillar"`
	ExistingPages []string         `json:"existingPages"`
	Clusters      []RoadmapCluster `json:"clusters"`
}

// Bridge is content connecting two or more pillars.
type Bridge struct {
	Title     string   `json:"title"`
	Pillars   []string `json:"pillars"`
	Rationale string   `json:"rationale"`
}

// Roadmap is the result of a topical-authority roadmap or replication run.
type Roadmap struct {
	SiteURL         string       `json:"siteUrl"`
	BusinessContext string       `json:"businessContext"`
	Location        string       `json:"location,omitempty"`
	GeneratedAt     time.Time    `json:"generatedAt"`
	Status          Status       `json:"status"`
	Pillars         []Pillar     `json:"pillars"`
	Plans           []PillarPlan `json:"plans"`
	Unmapped        []string     `json:"unmappedPages,omitempty"`
	Bridges         []Bridge     `json:"bridges,omitempty"`
	Failures        []Failure    `json:"failures,omitempty"`
}

// AnalyzeRequest starts a primary run. Pages are collected from the site
// when none are supplied.
type AnalyzeRequest struct {
	SiteURL    string                  `json:"siteUrl"`
	Strategy   Strategy                `json:"strategy"`
	Pages      []collect.Page          `json:"pages,omitempty"`
	SearchRows []opportunity.SearchRow `json:"searchRows,omitempty"`
}

// PageRequest asks for a deep analysis of one page.
type PageRequest struct {
	SiteURL    string                  `json:"siteUrl"`
	PageURL    string                  `json:"pageUrl"`
	Cluster    string                  `json:"cluster,omitempty"`
	Pages      []collect.Page          `json:"pages,omitempty"`
	SearchRows []opportunity.SearchRow `json:"searchRows,omitempty"`
}

// RoadmapRequest asks for a topical-authority roadmap.
type RoadmapRequest struct {
	SiteURL         string         `json:"siteUrl"`
	BusinessContext string         `json:"businessContext"`
	Location        string         `json:"location,omitempty"`
	Pages           []collect.Page `json:"pages,omitempty"`
}

// ReplicateRequest re-localizes an existing roadmap.
type ReplicateRequest struct {
	Roadmap  *Roadmap `json:"roadmap"`
	Location string   `json:"location"`
}
