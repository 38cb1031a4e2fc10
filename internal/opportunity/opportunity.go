// Package opportunity ranks pages by unexploited search traffic.
package opportunity

import (
	"sort"

	"github.com/TobiSchelling/linkscope/internal/linkgraph"
)

const (
	// NoiseFloor excludes pages with this many impressions or fewer.
	NoiseFloor = 100
	// TopN bounds the ranked result.
	TopN = 15
)

// SearchRow is one query/page row of search analytics.
type SearchRow struct {
	Query       string  `json:"query"`
	Page        string  `json:"page"`
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	CTR         float64 `json:"ctr"`
	Position    float64 `json:"position"`
}

// Page is a ranked improvement candidate.
type Page struct {
	URL              string  `json:"url"`
	Title            string  `json:"title"`
	OpportunityScore float64 `json:"opportunityScore"`
	TotalImpressions int     `json:"totalImpressions"`
	AverageCTR       float64 `json:"averageCtr"`
}

type accumulator struct {
	impressions int
	weightedCTR float64
}

// Rank groups rows by page and scores each as impressions * (1 - averageCtr),
// where averageCtr is impression-weighted. Pages at or below NoiseFloor
// impressions are dropped and at most TopN pages are returned, best first.
func Rank(rows []SearchRow, titles map[string]string) []Page {
	byPage := make(map[string]*accumulator)
	for _, r := range rows {
		key := linkgraph.Normalize(r.Page)
		acc, ok := byPage[key]
		if !ok {
			acc = &accumulator{}
			byPage[key] = acc
		}
		acc.impressions += r.Impressions
		acc.weightedCTR += r.CTR * float64(r.Impressions)
	}

	var out []Page
	for u, acc := range byPage {
		if acc.impressions <= NoiseFloor {
			continue
		}
		var avg float64
		if acc.impressions > 0 {
			avg = acc.weightedCTR / float64(acc.impressions)
		}
		title := titles[u]
		if title == "" {
			title = u
		}
		out = append(out, Page{
			URL:              u,
			Title:            title,
			OpportunityScore: float64(acc.impressions) * (1 - avg),
			TotalImpressions: acc.impressions,
			AverageCTR:       avg,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].OpportunityScore != out[j].OpportunityScore {
			return out[i].OpportunityScore > out[j].OpportunityScore
		}
		return out[i].URL < out[j].URL
	})
	if len(out) > TopN {
		out = out[:TopN]
	}
	return out
}

// Stats summarizes the rows of a single page.
type Stats struct {
	Impressions     int         `json:"impressions"`
	Clicks          int         `json:"clicks"`
	AverageCTR      float64     `json:"averageCtr"`
	AveragePosition float64     `json:"averagePosition"`
	TopQueries      []SearchRow `json:"topQueries"`
}

// ForPage returns the rows belonging to pageURL.
func ForPage(rows []SearchRow, pageURL string) []SearchRow {
	key := linkgraph.Normalize(pageURL)
	var out []SearchRow
	for _, r := range rows {
		if linkgraph.Normalize(r.Page) == key {
			out = append(out, r)
		}
	}
	return out
}

// Summarize aggregates rows and keeps the top queries by impressions.
func Summarize(rows []SearchRow, topQueries int) Stats {
	var s Stats
	var weightedCTR, weightedPos float64
	for _, r := range rows {
		s.Impressions += r.Impressions
		s.Clicks += r.Clicks
		weightedCTR += r.CTR * float64(r.Impressions)
		weightedPos += r.Position * float64(r.Impressions)
	}
	if s.Impressions > 0 {
		s.AverageCTR = weightedCTR / float64(s.Impressions)
		s.AveragePosition = weightedPos / float64(s.Impressions)
	}

	sorted := append([]SearchRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Impressions > sorted[j].Impressions })
	if len(sorted) > topQueries {
		sorted = sorted[:topQueries]
	}
	s.TopQueries = sorted
	return s
}
