// Package authority ranks pages by the internal-link importance flowing into them.
package authority

import (
	"math"
	"sort"

	"github.com/TobiSchelling/linkscope/internal/collect"
	"github.com/TobiSchelling/linkscope/internal/linkgraph"
)

const (
	// Iterations is the fixed number of power-iteration passes. There is no
	// convergence check: identical input must give identical output.
	Iterations = 20
	// Damping is the share of rank passed along links.
	Damping = 0.85
)

// Score is the normalized 0-10 authority of one page.
type Score struct {
	URL   string  `json:"url"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Raw runs the power iteration over every page in urls plus any page named by
// adj and returns the pre-normalization rank of each.
func Raw(urls []string, adj linkgraph.AdjacencyMap) map[string]float64 {
	nodes := nodeSet(urls, adj)
	inbound := adj.Inbound()
	outdegree := make(map[string]int, len(adj))
	for src, targets := range adj {
		outdegree[src] = len(targets)
	}

	score := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		score[n] = 1.0
	}

	for i := 0; i < Iterations; i++ {
		next := make(map[string]float64, len(nodes))
		for _, p := range nodes {
			var sum float64
			for _, q := range inbound[p] {
				out := outdegree[q]
				if out == 0 {
					continue
				}
				sum += score[q] / float64(out)
			}
			next[p] = (1 - Damping) + Damping*sum
		}
		score = next
	}
	return score
}

// Compute returns normalized scores for every page, highest first. Scores are
// divided by the maximum, scaled to 10 and rounded to two decimals; when the
// maximum is zero every score is zero.
func Compute(pages []collect.Page, adj linkgraph.AdjacencyMap) []Score {
	urls := make([]string, len(pages))
	titles := make(map[string]string, len(pages))
	for i, p := range pages {
		u := linkgraph.Normalize(p.URL)
		urls[i] = u
		titles[u] = p.Title
	}

	raw := Raw(urls, adj)

	var max float64
	for _, s := range raw {
		if s > max {
			max = s
		}
	}

	out := make([]Score, 0, len(raw))
	for u, s := range raw {
		var norm float64
		if max > 0 {
			norm = math.Round(s/max*10*100) / 100
		}
		out = append(out, Score{URL: u, Title: titles[u], Score: norm})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// Titles returns a URL -> title lookup built from scores.
func Titles(scores []Score) map[string]string {
	m := make(map[string]string, len(scores))
	for _, s := range scores {
		m[s.URL] = s.Title
	}
	return m
}

// Lookup returns a URL -> score lookup.
func Lookup(scores []Score) map[string]float64 {
	m := make(map[string]float64, len(scores))
	for _, s := range scores {
		m[s.URL] = s.Score
	}
	return m
}

func nodeSet(urls []string, adj linkgraph.AdjacencyMap) []string {
	seen := make(map[string]struct{}, len(urls))
	var nodes []string
	add := func(u string) {
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		nodes = append(nodes, u)
	}
	for _, u := range urls {
		add(u)
	}
	for _, src := range adj.Sources() {
		add(src)
		for _, t := range adj[src] {
			add(t)
		}
	}
	sort.Strings(nodes)
	return nodes
}
