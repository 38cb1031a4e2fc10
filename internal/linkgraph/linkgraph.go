// Package linkgraph builds the internal link graph of a site from page HTML.
package linkgraph

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/TobiSchelling/linkscope/internal/collect"
)

// AdjacencyMap maps a source page URL to the sorted, de-duplicated set of
// crawled page URLs it links to. Pages without internal links have no key.
type AdjacencyMap map[string][]string

// Build scans every page body for hyperlinks and keeps those that resolve to
// another crawled page on the site's host.
func Build(pages []collect.Page, siteRoot string) (AdjacencyMap, error) {
	root, err := url.Parse(strings.TrimSpace(siteRoot))
	if err != nil || root.Host == "" {
		return nil, fmt.Errorf("invalid site root %q", siteRoot)
	}
	host := strings.ToLower(root.Host)

	crawled := make(map[string]struct{}, len(pages))
	for _, p := range pages {
		crawled[Normalize(p.URL)] = struct{}{}
	}

	adj := make(AdjacencyMap)
	for _, p := range pages {
		source := Normalize(p.URL)
		base, err := url.Parse(source)
		if err != nil {
			continue
		}

		targets := make(map[string]struct{})
		for _, target := range extractLinks(p.Body, base, host) {
			if _, ok := crawled[target]; ok {
				targets[target] = struct{}{}
			}
		}
		if len(targets) == 0 {
			continue
		}

		list := make([]string, 0, len(targets))
		for t := range targets {
			list = append(list, t)
		}
		sort.Strings(list)
		adj[source] = append(adj[source], list...)
	}

	// Pages listed twice under equivalent URLs can leave duplicates behind.
	for src, targets := range adj {
		adj[src] = dedupeSorted(targets)
	}

	zap.L().Debug("built link graph", zap.Int("pages", len(pages)), zap.Int("sources", len(adj)), zap.Int("edges", adj.EdgeCount()))
	return adj, nil
}

// Normalize returns the URL with its fragment removed. Unparseable input is
// returned unchanged.
func Normalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// EdgeCount returns the number of distinct source->target links.
func (a AdjacencyMap) EdgeCount() int {
	n := 0
	for _, targets := range a {
		n += len(targets)
	}
	return n
}

// Inbound returns, for each target, the sorted list of pages linking to it.
func (a AdjacencyMap) Inbound() map[string][]string {
	in := make(map[string][]string)
	for _, src := range a.Sources() {
		for _, t := range a[src] {
			in[t] = append(in[t], src)
		}
	}
	return in
}

// Sources returns the map keys in sorted order.
func (a AdjacencyMap) Sources() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LinksTo reports whether source already links to target.
func (a AdjacencyMap) LinksTo(source, target string) bool {
	targets := a[Normalize(source)]
	i := sort.SearchStrings(targets, Normalize(target))
	return i < len(targets) && targets[i] == Normalize(target)
}

func extractLinks(body string, base *url.URL, host string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if strings.ToLower(abs.Host) != host {
			return
		}
		links = append(links, Normalize(abs.String()))
	})
	return links
}

func dedupeSorted(in []string) []string {
	sort.Strings(in)
	out := in[:0]
	for i, v := range in {
		if i > 0 && v == in[i-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}
