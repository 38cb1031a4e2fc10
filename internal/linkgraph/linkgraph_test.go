package linkgraph

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/TobiSchelling/linkscope/internal/collect"
)

func TestBuildResolvesAndFilters(t *testing.T) {
	pages := []collect.Page{
		{URL: "https://example.com/a", Body: `
			<a href="/b">relative</a>
			<a href="https://example.com/c#section">fragment</a>
			<a href="c">relative sibling</a>
			<a href="https://other.com/b">external</a>
			<a href="mailto:me@example.com">mail</a>
			<a href="tel:+123">tel</a>
			<a href="#top">anchor</a>
			<a href="http://[::1]:namedport">malformed</a>
			<a href="/not-crawled">missing</a>
			<a href="/b">duplicate</a>`},
		{URL: "https://example.com/b", Body: `<a href="/b">self</a>`},
		{URL: "https://example.com/c", Body: `<p>no links</p>`},
	}

	adj, err := Build(pages, "https://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := AdjacencyMap{
		"https://example.com/a": {"https://example.com/b", "https://example.com/c"},
		"https://example.com/b": {"https://example.com/b"},
	}
	if diff := cmp.Diff(want, adj); diff != "" {
		t.Errorf("adjacency mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildInvalidRoot(t *testing.T) {
	if _, err := Build(nil, "not a url"); err == nil {
		t.Error("expected error for invalid site root")
	}
}

func TestInboundAndLinksTo(t *testing.T) {
	adj := AdjacencyMap{
		"https://example.com/a": {"https://example.com/c"},
		"https://example.com/b": {"https://example.com/c"},
	}
	in := adj.Inbound()
	if diff := cmp.Diff([]string{"https://example.com/a", "https://example.com/b"}, in["https://example.com/c"]); diff != "" {
		t.Errorf("inbound mismatch (-want +got):\n%s", diff)
	}
	if !adj.LinksTo("https://example.com/a", "https://example.com/c#x") {
		t.Error("expected a to link to c")
	}
	if adj.LinksTo("https://example.com/c", "https://example.com/a") {
		t.Error("did not expect c to link to a")
	}
	if adj.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", adj.EdgeCount())
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("https://Example.com/x?q=1#frag"); got != "https://example.com/x?q=1" {
		t.Errorf("unexpected normalized url %q", got)
	}
}
