package pipeline

import "google.golang.org/genai"

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func num(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeNumber, Description: desc}
}

func boolean(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeBoolean, Description: desc}
}

func list(items *genai.Schema) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: items}
}

func object(props map[string]*genai.Schema, required ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

var clusteringSchema = object(map[string]*genai.Schema{
	"clusters": list(object(map[string]*genai.Schema{
		"name":  str("short cluster label"),
		"theme": str("one sentence describing the theme"),
		"pages": list(str("page URL exactly as given")),
	}, "name", "theme", "pages")),
}, "clusters")

var suggestionSchema = object(map[string]*genai.Schema{
	"suggestions": list(object(map[string]*genai.Schema{
		"sourceUrl":     str("page that should contain the new link"),
		"targetUrl":     str("page the link points to"),
		"anchors":       list(str("anchor text variant")),
		"insertionHint": str("where in the source page the link belongs"),
		"rationale":     str("semantic reason for the link"),
		"risks": object(map[string]*genai.Schema{
			"targetReachable":     boolean("target is a live crawled page"),
			"indexable":           boolean("target is indexable"),
			"canonical":           boolean("target is its own canonical"),
			"cannibalizationRisk": boolean("link may cause keyword cannibalization"),
		}, "targetReachable", "indexable", "canonical", "cannibalizationRisk"),
	}, "sourceUrl", "targetUrl", "anchors", "insertionHint", "rationale", "risks")),
}, "suggestions")

var gapsSchema = object(map[string]*genai.Schema{
	"gaps": list(object(map[string]*genai.Schema{
		"topic":     str("missing content topic"),
		"cluster":   str("cluster the topic belongs to"),
		"rationale": str("why the topic is missing"),
		"keywords":  list(str("search keyword")),
		"priority":  str("high, medium or low"),
	}, "topic", "cluster", "rationale", "keywords", "priority")),
}, "gaps")

var linkIdeaSchema = object(map[string]*genai.Schema{
	"url":    str("page URL"),
	"anchor": str("anchor text"),
	"reason": str("why this link helps"),
}, "url", "anchor", "reason")

var pageSchema = object(map[string]*genai.Schema{
	"summary": str("assessment of the page"),
	"actions": list(object(map[string]*genai.Schema{
		"title":    str("action title"),
		"detail":   str("what to do"),
		"priority": str("high, medium or low"),
	}, "title", "detail", "priority")),
	"inboundSuggestions":  list(linkIdeaSchema),
	"outboundSuggestions": list(linkIdeaSchema),
	"contentNotes":        list(str("content enhancement note")),
}, "summary", "actions", "inboundSuggestions", "outboundSuggestions", "contentNotes")

var pillarSchema = object(map[string]*genai.Schema{
	"name":        str("pillar name"),
	"description": str("what the pillar covers"),
	"intent":      str("primary search intent"),
}, "name", "description", "intent")

var pillarsSchema = object(map[string]*genai.Schema{
	"pillars": list(pillarSchema),
}, "pillars")

var mappingSchema = object(map[string]*genai.Schema{
	"assignments": list(object(map[string]*genai.Schema{
		"url":    str("page URL exactly as given"),
		"pillar": str("pillar name, or empty when no pillar fits"),
	}, "url", "pillar")),
}, "assignments")

var articleSchema = object(map[string]*genai.Schema{
	"title":         str("article title"),
	"targetKeyword": str("primary keyword"),
	"intent":        str("search intent"),
	"impactScore":   num("expected impact from 0 to 10"),
	"rationale":     str("why this article matters"),
}, "title", "targetKeyword", "intent", "impactScore", "rationale")

var pillarPlanSchema = object(map[string]*genai.Schema{
	"clusters": list(object(map[string]*genai.Schema{
		"name":     str("subtopic cluster name"),
		"articles": list(articleSchema),
	}, "name", "articles")),
}, "clusters")

var bridgesSchema = object(map[string]*genai.Schema{
	"bridges": list(object(map[string]*genai.Schema{
		"title":     str("bridge article title"),
		"pillars":   list(str("pillar name")),
		"rationale": str("how it connects the pillars"),
	}, "title", "pillars", "rationale")),
}, "bridges")

var replicationSchema = object(map[string]*genai.Schema{
	"plans": list(object(map[string]*genai.Schema{
		"pillar": pillarSchema,
		"clusters": list(object(map[string]*genai.Schema{
			"name": str("subtopic cluster name"),
			"articles": list(object(map[string]*genai.Schema{
				"title":         str("article title"),
				"targetKeyword": str("primary keyword"),
				"intent":        str("search intent"),
				"rationale":     str("why this article matters"),
			}, "title", "targetKeyword", "intent", "rationale")),
		}, "name", "articles")),
	}, "pillar", "clusters")),
	"bridges": list(object(map[string]*genai.Schema{
		"title":     str("bridge article title"),
		"rationale": str("how it connects the pillars"),
	}, "title", "rationale")),
}, "plans", "bridges")
