package pipeline

const clusteringPrompt = `You are an information architect auditing the content of %s.

Group ALL of the pages below into between %d and %d thematic clusters. Every page must appear in exactly one cluster. Use the page URLs exactly as given.

Pages:
%s

Respond with ONLY JSON: {"clusters": [{"name": "...", "theme": "...", "pages": ["https://..."]}]}`

const suggestionPrompt = `You are an SEO specialist planning internal links for %s.

%s

Authority scores (0-10, higher means more internal link equity):
%s

Thematic clusters:
%s

Pages with the most unexploited search traffic:
%s

Candidate source pages:
%s

Candidate target pages:
%s

Propose up to %d new internal links. For each give the source and target URL, two or three anchor text variants (exact, partial and descriptive), a hint for where in the source page the link belongs, the semantic rationale, and risk flags: whether the target is reachable, indexable and canonical, and whether the link risks keyword cannibalization. Only use URLs from the lists above.`

const strategyGlobal = `Strategy: global. Distribute authority across the whole site so that weak but relevant pages receive links from strong ones.`

const strategyPillar = `Strategy: pillar. Strengthen each cluster's hub page by linking cluster members to it and the hub back to its members.`

const strategyMoney = `Strategy: money. Concentrate authority on the pages with the highest commercial search opportunity, sourcing links from the strongest pages.`

const gapsPrompt = `You are a content strategist for %s.

Thematic clusters of existing content:
%s

Pages with high impressions but weak click-through:
%s

Top search queries:
%s

Identify up to 8 content topics the site is missing. For each give the topic, the cluster it extends, the rationale, 1-3 target keywords and a priority (high, medium or low).`

const pagePrompt = `You are an SEO specialist reviewing a single page of %s.

Diagnostics:
- URL: %s
- Title: %s
- Authority score: %.2f / 10
- Internal links in: %d, out: %d
- Cluster: %s
- Search: %d impressions, %d clicks, %.2f%% CTR, average position %.1f

Top queries for this page:
%s

Other pages on the site:
%s

Page content:
%s

Write an authority-aware action plan. Include a short assessment, prioritized actions, pages that should link TO this page, pages this page should link out to, and content enhancement notes. Only suggest URLs from the list of site pages.`

const pillarsPrompt = `You are planning topical authority for %s.

Business context:
%s
%s
Existing page titles:
%s

Propose between %d and %d strategic content pillars: broad topics the business should own. For each give a name, a description and the primary search intent.`

const mappingPrompt = `Assign each existing page of %s to exactly one of these content pillars, or to none when no pillar fits.

Pillars:
%s

Pages:
%s

Use the page URLs exactly as given and pillar names exactly as given; use an empty pillar for pages that fit none.`

const pillarPlanPrompt = `You are building a content roadmap for the pillar "%s" on %s.

Pillar description: %s
Primary intent: %s
Business context: %s
%s
Existing pages in this pillar:
%s

Identify the content gaps for this pillar. Group new article ideas into 2-5 subtopic clusters. For each article give a title, a target keyword, the search intent, an impact score from 0 to 10 and a rationale.`

const bridgesPrompt = `These content pillars were planned for %s:
%s

Business context: %s

Propose 1 to %d bridge articles that connect two or more pillars and pass authority between them. Name the pillars each one connects.`

const replicationPrompt = `Adapt this content roadmap for a new target location: %s.

Rewrite every textual field (pillar names and descriptions, intents, cluster names, article titles, target keywords, rationales and bridge titles) so it fits the local market, language conventions and search behavior of %s. Keep exactly the same structure: the same number of plans in the same order, the same clusters and articles in the same order, and the same bridges.

Roadmap:
%s`
