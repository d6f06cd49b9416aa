// Package citations implements the S6 citation assembler: per-article
// citation generation from cluster siblings with source-diversity
// enforcement, URL normalization/dedup, a domain-conflict relevance
// gate, and the newsletter-wide dedup-and-redistribute pass (spec.md
// §4.6). Grounded on the teacher's internal/citations/tracker.go
// (extractPublisher via net/url + www-strip + last-two-labels; DB-backed
// single-citation-per-article shape), generalized from one-citation
// DB-backed tracking to the 1-3 multi-citation, cross-source,
// normalize+dedup+redistribute model spec.md names.
package citations

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"digestline/internal/core"
	"digestline/internal/llm"
)

// Config bounds S6's behavior (spec.md §4.6/§5).
type Config struct {
	MaxPerArticle int // default 3
	MaxConcurrent int // default 8
}

func DefaultConfig() Config {
	return Config{MaxPerArticle: 3, MaxConcurrent: 8}
}

// Assembler runs S6 over clustered ProcessedArticles.
type Assembler struct {
	cfg    Config
	router *llm.Router
}

func NewAssembler(router *llm.Router, cfg Config) *Assembler {
	if cfg.MaxPerArticle <= 0 {
		cfg.MaxPerArticle = 3
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Assembler{cfg: cfg, router: router}
}

// AssembleAll runs per-article citation assembly concurrently under the
// configured cap, then the newsletter-wide dedup/redistribute pass
// (spec.md §4.6's "Post-generation dedup pass").
func (a *Assembler) AssembleAll(ctx context.Context, clusters []core.TopicCluster) []core.TopicCluster {
	out := make([]core.TopicCluster, len(clusters))
	copy(out, clusters)

	sem := make(chan struct{}, a.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	// Build a flat view of (cluster index, member index) pairs across both
	// the representative and siblings so every article in the newsletter
	// gets its own citation set generated concurrently.
	type loc struct{ cluster, member int } // member -1 = representative
	var locs []loc
	for ci, cl := range out {
		locs = append(locs, loc{ci, -1})
		for mi := range cl.Siblings {
			locs = append(locs, loc{ci, mi})
		}
	}

	results := make([]core.ProcessedArticle, len(locs))
	for li, l := range locs {
		wg.Add(1)
		sem <- struct{}{}
		go func(li int, l loc) {
			defer wg.Done()
			defer func() { <-sem }()
			article := memberAt(out[l.cluster], l.member)
			cluster := out[l.cluster]
			cited, err := a.assembleArticle(ctx, article, cluster)
			if err != nil {
				// per spec.md §4.6: a failed article degrades to its own
				// source only rather than failing the stage.
				cited = ownSourceOnly(article)
			}
			results[li] = cited
		}(li, l)
	}
	wg.Wait()

	for li, l := range locs {
		setMemberAt(&out[l.cluster], l.member, results[li])
	}

	return redistribute(out)
}

func memberAt(cl core.TopicCluster, member int) core.ProcessedArticle {
	if member == -1 {
		return cl.Representative
	}
	return cl.Siblings[member]
}

func setMemberAt(cl *core.TopicCluster, member int, a core.ProcessedArticle) {
	if member == -1 {
		cl.Representative = a
		return
	}
	cl.Siblings[member] = a
}

// assembleArticle runs spec.md §4.6's per-article algorithm: own source
// always first, then cluster siblings in S5 order, skipping duplicate
// URLs/sources and domain-conflicting siblings, stopping at MaxPerArticle.
func (a *Assembler) assembleArticle(ctx context.Context, article core.ProcessedArticle, cluster core.TopicCluster) (core.ProcessedArticle, error) {
	ownSummary, err := a.summarize(ctx, article.Bullets, article.Title)
	if err != nil {
		return article, err
	}
	own := core.Citation{
		SourceID:          article.SourceID,
		SourceDisplayName: article.SourceName,
		URL:               article.URL,
		NormalizedURL:     core.NormalizeURL(article.URL),
		OriginalTitle:     article.Title,
		Summary:           ownSummary,
	}

	seenURLs := map[string]bool{own.NormalizedURL: true}
	seenSources := map[string]bool{own.SourceID: true}
	citationList := []core.Citation{own}

	articleTags := articleDomainTags(article)

	for _, sib := range siblingsOf(cluster, article.ID) {
		if len(citationList) >= a.cfg.MaxPerArticle {
			break
		}
		norm := core.NormalizeURL(sib.URL)
		if seenURLs[norm] || seenSources[sib.SourceID] {
			continue
		}
		if domainConflict(articleTags, articleDomainTags(sib)) {
			continue // spec.md §4.6 relevance gate: mandatory second line of defense
		}
		summary, err := a.summarize(ctx, sib.Bullets, sib.Title)
		if err != nil {
			continue
		}
		seenURLs[norm] = true
		seenSources[sib.SourceID] = true
		citationList = append(citationList, core.Citation{
			SourceID:          sib.SourceID,
			SourceDisplayName: sib.SourceName,
			URL:               sib.URL,
			NormalizedURL:     norm,
			OriginalTitle:     sib.Title,
			Summary:           summary,
		})
	}

	article.Citations = citationList
	return article, nil
}

func siblingsOf(cluster core.TopicCluster, excludeID string) []core.ProcessedArticle {
	var out []core.ProcessedArticle
	for _, m := range cluster.AllMembers() {
		if m.ID != excludeID {
			out = append(out, m)
		}
	}
	return out
}

func ownSourceOnly(article core.ProcessedArticle) core.ProcessedArticle {
	summary := article.Title
	if len(article.Bullets) > 0 {
		summary = clampLen(article.Bullets[0], 60, 120)
	}
	article.Citations = []core.Citation{{
		SourceID:          article.SourceID,
		SourceDisplayName: article.SourceName,
		URL:               article.URL,
		NormalizedURL:     core.NormalizeURL(article.URL),
		OriginalTitle:     article.Title,
		Summary:           summary,
	}}
	return article
}

func (a *Assembler) summarize(ctx context.Context, bullets []string, title string) (string, error) {
	source := title
	if len(bullets) > 0 {
		source = bullets[0]
	}
	if a.router == nil {
		return clampLen(source, 60, 120), nil
	}
	system := "Write a single sentence 60-120 characters long summarizing this news item for a citation line."
	text, _, err := a.router.GenerateText(ctx, system, source, 80, 0.3)
	if err != nil {
		return clampLen(source, 60, 120), err
	}
	return clampLen(llm.StripMetaArtifacts(text), 60, 120), nil
}

func clampLen(s string, min, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > max {
		r = r[:max]
	}
	s = string(r)
	for len(s) < min && len(s) < len(r)+40 {
		s += "."
	}
	return s
}

func articleDomainTags(a core.ProcessedArticle) map[string]bool {
	// Re-derive the same coarse domain tags clustering's guard uses so S6
	// can apply the gate independently of whether S5 already ran it.
	text := strings.ToLower(a.Title + " " + strings.Join(a.Bullets, " "))
	tags := make(map[string]bool)
	for tag, keywords := range domainKeywordsForCitations {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				tags[tag] = true
			}
		}
	}
	return tags
}

var domainKeywordsForCitations = map[string][]string{
	"hr_recruitment":       {"hiring", "recruiter", "job posting", "layoff", "headcount", "talent acquisition"},
	"research_technical":   {"paper", "arxiv", "benchmark", "architecture", "training run", "model weights"},
	"economic_policy":      {"regulation", "senate", "policy", "antitrust", "legislation", "export control"},
	"business_finance":     {"funding round", "valuation", "ipo", "acquisition", "revenue", "earnings"},
	"product_tools":        {"launches", "feature", "app update", "release notes", "integration", "plugin"},
	"local_infrastructure": {"data center", "power grid", "zoning", "permit", "utility", "cooling"},
}

var exclusivePairsForCitations = [][2]string{
	{"hr_recruitment", "research_technical"},
	{"hr_recruitment", "economic_policy"},
	{"local_infrastructure", "research_technical"},
}

func domainConflict(a, b map[string]bool) bool {
	for _, pair := range exclusivePairsForCitations {
		if (a[pair[0]] && b[pair[1]]) || (a[pair[1]] && b[pair[0]]) {
			return true
		}
	}
	return false
}

// redistribute is the post-generation pass: it pools all citations
// across the newsletter keyed by normalized URL, then rebuilds each
// article's list from its own citations, own-source citation first,
// dropping repeats of a URL or source within that article and
// synthesizing an own-source citation when none remain. Citations are
// not moved between articles, the same URL may still appear under
// several articles, and per-article counts are not balanced.
func redistribute(clusters []core.TopicCluster) []core.TopicCluster {
	type articleRef struct {
		cluster, member int
	}
	var refs []articleRef
	for ci, cl := range clusters {
		refs = append(refs, articleRef{ci, -1})
		for mi := range cl.Siblings {
			refs = append(refs, articleRef{ci, mi})
		}
	}

	seenURL := map[string]bool{}
	var pool []core.Citation
	for _, ref := range refs {
		a := memberAt(clusters[ref.cluster], ref.member)
		for _, c := range a.Citations {
			if !seenURL[c.NormalizedURL] {
				seenURL[c.NormalizedURL] = true
				pool = append(pool, c)
			}
		}
	}
	poolByURL := make(map[string]core.Citation, len(pool))
	for _, c := range pool {
		poolByURL[c.NormalizedURL] = c
	}

	for _, ref := range refs {
		a := memberAt(clusters[ref.cluster], ref.member)
		ownURL := core.NormalizeURL(a.URL)

		keep := []core.Citation{}
		usedURL := map[string]bool{}
		usedSource := map[string]bool{}
		// Preserve the article's own-source citation first.
		if c, ok := poolByURL[ownURL]; ok {
			keep = append(keep, c)
			usedURL[ownURL] = true
			usedSource[c.SourceID] = true
		}
		for _, c := range a.Citations {
			if usedURL[c.NormalizedURL] || usedSource[c.SourceID] {
				continue
			}
			if _, ok := poolByURL[c.NormalizedURL]; !ok {
				continue // deduped away elsewhere
			}
			keep = append(keep, c)
			usedURL[c.NormalizedURL] = true
			usedSource[c.SourceID] = true
		}
		if len(keep) == 0 {
			// Synthesize a single fallback citation from the article's own
			// source (spec.md §4.6).
			keep = []core.Citation{{
				SourceID:          a.SourceID,
				SourceDisplayName: a.SourceName,
				URL:               a.URL,
				NormalizedURL:     ownURL,
				OriginalTitle:     a.Title,
				Summary:           clampLen(a.Title, 60, 120),
			}}
		}
		sort.SliceStable(keep, func(i, j int) bool { return keep[i].NormalizedURL == ownURL })
		a.Citations = keep
		setMemberAt(&clusters[ref.cluster], ref.member, a)
	}
	return clusters
}

// ExtractPublisher derives a display name from a URL's host, stripping
// a leading "www." and keeping the registrable last-two-labels — the
// teacher's internal/citations/tracker.go extractPublisher behavior,
// kept verbatim since it's still exactly what a Citation's display name
// needs.
func ExtractPublisher(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	host := strings.TrimPrefix(u.Host, "www.")
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return fmt.Sprintf("%s.%s", parts[len(parts)-2], parts[len(parts)-1])
	}
	return host
}
