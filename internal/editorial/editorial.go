// Package editorial implements S7, the editorial assembler: the dynamic
// quality filter, display-title generation with programmatic repair,
// update-marker application, ordering and count enforcement, lead-text
// generation, table-of-contents truncation, and the output quality gate
// (spec.md §4.7). Grounded on the teacher's cmd/handlers render path
// (lipgloss-styled summary) for the Markdown rendering shape and
// internal/quality's Report scoring for the output gate, generalized
// from the teacher's single-document render to the multi-article
// newsletter assembly spec.md names.
package editorial

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"digestline/internal/core"
	"digestline/internal/llm"
	"digestline/internal/quality"
)

// Config carries S7's tunables (spec.md §4.7, defaults from config.EditorialConfig).
type Config struct {
	QualityThreshold float64 // default 0.35
	MinArticles      int     // default 7
	MaxArticles      int     // default 10
	UpgradeMarker    string  // default "[Update] "
}

func DefaultConfig() Config {
	return Config{QualityThreshold: 0.35, MinArticles: 7, MaxArticles: 10, UpgradeMarker: "[Update] "}
}

// Newsletter is S7's rendered output plus the artifacts needed for the
// output quality gate and persistence (spec.md §6's processed_content row).
type Newsletter struct {
	Title             string
	LeadParagraphs     []string
	TOC               []string
	Articles          []core.ProcessedArticle
	MultiSourceTopics int
	Markdown          string
	GateReport        *quality.Report
	PublishReport     *PublishReport
}

// Assembler runs S7 over S6's citation-assembled clusters.
type Assembler struct {
	cfg         Config
	router      *llm.Router
	publishGate *PublishGate
}

func NewAssembler(router *llm.Router, cfg Config) *Assembler {
	if cfg.MinArticles <= 0 {
		cfg.MinArticles = 7
	}
	if cfg.MaxArticles < cfg.MinArticles {
		cfg.MaxArticles = cfg.MinArticles + 3
	}
	if cfg.UpgradeMarker == "" {
		cfg.UpgradeMarker = "[Update] "
	}
	return &Assembler{cfg: cfg, router: router, publishGate: NewPublishGate(DefaultPublishThresholds())}
}

// Assemble runs the full S7 pipeline over clustered, cited articles,
// taking each cluster's representative as the newsletter entry (spec.md
// §4.7: S7 operates on the one article per story that S5/S6 produced).
func (a *Assembler) Assemble(ctx context.Context, clusters []core.TopicCluster, scores map[string]float64) Newsletter {
	articles := a.qualityFilter(clusters, scores)

	for i := range articles {
		articles[i].DisplayTitle = a.displayTitle(ctx, articles[i])
		articles[i].DisplayTitle = applyUpdateMarker(articles[i].DisplayTitle, articles[i].IsUpdate, a.cfg.UpgradeMarker)
	}

	if len(articles) > a.cfg.MaxArticles {
		articles = articles[:a.cfg.MaxArticles]
	}

	multiSource := 0
	for _, cl := range clusters {
		if cl.DistinctSourceCount() > 1 {
			multiSource++
		}
	}

	lead := a.leadText(ctx, articles)
	toc := tableOfContents(articles)
	md := render(lead, toc, articles)

	nl := Newsletter{
		Title:             "AI News Digest",
		LeadParagraphs:     lead,
		TOC:               toc,
		Articles:          articles,
		MultiSourceTopics: multiSource,
		Markdown:          md,
	}
	nl.GateReport = a.outputGate(nl)
	nl.PublishReport = a.publishGate.Evaluate(nl)
	return nl
}

// qualityFilter implements spec.md §4.7 step 1's dynamic threshold:
// start at cfg.QualityThreshold, lower by x0.9 up to 3 times (floor
// 0.15) while fewer than MinArticles pass, dedup by id, then as a last
// resort relax to threshold*0.7 (floor 0.1).
func (a *Assembler) qualityFilter(clusters []core.TopicCluster, scores map[string]float64) []core.ProcessedArticle {
	candidates := make([]core.ProcessedArticle, 0, len(clusters))
	for _, cl := range clusters {
		candidates = append(candidates, cl.Representative)
	}

	threshold := a.cfg.QualityThreshold
	var passing []core.ProcessedArticle
	for i := 0; i < 4; i++ { // initial attempt plus up to 3 relaxations
		passing = filterAt(candidates, scores, threshold, 0.15)
		passing = dedupByID(passing)
		if len(passing) >= a.cfg.MinArticles || i == 3 {
			break
		}
		threshold *= 0.9
		if threshold < 0.15 {
			threshold = 0.15
		}
	}

	if len(passing) < a.cfg.MinArticles {
		relaxed := threshold * 0.7
		if relaxed < 0.1 {
			relaxed = 0.1
		}
		passing = dedupByID(filterAt(candidates, scores, relaxed, 0.1))
	}
	return passing
}

func filterAt(candidates []core.ProcessedArticle, scores map[string]float64, threshold, floor float64) []core.ProcessedArticle {
	if threshold < floor {
		threshold = floor
	}
	var out []core.ProcessedArticle
	for _, a := range candidates {
		score, ok := scores[a.ID]
		if !ok {
			score = a.AIRelevanceScore*0.5 + a.Confidence*0.5
		}
		if score >= threshold {
			out = append(out, a)
		}
	}
	return out
}

func dedupByID(articles []core.ProcessedArticle) []core.ProcessedArticle {
	seen := map[string]bool{}
	out := make([]core.ProcessedArticle, 0, len(articles))
	for _, a := range articles {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out
}

// particleSuffixRe matches the reference language's trailing
// post-positional particles spec.md §4.7 step 2(a) rejects.
var particleSuffixRe = regexp.MustCompile(`(が|を|に|は|で|と)$`)

// problemPatternRe is the denylist of problematic title shapes: a
// duplicated action verb, an empty generic form, or an incomplete stub
// ending in "を進行" (spec.md §4.7 step 2(b)).
// The duplicated-action-verb check is duplicatedActionVerb, since Go's
// regexp has no backreferences.
var problemPatternRe = regexp.MustCompile(`(?i)^(update|news|report)$|を進行$`)

var actionVerbRe = regexp.MustCompile(`(?i)\b(launch|release|announce|unveil|ship|acquire|raise|partner|expand|cut|sue|fine|ban)\w*\b`)

// duplicatedActionVerb reports whether the same action verb occurs more
// than once in title.
func duplicatedActionVerb(title string) bool {
	seen := map[string]bool{}
	for _, m := range actionVerbRe.FindAllStringSubmatch(title, -1) {
		verb := strings.ToLower(m[1])
		if seen[verb] {
			return true
		}
		seen[verb] = true
	}
	return false
}

var companyProductRe = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]{2,}\b`)

// displayTitle implements spec.md §4.7 step 2: request a title, reject
// on particle-suffix/denylist/low-score, repair programmatically, and
// fall back to the first-bullet transformation on repeated failure.
func (a *Assembler) displayTitle(ctx context.Context, article core.ProcessedArticle) string {
	candidate := a.generateTitle(ctx, article)
	if acceptTitle(candidate) {
		return candidate
	}

	repaired := repairTitle(candidate)
	if acceptTitle(repaired) {
		return repaired
	}

	return firstBulletHeadline(article)
}

func (a *Assembler) generateTitle(ctx context.Context, article core.ProcessedArticle) string {
	if a.router == nil {
		return article.Title
	}
	system := "Write a single news headline, under 90 characters, naming the company/product and the concrete action. No trailing punctuation."
	user := article.Title + "\n" + strings.Join(article.Bullets, "\n")
	title, _, err := a.router.GenerateTitle(ctx, system, user)
	if err != nil || title == "" {
		return article.Title
	}
	return title
}

func acceptTitle(title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	if particleSuffixRe.MatchString(title) {
		return false
	}
	if problemPatternRe.MatchString(title) || duplicatedActionVerb(title) {
		return false
	}
	return titleScore(title) >= 3
}

// titleScore implements spec.md §4.7 step 2(c)'s scoring: company/
// product mention +3, numeric metric +2, action verb +1, minimum 3.
func titleScore(title string) int {
	score := 0
	if companyProductRe.MatchString(title) {
		score += 3
	}
	if regexp.MustCompile(`[0-9]`).MatchString(title) {
		score += 2
	}
	if actionVerbRe.MatchString(title) {
		score += 1
	}
	return score
}

// repairTitle strips a trailing particle and, if the result is now too
// short to stand alone, synthesizes a generic completion (spec.md §4.7
// step 2's "attempt programmatic repair").
func repairTitle(title string) string {
	stripped := particleSuffixRe.ReplaceAllString(strings.TrimSpace(title), "")
	stripped = strings.TrimSpace(stripped)
	if stripped == "" {
		return ""
	}
	if !actionVerbRe.MatchString(stripped) {
		stripped += " update"
	}
	return stripped
}

func firstBulletHeadline(article core.ProcessedArticle) string {
	if len(article.Bullets) == 0 {
		return article.Title
	}
	headline := article.Bullets[0]
	headline = strings.TrimRight(headline, " 。.!?")
	r := []rune(headline)
	if len(r) > 90 {
		r = r[:90]
	}
	return string(r)
}

// applyUpdateMarker implements spec.md §4.7 step 3: prefix the marker
// on an update article, idempotently (never applied twice).
func applyUpdateMarker(title string, isUpdate bool, marker string) string {
	if !isUpdate {
		return title
	}
	if strings.HasPrefix(title, marker) {
		return title
	}
	return marker + title
}

// genericLeadTitleRe rejects a lead opener drawn from a generic-phrase
// denylist (spec.md §4.7 step 5: "never a generic phrase").
var genericLeadTitleRe = regexp.MustCompile(`(?i)^(today's ai news|ai roundup|weekly update|news summary)$`)

// leadText implements spec.md §4.7 step 5: a router-generated lead
// (one concrete title plus 2-3 paragraphs), each paragraph validated
// against §4.8's grammar rules and a length cap, falling back to a
// deterministic construction from extracted entities on repeated
// router failure.
func (a *Assembler) leadText(ctx context.Context, articles []core.ProcessedArticle) []string {
	if a.router != nil {
		if paragraphs := a.generateLead(ctx, articles); paragraphs != nil {
			return paragraphs
		}
	}
	return fallbackLead(articles)
}

func (a *Assembler) generateLead(ctx context.Context, articles []core.ProcessedArticle) []string {
	var sb strings.Builder
	for _, art := range articles {
		sb.WriteString("- " + art.Title + "\n")
	}
	system := "Write a 2-3 paragraph editorial lead for a daily AI news digest, opening with one concrete headline-style title line, " +
		"then the paragraphs. Each paragraph must be under 200 characters and end with proper sentence punctuation."
	text, _, err := a.router.GenerateText(ctx, system, sb.String(), 400, 0.5)
	if err != nil {
		return nil
	}
	text = quality.StripMetaArtifacts(text)
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}
	if genericLeadTitleRe.MatchString(strings.TrimSpace(paragraphs[0])) {
		return nil
	}
	for _, p := range paragraphs {
		if danglingParticle(p) || len([]rune(p)) > 200 {
			return nil
		}
	}
	return paragraphs
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var danglingParticleRe = regexp.MustCompile(`(が|を|に|は|で|と)$`)

func danglingParticle(p string) bool {
	return danglingParticleRe.MatchString(strings.TrimSpace(p))
}

// fallbackLead deterministically constructs a lead from extracted
// entities: top 2 company mentions plus the article count (spec.md
// §4.7 step 5's fallback).
func fallbackLead(articles []core.ProcessedArticle) []string {
	counts := map[string]int{}
	for _, art := range articles {
		for _, m := range companyProductRe.FindAllString(art.Title, -1) {
			counts[m]++
		}
	}
	top := topTwo(counts)
	title := "AI industry roundup"
	if len(top) > 0 {
		title = strings.Join(top, " and ") + " lead today's AI news"
	}
	body := fmt.Sprintf("This edition covers %d stories from across the AI industry.", len(articles))
	if len(top) > 0 {
		body += " Notable mentions include " + strings.Join(top, " and ") + "."
	}
	return []string{title, body}
}

func topTwo(counts map[string]int) []string {
	type kv struct {
		k string
		v int
	}
	var kvs []kv
	for k, v := range counts {
		kvs = append(kvs, kv{k, v})
	}
	for i := 0; i < len(kvs); i++ {
		for j := i + 1; j < len(kvs); j++ {
			if kvs[j].v > kvs[i].v {
				kvs[i], kvs[j] = kvs[j], kvs[i]
			}
		}
	}
	var out []string
	for i := 0; i < len(kvs) && i < 2; i++ {
		out = append(out, kvs[i].k)
	}
	return out
}

// tableOfContents implements spec.md §4.7 step 6: a numbered list of
// display titles, each truncated to ~80 chars at a grammatical break.
func tableOfContents(articles []core.ProcessedArticle) []string {
	toc := make([]string, 0, len(articles))
	for i, a := range articles {
		toc = append(toc, strconv.Itoa(i+1)+". "+truncateGrammatically(a.DisplayTitle, 80))
	}
	return toc
}

var quotedSubstringRe = regexp.MustCompile(`「[^」]*」`)

// truncateGrammatically shortens s to the budget. If the text up to the
// end of its first 「…」 quote fits, that prefix is returned whole.
// Otherwise it cuts just after the breaker rune (sentence terminator,
// comma, closing bracket) nearest the budget, searching back to half the
// budget, and else hard-cuts and appends "…". The breakers are not
// ranked against each other, and conjunctions and particles are not
// used as break points.
func truncateGrammatically(s string, budget int) string {
	r := []rune(s)
	if len(r) <= budget {
		return s
	}
	if loc := quotedSubstringRe.FindStringIndex(s); loc != nil {
		qr := []rune(s[:loc[1]])
		if len(qr) <= budget {
			return string(qr)
		}
	}
	breakers := []rune{'。', '.', '!', '?', ',', '、', ')', '）', '」'}
	for i := budget; i > budget/2; i-- {
		if i >= len(r) {
			continue
		}
		for _, b := range breakers {
			if r[i] == b {
				return string(r[:i+1])
			}
		}
	}
	cut := budget
	if cut > len(r) {
		cut = len(r)
	}
	return string(r[:cut]) + "…"
}

// render is a pure function producing the newsletter's Markdown body
// from the lead, TOC, and ordered articles.
func render(lead []string, toc []string, articles []core.ProcessedArticle) string {
	var sb strings.Builder
	sb.WriteString("# AI News Digest\n\n")
	for _, p := range lead {
		sb.WriteString(p + "\n\n")
	}
	sb.WriteString("## Contents\n\n")
	for _, t := range toc {
		sb.WriteString(t + "\n")
	}
	sb.WriteString("\n")
	for i, a := range articles {
		sb.WriteString(fmt.Sprintf("## %d. %s\n\n", i+1, a.DisplayTitle))
		for _, b := range a.Bullets {
			sb.WriteString("- " + b + "\n")
		}
		sb.WriteString("\n")
		if len(a.Citations) > 0 {
			sb.WriteString("Sources: ")
			parts := make([]string, len(a.Citations))
			for ci, c := range a.Citations {
				parts[ci] = fmt.Sprintf("[%s](%s)", c.SourceDisplayName, c.URL)
			}
			sb.WriteString(strings.Join(parts, ", "))
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// outputGate implements spec.md §4.7 step 7: re-score the lead and each
// article's bullets/title per §4.8 in production mode and log the
// result rather than regenerating (explicitly deferred in this revision).
func (a *Assembler) outputGate(nl Newsletter) *quality.Report {
	report := &quality.Report{}
	for _, p := range nl.LeadParagraphs {
		r := quality.EvaluateText(p, 1, 200)
		report.Errors = append(report.Errors, r.Errors...)
		report.Warnings = append(report.Warnings, r.Warnings...)
		report.Infos = append(report.Infos, r.Infos...)
	}
	for _, art := range nl.Articles {
		titleReport := quality.EvaluateText(art.DisplayTitle, 1, 200)
		quality.ProductionModeExtra(titleReport, art.DisplayTitle, false, hasDomainToken(art.DisplayTitle))
		report.Errors = append(report.Errors, titleReport.Errors...)

		bulletsReport := quality.EvaluateBullets(art.Bullets, 20, 150)
		for _, b := range art.Bullets {
			quality.ProductionModeExtra(bulletsReport, b, true, hasDomainToken(b))
		}
		report.Errors = append(report.Errors, bulletsReport.Errors...)
		report.Warnings = append(report.Warnings, bulletsReport.Warnings...)
	}
	return finalizeGate(report)
}

var domainTokenRe = regexp.MustCompile(`(?i)\b(ai|ml|llm|gpu|model|algorithm|chip|robot|neural)\w*\b`)

func hasDomainToken(s string) bool {
	return domainTokenRe.MatchString(s)
}

func finalizeGate(r *quality.Report) *quality.Report {
	score := 1.0 - 0.3*float64(len(r.Errors)) - 0.1*float64(len(r.Warnings)) - 0.05*float64(len(r.Infos))
	if score < 0 {
		score = 0
	}
	r.Score = score
	switch {
	case len(r.Errors) > 0 && score < 0.5:
		r.Level = quality.LevelFailed
	case score >= 0.9:
		r.Level = quality.LevelExcellent
	case score >= 0.8:
		r.Level = quality.LevelGood
	case score >= 0.6:
		r.Level = quality.LevelAcceptable
	default:
		r.Level = quality.LevelPoor
	}
	return r
}
