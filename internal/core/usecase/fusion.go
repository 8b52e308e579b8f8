package usecase

import (
	"log/slog"
	"math"
	"strings"

	"github.com/ymatsuda/docsearch/internal/core/domain"
	"github.com/ymatsuda/docsearch/internal/core/ports"
)

const (
	titleExactFloor      = 0.9
	graphReferenceBase   = 0.7
	graphRelatedNorm     = 0.3
	domainPenaltyFactor  = 0.5
	domainBoostPerTerm   = 0.5
	domainBoostCap       = 2.0
	labelScoreMaxPoints  = 6.0
	plainLabelShare      = 0.2
	structuredShare      = 0.8
	templateCategoryCut  = 0.05
	blendCompositeShare  = 0.7
	blendRRFShare        = 0.3
)

// CandidateSet holds the per-path candidate lists after relevance filtering.
// List order is each path's native ranking and is what RRF ranks against.
type CandidateSet struct {
	Vector     []domain.RetrievalCandidate
	Lexical    []domain.RetrievalCandidate
	TitleExact []domain.RetrievalCandidate
	Graph      []domain.RetrievalCandidate
}

type mergedCandidate struct {
	domain.RetrievalCandidate
	titleExact bool
}

// FuseCandidates computes composite (and, per strategy, RRF) scores for every
// candidate. Merge order is vector-first, then lexical, which is also the
// tie-break order for equal scores downstream. A candidate whose arithmetic
// goes non-finite falls back to its distance-derived signal instead of
// poisoning the batch; candidates with no salvageable signal are dropped.
func FuseCandidates(
	set CandidateSet,
	kw domain.Keywords,
	vocab domain.Vocabulary,
	cfg domain.FusionConfig,
	logger *slog.Logger,
	obs ports.SearchObserver,
) []domain.FusedResult {
	merged := mergeByDocument(set)
	if len(merged) == 0 {
		return nil
	}

	var rrfScores map[string]float64
	if cfg.Strategy != domain.StrategyComposite {
		rrfScores = rrfByDocument(set, kw, vocab, cfg)
	}

	keywordSet := lowerSet(kw.Core)
	out := make([]domain.FusedResult, 0, len(merged))
	for _, c := range merged {
		normVector := 0.0
		if c.VectorDistance != nil {
			normVector = 1 - math.Min(*c.VectorDistance/cfg.MaxVectorDistance, 1)
		}
		normLexical := 0.0
		if c.LexicalScore != nil {
			normLexical = math.Min(*c.LexicalScore/cfg.MaxLexicalScore, 1)
		}
		normTitle := c.TitleMatchRatio
		if c.titleExact && normTitle < titleExactFloor {
			normTitle = titleExactFloor
		}
		normLabel := labelScore(c.Document, keywordSet, kw, vocab)
		normKG := graphNorm(c.RetrievalCandidate)

		breakdown := domain.ScoreBreakdown{
			Vector:         normVector * cfg.VectorWeight,
			Lexical:        normLexical * cfg.LexicalWeight,
			Title:          normTitle * cfg.TitleWeight,
			Label:          normLabel * cfg.LabelWeight,
			KnowledgeGraph: normKG * cfg.KGWeight,
		}
		composite := breakdown.Vector + breakdown.Lexical + breakdown.Title + breakdown.Label + breakdown.KnowledgeGraph

		multiplier := domainMultiplier(c.Document.Title, keywordSet, vocab)
		composite *= multiplier
		breakdown.Multiplier = multiplier

		if !isFinite(composite) || composite < 0 {
			if c.VectorDistance == nil {
				if logger != nil {
					logger.Warn("score_computation_dropped", "document_id", c.Document.ID)
				}
				continue
			}
			if logger != nil {
				logger.Warn("score_computation_fallback", "document_id", c.Document.ID, "score", composite)
			}
			if obs != nil {
				obs.RecordFallbackScore()
			}
			composite = normVector
		}

		result := domain.FusedResult{
			Document:         c.Document,
			Composite:        composite,
			Breakdown:        breakdown,
			VectorConfidence: normVector,
		}
		if rrfScores != nil {
			result.RRF = rrfScores[c.Document.ID]
		}
		out = append(out, result)
	}
	return out
}

// EffectiveScore is the ranking basis for a result under the given strategy.
// Composite is authoritative; blend squashes the unbounded RRF score into
// [0,1) before mixing so the blend stays bounded.
func EffectiveScore(r domain.FusedResult, strategy domain.FusionStrategy) float64 {
	switch strategy {
	case domain.StrategyRRF:
		return r.RRF
	case domain.StrategyBlend:
		return blendCompositeShare*r.Composite + blendRRFShare*(r.RRF/(r.RRF+1))
	default:
		return r.Composite
	}
}

func mergeByDocument(set CandidateSet) []mergedCandidate {
	index := make(map[string]int, len(set.Vector)+len(set.Lexical))
	out := make([]mergedCandidate, 0, len(set.Vector)+len(set.Lexical))

	add := func(c domain.RetrievalCandidate, titleExact bool) {
		i, ok := index[c.Document.ID]
		if !ok {
			index[c.Document.ID] = len(out)
			out = append(out, mergedCandidate{RetrievalCandidate: c, titleExact: titleExact})
			return
		}
		m := &out[i]
		if m.VectorDistance == nil && c.VectorDistance != nil {
			m.VectorDistance = c.VectorDistance
		}
		if m.LexicalScore == nil && c.LexicalScore != nil {
			m.LexicalScore = c.LexicalScore
		}
		if c.TitleMatchRatio > m.TitleMatchRatio {
			m.TitleMatchRatio = c.TitleMatchRatio
		}
		if c.GraphRelation != "" {
			m.GraphRelation = c.GraphRelation
			m.GraphScore = c.GraphScore
		}
		if titleExact {
			m.titleExact = true
		}
		if len(m.Document.Labels) == 0 && len(c.Document.Labels) > 0 {
			m.Document.Labels = c.Document.Labels
		}
		if m.Document.Structured == nil && c.Document.Structured != nil {
			m.Document.Structured = c.Document.Structured
		}
	}

	for _, c := range set.Vector {
		add(c, false)
	}
	for _, c := range set.Lexical {
		add(c, false)
	}
	for _, c := range set.TitleExact {
		add(c, true)
	}
	for _, c := range set.Graph {
		add(c, false)
	}
	return out
}

func graphNorm(c domain.RetrievalCandidate) float64 {
	switch c.GraphRelation {
	case domain.GraphReference:
		return graphReferenceBase + (1-graphReferenceBase)*clamp01(c.GraphScore)
	case domain.GraphDomainRelated:
		return graphRelatedNorm
	default:
		return 0
	}
}

// domainMultiplier applies the generic-title penalty or the domain-keyword
// boost. The two are mutually exclusive: a generic title is always halved and
// never boosted.
func domainMultiplier(title string, keywords map[string]struct{}, vocab domain.Vocabulary) float64 {
	lt := strings.ToLower(title)
	for _, generic := range vocab.GenericTitleTerms {
		g := strings.ToLower(strings.TrimSpace(generic))
		if g != "" && strings.Contains(lt, g) {
			return domainPenaltyFactor
		}
	}
	count := 0
	for _, term := range vocab.DomainTerms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if _, inQuery := keywords[t]; !inQuery {
			continue
		}
		if strings.Contains(lt, t) {
			count++
		}
	}
	if count == 0 {
		return 1.0
	}
	return math.Min(1+domainBoostPerTerm*float64(count), domainBoostCap)
}

// labelScore blends plain string-label matches (20%) with structured-label
// matches (80%). Structured points: domain +2, feature full match +3 or
// partial +1.5, tag +0.5, category +0.3 (cut to +0.05 for template categories
// on functional-intent queries), approved status +0.2; normalized by the
// maximum attainable 6.0.
func labelScore(doc domain.Document, keywords map[string]struct{}, kw domain.Keywords, vocab domain.Vocabulary) float64 {
	plain := plainLabelScore(doc.Labels, keywords)

	structured := 0.0
	if s := doc.Structured; s != nil {
		points := 0.0
		if s.Domain != "" && keywordMatch(keywords, s.Domain) {
			points += 2.0
		}
		switch featureMatch(s.Feature, kw.Core) {
		case featureFull:
			points += 3.0
		case featurePartial:
			points += 1.5
		}
		if anyTagMatch(s.Tags, keywords) {
			points += 0.5
		}
		if s.Category != "" && keywordMatch(keywords, s.Category) {
			if isTemplateCategory(s.Category) && hasIntentKeyword(keywords, vocab) {
				points += templateCategoryCut
			} else {
				points += 0.3
			}
		}
		if strings.EqualFold(s.Status, "approved") {
			points += 0.2
		}
		structured = clamp01(points / labelScoreMaxPoints)
	}

	return clamp01(plainLabelShare*plain + structuredShare*structured)
}

func plainLabelScore(labels []string, keywords map[string]struct{}) float64 {
	if len(labels) == 0 || len(keywords) == 0 {
		return 0
	}
	matched := 0
	for _, label := range labels {
		if keywordMatch(keywords, label) {
			matched++
		}
	}
	return float64(matched) / float64(len(labels))
}

type featureMatchKind int

const (
	featureNone featureMatchKind = iota
	featurePartial
	featureFull
)

// featureMatch tests the concatenated keyword string (space-joined, no-space
// joined, and in reversed keyword order) against the feature name in both
// containment directions. Any single-keyword containment is a partial match.
func featureMatch(feature string, core []string) featureMatchKind {
	feature = strings.ToLower(strings.TrimSpace(feature))
	if feature == "" || len(core) == 0 {
		return featureNone
	}
	reversed := make([]string, len(core))
	for i, k := range core {
		reversed[len(core)-1-i] = k
	}
	candidates := []string{
		strings.Join(core, " "),
		strings.Join(core, ""),
		strings.Join(reversed, ""),
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if strings.Contains(feature, c) || strings.Contains(c, feature) {
			return featureFull
		}
	}
	for _, k := range core {
		if k != "" && (strings.Contains(feature, k) || strings.Contains(k, feature)) {
			return featurePartial
		}
	}
	return featureNone
}

func anyTagMatch(tags []string, keywords map[string]struct{}) bool {
	for _, tag := range tags {
		if keywordMatch(keywords, tag) {
			return true
		}
	}
	return false
}

// matchingTagCount counts distinct structured tags that match a query
// keyword; the RRF tag bonus keys off this.
func matchingTagCount(tags []string, keywords map[string]struct{}) int {
	seen := make(map[string]struct{}, len(tags))
	count := 0
	for _, tag := range tags {
		lt := strings.ToLower(strings.TrimSpace(tag))
		if lt == "" {
			continue
		}
		if _, dup := seen[lt]; dup {
			continue
		}
		seen[lt] = struct{}{}
		if keywordMatch(keywords, tag) {
			count++
		}
	}
	return count
}

// keywordMatch reports whether the value contains any keyword or any keyword
// contains the value, case-insensitively.
func keywordMatch(keywords map[string]struct{}, value string) bool {
	lv := strings.ToLower(strings.TrimSpace(value))
	if lv == "" {
		return false
	}
	for k := range keywords {
		if strings.Contains(lv, k) || strings.Contains(k, lv) {
			return true
		}
	}
	return false
}

func isTemplateCategory(category string) bool {
	lc := strings.ToLower(category)
	return strings.Contains(lc, "template") || strings.Contains(lc, "テンプレート") || strings.Contains(lc, "雛形")
}

func hasIntentKeyword(keywords map[string]struct{}, vocab domain.Vocabulary) bool {
	for _, intent := range vocab.IntentKeywords {
		li := strings.ToLower(strings.TrimSpace(intent))
		if li == "" {
			continue
		}
		for k := range keywords {
			if strings.Contains(k, li) {
				return true
			}
		}
	}
	return false
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
