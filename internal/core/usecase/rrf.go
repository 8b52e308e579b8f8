package usecase

import (
	"github.com/ymatsuda/docsearch/internal/core/domain"
)

// Per-source RRF weights. Title-exact hits outrank plain vector hits; the
// knowledge graph is the weakest rank signal.
const (
	rrfWeightVector     = 1.0
	rrfWeightLexical    = 0.8
	rrfWeightTitleExact = 1.2
	rrfWeightGraph      = 0.6

	tagBonusSingle   = 2.0
	tagBonusMultiple = 3.0
)

// rrfByDocument computes weighted reciprocal-rank-fusion scores across the
// source lists. Each list is already in its native rank order; rank is
// 1-based, so the top hit of a source contributes weight/(k+1). Absent
// sources contribute nothing. The same domain boost/penalty multiplier used
// for composite scoring applies, then the tag-match bonus.
func rrfByDocument(set CandidateSet, kw domain.Keywords, vocab domain.Vocabulary, cfg domain.FusionConfig) map[string]float64 {
	scores := make(map[string]float64)
	docs := make(map[string]domain.Document)

	addRanks := func(list []domain.RetrievalCandidate, weight float64) {
		for rank, c := range list {
			scores[c.Document.ID] += weight / float64(cfg.RRFK+rank+1)
			if _, ok := docs[c.Document.ID]; !ok {
				docs[c.Document.ID] = c.Document
			}
		}
	}
	addRanks(set.Vector, rrfWeightVector)
	addRanks(set.Lexical, rrfWeightLexical)
	addRanks(set.TitleExact, rrfWeightTitleExact)
	addRanks(set.Graph, rrfWeightGraph)

	keywordSet := lowerSet(kw.Core)
	for id, score := range scores {
		doc := docs[id]
		score *= domainMultiplier(doc.Title, keywordSet, vocab)
		if doc.Structured != nil {
			switch n := matchingTagCount(doc.Structured.Tags, keywordSet); {
			case n >= 2:
				score *= tagBonusMultiple
			case n == 1:
				score *= tagBonusSingle
			}
		}
		scores[id] = score
	}
	return scores
}
