package usecase

import (
	"log/slog"
	"math"
	"sort"

	"github.com/ymatsuda/docsearch/internal/core/domain"
	"github.com/ymatsuda/docsearch/internal/core/ports"
)

// FormatResults turns fused candidates into the final ranked output:
// scale to [0,100], deduplicate by document id keeping the best occurrence,
// stable-sort descending, and cap at topK. FinalScore is guaranteed finite;
// a non-finite or negative effective score falls back to the candidate's
// distance-derived percentage.
func FormatResults(
	fused []domain.FusedResult,
	strategy domain.FusionStrategy,
	topK int,
	logger *slog.Logger,
	obs ports.SearchObserver,
) []domain.FusedResult {
	if len(fused) == 0 {
		return nil
	}

	type scored struct {
		result    domain.FusedResult
		effective float64
	}
	best := make(map[string]int, len(fused))
	ordered := make([]scored, 0, len(fused))

	for _, r := range fused {
		eff := EffectiveScore(r, strategy)
		if math.IsNaN(eff) || math.IsInf(eff, 0) || eff < 0 {
			if logger != nil {
				logger.Warn("final_score_fallback", "document_id", r.Document.ID, "effective", eff)
			}
			if obs != nil {
				obs.RecordFallbackScore()
			}
			eff = r.VectorConfidence
		}
		r.FinalScore = int(math.Round(clampRange(eff*100, 0, 100)))

		if i, ok := best[r.Document.ID]; ok {
			if eff > ordered[i].effective {
				ordered[i] = scored{result: r, effective: eff}
			}
			continue
		}
		best[r.Document.ID] = len(ordered)
		ordered = append(ordered, scored{result: r, effective: eff})
	}

	// Stable keeps original retrieval order (vector-first, then lexical) for
	// equal scores.
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].effective > ordered[j].effective
	})

	if topK > 0 && len(ordered) > topK {
		ordered = ordered[:topK]
	}
	out := make([]domain.FusedResult, 0, len(ordered))
	for _, s := range ordered {
		out = append(out, s.result)
	}
	return out
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
