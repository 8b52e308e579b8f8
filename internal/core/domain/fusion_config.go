package domain

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"
)

// FusionStrategy selects how fused scores are produced.
type FusionStrategy string

const (
	StrategyComposite FusionStrategy = "composite"
	StrategyRRF       FusionStrategy = "rrf"
	StrategyBlend     FusionStrategy = "blend"
)

// FusionConfig is the immutable per-call configuration of the ranking
// pipeline. It is passed explicitly through every stage; nothing reads
// weights from package-level state.
type FusionConfig struct {
	TopK int

	VectorWeight  float64
	LexicalWeight float64
	TitleWeight   float64
	LabelWeight   float64
	KGWeight      float64

	MaxVectorDistance float64
	MaxLexicalScore   float64
	RRFK              int

	Strategy FusionStrategy

	ExcludeLabels        []string
	ExcludeTitlePatterns []string

	DistanceThreshold float64 // vector-path hard cutoff, 0 disables
	QualityThreshold  float64 // vector-path quality cutoff, 0 disables

	CacheTTL time.Duration
}

// DefaultFusionConfig returns the reference weights. Lexical and title
// dominate raw vector similarity: vector-space drift across index rebuilds
// makes distance the least stable signal.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		TopK:              10,
		VectorWeight:      0.05,
		LexicalWeight:     0.50,
		TitleWeight:       0.25,
		LabelWeight:       0.15,
		KGWeight:          0.05,
		MaxVectorDistance: 2.0,
		MaxLexicalScore:   20.0,
		RRFK:              60,
		Strategy:          StrategyComposite,
		CacheTTL:          5 * time.Minute,
	}
}

// Validate fails fast on configuration that would make scoring undefined.
func (c FusionConfig) Validate() error {
	if c.TopK <= 0 {
		return WrapError(ErrConfiguration, "fusion config", fmt.Errorf("topK must be positive, got %d", c.TopK))
	}
	weights := []struct {
		name  string
		value float64
	}{
		{"vector", c.VectorWeight},
		{"lexical", c.LexicalWeight},
		{"title", c.TitleWeight},
		{"label", c.LabelWeight},
		{"kg", c.KGWeight},
	}
	sum := 0.0
	for _, w := range weights {
		if w.value < 0 || math.IsNaN(w.value) || math.IsInf(w.value, 0) {
			return WrapError(ErrConfiguration, "fusion config", fmt.Errorf("%s weight must be a finite non-negative number", w.name))
		}
		sum += w.value
	}
	if sum <= 0 {
		return WrapError(ErrConfiguration, "fusion config", fmt.Errorf("signal weights sum to zero"))
	}
	if c.MaxVectorDistance <= 0 {
		return WrapError(ErrConfiguration, "fusion config", fmt.Errorf("maxVectorDistance must be positive"))
	}
	if c.MaxLexicalScore <= 0 {
		return WrapError(ErrConfiguration, "fusion config", fmt.Errorf("maxLexicalScore must be positive"))
	}
	if c.RRFK <= 0 {
		return WrapError(ErrConfiguration, "fusion config", fmt.Errorf("rrfK must be positive"))
	}
	switch c.Strategy {
	case StrategyComposite, StrategyRRF, StrategyBlend:
	default:
		return WrapError(ErrConfiguration, "fusion config", fmt.Errorf("unknown fusion strategy %q", c.Strategy))
	}
	return nil
}

// Fingerprint folds every ranking-relevant field into a stable hash so cached
// results are never served across config changes.
func (c FusionConfig) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%g|%g|%g|%g|%g|%g|%g|%d|%s|%g|%g|",
		c.TopK,
		c.VectorWeight, c.LexicalWeight, c.TitleWeight, c.LabelWeight, c.KGWeight,
		c.MaxVectorDistance, c.MaxLexicalScore,
		c.RRFK, c.Strategy,
		c.DistanceThreshold, c.QualityThreshold,
	)
	fmt.Fprint(h, strings.Join(c.ExcludeLabels, ","), "|", strings.Join(c.ExcludeTitlePatterns, ","))
	return fmt.Sprintf("%016x", h.Sum64())
}
