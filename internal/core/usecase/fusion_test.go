package usecase

import (
	"math"
	"testing"

	"github.com/ymatsuda/docsearch/internal/core/domain"
)

func floatPtr(v float64) *float64 { return &v }

func vectorCandidate(id, title string, distance float64) domain.RetrievalCandidate {
	return domain.RetrievalCandidate{
		Document:       domain.Document{ID: id, Title: title},
		Source:         domain.SourceVector,
		VectorDistance: floatPtr(distance),
	}
}

func lexicalCandidate(id, title string, score float64) domain.RetrievalCandidate {
	return domain.RetrievalCandidate{
		Document:     domain.Document{ID: id, Title: title},
		Source:       domain.SourceLexical,
		LexicalScore: floatPtr(score),
	}
}

func TestFuseCandidatesRanksDomainMatchAboveGenericTitle(t *testing.T) {
	kw := domain.Keywords{Core: []string{"教室管理"}}
	vocab := domain.Vocabulary{
		DomainTerms:       []string{"教室管理"},
		GenericTitleTerms: []string{"共通要件"},
	}
	cfg := domain.DefaultFusionConfig()

	classroom := vectorCandidate("doc-classroom", "教室管理機能仕様書", 0.5)
	classroom.TitleMatchRatio = 1.0
	generic := vectorCandidate("doc-generic", "共通要件定義書", 0.3)
	generic.TitleMatchRatio = 0.2

	set := CandidateSet{Vector: []domain.RetrievalCandidate{generic, classroom}}

	fused := FuseCandidates(set, kw, vocab, cfg, nil, nil)
	ranked := FormatResults(fused, cfg.Strategy, cfg.TopK, nil, nil)

	if len(ranked) != 2 {
		t.Fatalf("results = %d, want 2", len(ranked))
	}
	if ranked[0].Document.ID != "doc-classroom" {
		t.Fatalf("top result = %s, want doc-classroom", ranked[0].Document.ID)
	}
	if got := ranked[0].Breakdown.Multiplier; got != 1.5 {
		t.Fatalf("domain boost multiplier = %v, want 1.5", got)
	}
	if got := ranked[1].Breakdown.Multiplier; got != 0.5 {
		t.Fatalf("generic title multiplier = %v, want 0.5", got)
	}
}

func TestFuseCandidatesClassroomQueryRanksClassroomDocFirst(t *testing.T) {
	kw := domain.Keywords{Core: []string{"教室管理"}}
	vocab := domain.Vocabulary{DomainTerms: []string{"教室管理"}}
	cfg := domain.DefaultFusionConfig()

	classroom := lexicalCandidate("doc1", "教室管理機能の詳細", 15.5)
	login := lexicalCandidate("doc2", "ログイン機能について", 8.2)

	set := CandidateSet{Lexical: []domain.RetrievalCandidate{login, classroom}}

	fused := FuseCandidates(set, kw, vocab, cfg, nil, nil)
	ranked := FormatResults(fused, cfg.Strategy, cfg.TopK, nil, nil)

	if len(ranked) != 2 {
		t.Fatalf("results = %d, want 2", len(ranked))
	}
	if ranked[0].Document.ID != "doc1" {
		t.Fatalf("top result = %s, want doc1", ranked[0].Document.ID)
	}
	if ranked[0].FinalScore <= ranked[1].FinalScore {
		t.Fatalf("scores = %d vs %d, want doc1 strictly above doc2",
			ranked[0].FinalScore, ranked[1].FinalScore)
	}
}

func TestFuseCandidatesGenericTitleHalvesScoreExactly(t *testing.T) {
	kw := domain.Keywords{Core: []string{"billing"}}
	vocab := domain.Vocabulary{GenericTitleTerms: []string{"共通要件"}}
	cfg := domain.DefaultFusionConfig()

	neutral := vectorCandidate("doc", "billing ledger", 0.4)
	neutral.TitleMatchRatio = 0.6
	generic := neutral
	generic.Document.Title = "共通要件まとめ"

	fusedNeutral := FuseCandidates(CandidateSet{Vector: []domain.RetrievalCandidate{neutral}}, kw, vocab, cfg, nil, nil)
	fusedGeneric := FuseCandidates(CandidateSet{Vector: []domain.RetrievalCandidate{generic}}, kw, vocab, cfg, nil, nil)

	if len(fusedNeutral) != 1 || len(fusedGeneric) != 1 {
		t.Fatalf("expected one fused result per set")
	}
	if got, want := fusedGeneric[0].Composite, fusedNeutral[0].Composite*0.5; got != want {
		t.Fatalf("generic composite = %v, want exactly half of %v", got, fusedNeutral[0].Composite)
	}
}

func TestFuseCandidatesDomainBoostIsCapped(t *testing.T) {
	kw := domain.Keywords{Core: []string{"予約", "教室", "会員"}}
	vocab := domain.Vocabulary{DomainTerms: []string{"予約", "教室", "会員"}}

	got := domainMultiplier("予約と教室と会員の統合仕様", lowerSet(kw.Core), vocab)

	if got != 2.0 {
		t.Fatalf("multiplier = %v, want cap 2.0", got)
	}
}

func TestFuseCandidatesPenaltyWinsOverBoost(t *testing.T) {
	kw := domain.Keywords{Core: []string{"教室管理"}}
	vocab := domain.Vocabulary{
		DomainTerms:       []string{"教室管理"},
		GenericTitleTerms: []string{"概要"},
	}

	// title carries both a domain term and a generic marker
	got := domainMultiplier("教室管理の概要", lowerSet(kw.Core), vocab)

	if got != 0.5 {
		t.Fatalf("multiplier = %v, want penalty 0.5 (never boosted)", got)
	}
}

func TestFuseCandidatesTitleExactFloor(t *testing.T) {
	kw := domain.Keywords{Core: []string{"billing"}}
	cfg := domain.DefaultFusionConfig()

	c := vectorCandidate("doc", "billing", 1.0)
	c.TitleMatchRatio = 0.2

	withFloor := FuseCandidates(CandidateSet{
		Vector:     []domain.RetrievalCandidate{c},
		TitleExact: []domain.RetrievalCandidate{c},
	}, kw, domain.Vocabulary{}, cfg, nil, nil)
	withoutFloor := FuseCandidates(CandidateSet{
		Vector: []domain.RetrievalCandidate{c},
	}, kw, domain.Vocabulary{}, cfg, nil, nil)

	if len(withFloor) != 1 || len(withoutFloor) != 1 {
		t.Fatalf("expected one fused result per set")
	}
	floored := withFloor[0].Breakdown.Title
	raw := withoutFloor[0].Breakdown.Title
	if want := 0.9 * cfg.TitleWeight; floored != want {
		t.Fatalf("title contribution with exact match = %v, want %v", floored, want)
	}
	if raw >= floored {
		t.Fatalf("floor had no effect: raw %v >= floored %v", raw, floored)
	}
}

func TestFuseCandidatesMergesAcrossSources(t *testing.T) {
	kw := domain.Keywords{Core: []string{"billing"}}
	cfg := domain.DefaultFusionConfig()

	set := CandidateSet{
		Vector:  []domain.RetrievalCandidate{vectorCandidate("doc", "billing spec", 0.4)},
		Lexical: []domain.RetrievalCandidate{lexicalCandidate("doc", "billing spec", 10)},
	}

	fused := FuseCandidates(set, kw, domain.Vocabulary{}, cfg, nil, nil)

	if len(fused) != 1 {
		t.Fatalf("fused = %d results, want 1 merged document", len(fused))
	}
	b := fused[0].Breakdown
	if b.Vector == 0 || b.Lexical == 0 {
		t.Fatalf("merged candidate should carry both signals, got %+v", b)
	}
	wantVector := (1 - 0.4/cfg.MaxVectorDistance) * cfg.VectorWeight
	if math.Abs(b.Vector-wantVector) > 1e-12 {
		t.Fatalf("vector contribution = %v, want %v", b.Vector, wantVector)
	}
	wantLexical := (10 / cfg.MaxLexicalScore) * cfg.LexicalWeight
	if math.Abs(b.Lexical-wantLexical) > 1e-12 {
		t.Fatalf("lexical contribution = %v, want %v", b.Lexical, wantLexical)
	}
}

func TestFuseCandidatesLexicalScoreIsCapped(t *testing.T) {
	kw := domain.Keywords{Core: []string{"billing"}}
	cfg := domain.DefaultFusionConfig()

	set := CandidateSet{
		Lexical: []domain.RetrievalCandidate{lexicalCandidate("doc", "billing spec", 500)},
	}

	fused := FuseCandidates(set, kw, domain.Vocabulary{}, cfg, nil, nil)

	if len(fused) != 1 {
		t.Fatalf("expected one result")
	}
	if got, want := fused[0].Breakdown.Lexical, cfg.LexicalWeight; got != want {
		t.Fatalf("capped lexical contribution = %v, want %v", got, want)
	}
}

func TestGraphNorm(t *testing.T) {
	reference := domain.RetrievalCandidate{GraphRelation: domain.GraphReference, GraphScore: 1.0}
	if got := graphNorm(reference); got != 1.0 {
		t.Fatalf("reference with full weight = %v, want 1.0", got)
	}
	reference.GraphScore = 0
	if got := graphNorm(reference); got != 0.7 {
		t.Fatalf("reference with zero weight = %v, want 0.7", got)
	}
	related := domain.RetrievalCandidate{GraphRelation: domain.GraphDomainRelated}
	if got := graphNorm(related); got != 0.3 {
		t.Fatalf("domain-related = %v, want 0.3", got)
	}
	if got := graphNorm(domain.RetrievalCandidate{}); got != 0 {
		t.Fatalf("no relation = %v, want 0", got)
	}
}

func TestLabelScoreStructuredComponents(t *testing.T) {
	kw := domain.Keywords{Core: []string{"教室管理"}}
	keywords := lowerSet(kw.Core)

	doc := domain.Document{
		ID:     "doc",
		Labels: []string{"教室管理", "運用"},
		Structured: &domain.StructuredLabel{
			Domain:  "教室管理",
			Feature: "教室管理機能",
			Tags:    []string{"教室管理"},
			Status:  "approved",
		},
	}

	got := labelScore(doc, keywords, kw, domain.Vocabulary{})

	// plain: 1 of 2 labels match -> 0.5 * 0.2 share
	// structured: domain 2.0 + feature full 3.0 + tag 0.5 + approved 0.2 = 5.7/6.0
	want := 0.2*0.5 + 0.8*(5.7/6.0)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("label score = %v, want %v", got, want)
	}
}

func TestLabelScoreTemplateCategoryCutOnIntentQuery(t *testing.T) {
	kw := domain.Keywords{Core: []string{"テンプレート", "一覧"}}
	keywords := lowerSet(kw.Core)
	vocab := domain.Vocabulary{IntentKeywords: []string{"一覧"}}

	templateDoc := domain.Document{
		ID:         "tpl",
		Structured: &domain.StructuredLabel{Category: "テンプレート"},
	}

	got := labelScore(templateDoc, keywords, kw, vocab)
	want := 0.8 * (0.05 / 6.0)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("template category score = %v, want cut value %v", got, want)
	}

	// without the intent keyword the full category credit applies
	kwNoIntent := domain.Keywords{Core: []string{"テンプレート"}}
	got = labelScore(templateDoc, lowerSet(kwNoIntent.Core), kwNoIntent, vocab)
	want = 0.8 * (0.3 / 6.0)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("category score without intent = %v, want %v", got, want)
	}
}

func TestFeatureMatch(t *testing.T) {
	tests := []struct {
		name    string
		feature string
		core    []string
		want    featureMatchKind
	}{
		{"full space joined", "classroom management", []string{"classroom", "management"}, featureFull},
		{"full no-space joined", "教室管理", []string{"教室", "管理"}, featureFull},
		{"full reversed order", "管理教室", []string{"教室", "管理"}, featureFull},
		{"partial single keyword", "教室レイアウト", []string{"教室", "予約"}, featurePartial},
		{"none", "billing", []string{"教室"}, featureNone},
		{"empty feature", "", []string{"教室"}, featureNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := featureMatch(tt.feature, tt.core); got != tt.want {
				t.Fatalf("featureMatch(%q, %v) = %v, want %v", tt.feature, tt.core, got, tt.want)
			}
		})
	}
}

func TestFuseCandidatesDropsCandidateWithoutSalvageableSignal(t *testing.T) {
	kw := domain.Keywords{Core: []string{"billing"}}
	cfg := domain.DefaultFusionConfig()

	poisoned := lexicalCandidate("doc", "billing spec", math.NaN())

	fused := FuseCandidates(CandidateSet{Lexical: []domain.RetrievalCandidate{poisoned}}, kw, domain.Vocabulary{}, cfg, nil, nil)

	if len(fused) != 0 {
		t.Fatalf("candidate with NaN score and no vector signal should be dropped, got %+v", fused)
	}
}

func TestFuseCandidatesFallsBackToVectorSignal(t *testing.T) {
	kw := domain.Keywords{Core: []string{"billing"}}
	cfg := domain.DefaultFusionConfig()

	c := vectorCandidate("doc", "billing spec", 0.4)
	c.LexicalScore = floatPtr(math.NaN())

	obs := &fakeObserver{}
	fused := FuseCandidates(CandidateSet{Vector: []domain.RetrievalCandidate{c}}, kw, domain.Vocabulary{}, cfg, nil, obs)

	if len(fused) != 1 {
		t.Fatalf("expected fallback result, got %d", len(fused))
	}
	want := 1 - 0.4/cfg.MaxVectorDistance
	if fused[0].Composite != want {
		t.Fatalf("fallback composite = %v, want distance-derived %v", fused[0].Composite, want)
	}
	if obs.fallbacks != 1 {
		t.Fatalf("fallback observations = %d, want 1", obs.fallbacks)
	}
}

func TestEffectiveScoreStrategies(t *testing.T) {
	r := domain.FusedResult{Composite: 0.6, RRF: 0.5}

	if got := EffectiveScore(r, domain.StrategyComposite); got != 0.6 {
		t.Fatalf("composite strategy = %v, want 0.6", got)
	}
	if got := EffectiveScore(r, domain.StrategyRRF); got != 0.5 {
		t.Fatalf("rrf strategy = %v, want 0.5", got)
	}
	want := 0.7*0.6 + 0.3*(0.5/1.5)
	if got := EffectiveScore(r, domain.StrategyBlend); math.Abs(got-want) > 1e-12 {
		t.Fatalf("blend strategy = %v, want %v", got, want)
	}
}

type fakeObserver struct {
	fallbacks    int
	failures     []string
	cacheHits    int
	cacheMisses  int
	searches     int
	lastResults  int
	lastDuration float64
}

func (o *fakeObserver) RecordSourceFailure(source string) { o.failures = append(o.failures, source) }
func (o *fakeObserver) RecordResultCache(hit bool) {
	if hit {
		o.cacheHits++
	} else {
		o.cacheMisses++
	}
}
func (o *fakeObserver) RecordSearch(duration float64, results int) {
	o.searches++
	o.lastDuration = duration
	o.lastResults = results
}
func (o *fakeObserver) RecordFallbackScore() { o.fallbacks++ }
