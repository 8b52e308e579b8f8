package usecase

import (
	"math"
	"testing"

	"github.com/ymatsuda/docsearch/internal/core/domain"
)

func TestRRFByDocumentWeightsAndRanks(t *testing.T) {
	cfg := domain.DefaultFusionConfig()
	kw := domain.Keywords{Core: []string{"billing"}}

	a := vectorCandidate("a", "billing spec", 0.3)
	b := vectorCandidate("b", "billing faq", 0.5)

	set := CandidateSet{
		Vector:  []domain.RetrievalCandidate{a, b},
		Lexical: []domain.RetrievalCandidate{lexicalCandidate("b", "billing faq", 8)},
	}

	scores := rrfByDocument(set, kw, domain.Vocabulary{}, cfg)

	k := float64(cfg.RRFK)
	wantA := 1.0 / (k + 1)
	wantB := 1.0/(k+2) + 0.8/(k+1)
	if math.Abs(scores["a"]-wantA) > 1e-12 {
		t.Fatalf("score a = %v, want %v", scores["a"], wantA)
	}
	if math.Abs(scores["b"]-wantB) > 1e-12 {
		t.Fatalf("score b = %v, want %v", scores["b"], wantB)
	}
}

func TestRRFRankMonotonicity(t *testing.T) {
	cfg := domain.DefaultFusionConfig()
	kw := domain.Keywords{Core: []string{"billing"}}

	set := CandidateSet{
		Vector: []domain.RetrievalCandidate{
			vectorCandidate("first", "billing one", 0.1),
			vectorCandidate("second", "billing two", 0.2),
			vectorCandidate("third", "billing three", 0.3),
		},
	}

	scores := rrfByDocument(set, kw, domain.Vocabulary{}, cfg)

	if !(scores["first"] > scores["second"] && scores["second"] > scores["third"]) {
		t.Fatalf("rank order not monotone: %v", scores)
	}
}

func TestRRFTitleExactOutweighsVectorAtSameRank(t *testing.T) {
	cfg := domain.DefaultFusionConfig()
	kw := domain.Keywords{Core: []string{"billing"}}

	set := CandidateSet{
		Vector:     []domain.RetrievalCandidate{vectorCandidate("v", "billing one", 0.1)},
		TitleExact: []domain.RetrievalCandidate{candidateWith("t", "billing")},
	}

	scores := rrfByDocument(set, kw, domain.Vocabulary{}, cfg)

	if scores["t"] <= scores["v"] {
		t.Fatalf("title-exact %v should outrank vector %v at equal rank", scores["t"], scores["v"])
	}
}

func TestRRFTagBonus(t *testing.T) {
	cfg := domain.DefaultFusionConfig()
	kw := domain.Keywords{Core: []string{"教室", "予約"}}

	plain := candidateWith("plain", "ガイド")
	oneTag := candidateWith("one", "ガイド")
	oneTag.Document.Structured = &domain.StructuredLabel{Tags: []string{"教室"}}
	twoTags := candidateWith("two", "ガイド")
	twoTags.Document.Structured = &domain.StructuredLabel{Tags: []string{"教室", "予約"}}

	base := rrfByDocument(CandidateSet{Vector: []domain.RetrievalCandidate{plain}}, kw, domain.Vocabulary{}, cfg)
	single := rrfByDocument(CandidateSet{Vector: []domain.RetrievalCandidate{oneTag}}, kw, domain.Vocabulary{}, cfg)
	multiple := rrfByDocument(CandidateSet{Vector: []domain.RetrievalCandidate{twoTags}}, kw, domain.Vocabulary{}, cfg)

	if got, want := single["one"], base["plain"]*2; math.Abs(got-want) > 1e-12 {
		t.Fatalf("single tag bonus = %v, want %v", got, want)
	}
	if got, want := multiple["two"], base["plain"]*3; math.Abs(got-want) > 1e-12 {
		t.Fatalf("multiple tag bonus = %v, want %v", got, want)
	}
}

func TestRRFAppliesDomainMultiplier(t *testing.T) {
	cfg := domain.DefaultFusionConfig()
	kw := domain.Keywords{Core: []string{"教室管理"}}
	vocab := domain.Vocabulary{GenericTitleTerms: []string{"共通要件"}}

	generic := candidateWith("g", "共通要件まとめ")
	neutral := candidateWith("n", "教室だより")

	scores := rrfByDocument(CandidateSet{
		Vector: []domain.RetrievalCandidate{generic},
	}, kw, vocab, cfg)
	neutralScores := rrfByDocument(CandidateSet{
		Vector: []domain.RetrievalCandidate{neutral},
	}, kw, vocab, cfg)

	if got, want := scores["g"], neutralScores["n"]*0.5; math.Abs(got-want) > 1e-12 {
		t.Fatalf("generic rrf = %v, want halved %v", got, want)
	}
}
