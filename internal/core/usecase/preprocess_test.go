package usecase

import (
	"reflect"
	"testing"

	"github.com/ymatsuda/docsearch/internal/core/domain"
)

type staticSource struct {
	vocab domain.Vocabulary
}

func (s staticSource) Vocabulary() domain.Vocabulary { return s.vocab }

func TestProcessRemovesStopwordsAndNegatives(t *testing.T) {
	source := staticSource{vocab: domain.Vocabulary{
		Stopwords:     []string{"the", "of"},
		NegativeWords: []string{"not"},
	}}
	p := NewPreprocessor(source, nil)

	kw := p.Process("the spec of not billing")

	want := []string{"spec", "billing"}
	if !reflect.DeepEqual(kw.Core, want) {
		t.Fatalf("core keywords = %v, want %v", kw.Core, want)
	}
	wantRemoved := []string{"the", "of", "not"}
	if !reflect.DeepEqual(kw.Removed, wantRemoved) {
		t.Fatalf("removed = %v, want %v", kw.Removed, wantRemoved)
	}
}

func TestProcessDeduplicatesPreservingOrder(t *testing.T) {
	p := NewPreprocessor(staticSource{}, nil)

	kw := p.Process("billing invoice billing refund")

	want := []string{"billing", "invoice", "refund"}
	if !reflect.DeepEqual(kw.Core, want) {
		t.Fatalf("core keywords = %v, want %v", kw.Core, want)
	}
}

func TestProcessSurfacesDomainTermsFromUnsegmentedQuery(t *testing.T) {
	source := staticSource{vocab: domain.Vocabulary{
		DomainTerms: []string{"教室管理", "予約"},
	}}
	p := NewPreprocessor(source, nil)

	kw := p.Process("教室管理の予約について")

	if len(kw.Core) == 0 {
		t.Fatal("expected core keywords from domain term scan")
	}
	if !containsString(kw.Core, "教室管理") {
		t.Fatalf("core %v missing domain term 教室管理", kw.Core)
	}
	if !containsString(kw.Core, "予約") {
		t.Fatalf("core %v missing domain term 予約", kw.Core)
	}
	// surfaced terms follow query position order
	iClassroom := indexOfString(kw.Core, "教室管理")
	iReserve := indexOfString(kw.Core, "予約")
	if iClassroom > iReserve {
		t.Fatalf("domain terms out of positional order: %v", kw.Core)
	}
}

func TestProcessPriorityIsFirstThreeKeywords(t *testing.T) {
	p := NewPreprocessor(staticSource{}, nil)

	kw := p.Process("alpha beta gamma delta")

	want := []string{"alpha", "beta", "gamma"}
	if !reflect.DeepEqual(kw.Priority, want) {
		t.Fatalf("priority = %v, want %v", kw.Priority, want)
	}
}

func TestProcessUsesKeywordCache(t *testing.T) {
	cache := &fakeKeywordCache{entries: map[string]domain.Keywords{}}
	p := NewPreprocessor(staticSource{}, cache)

	first := p.Process("Billing  Spec")
	second := p.Process("billing spec")

	if !reflect.DeepEqual(first.Core, second.Core) {
		t.Fatalf("cached result diverged: %v vs %v", first.Core, second.Core)
	}
	if cache.hits != 1 {
		t.Fatalf("cache hits = %d, want 1 (normalized key should collide)", cache.hits)
	}
}

func TestNormalizeQuery(t *testing.T) {
	got := NormalizeQuery("  Classroom   Management\tSpec ")
	want := "classroom management spec"
	if got != want {
		t.Fatalf("NormalizeQuery = %q, want %q", got, want)
	}
}

func TestTokenizeQueryKeepsCJKRunsWhole(t *testing.T) {
	tokens := tokenizeQuery("教室管理 spec-2024")
	want := []string{"教室管理", "spec", "2024"}
	if !reflect.DeepEqual(tokens, want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
}

type fakeKeywordCache struct {
	entries map[string]domain.Keywords
	hits    int
}

func (c *fakeKeywordCache) Get(key string) (domain.Keywords, bool) {
	kw, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return kw, ok
}

func (c *fakeKeywordCache) Set(key string, kw domain.Keywords) {
	c.entries[key] = kw
}

func containsString(values []string, want string) bool {
	return indexOfString(values, want) >= 0
}

func indexOfString(values []string, want string) int {
	for i, v := range values {
		if v == want {
			return i
		}
	}
	return -1
}
