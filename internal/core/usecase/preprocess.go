package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/ymatsuda/docsearch/internal/core/domain"
	"github.com/ymatsuda/docsearch/internal/core/ports"
)

const priorityKeywordCount = 3

// Preprocessor turns a raw query into core keywords: tokens minus stopwords
// and negative words, plus domain terms surfaced by substring scan. The scan
// is what makes unsegmented Japanese queries retrievable by keyword.
type Preprocessor struct {
	source ports.KeywordSource
	cache  ports.KeywordCache
}

func NewPreprocessor(source ports.KeywordSource, cache ports.KeywordCache) *Preprocessor {
	return &Preprocessor{source: source, cache: cache}
}

// Process is deterministic: identical query and vocabulary always produce the
// same keywords in source-token order. An empty result is not an error;
// downstream fusion then leans on the vector signal alone.
func (p *Preprocessor) Process(query string) domain.Keywords {
	normalized := NormalizeQuery(query)
	if p.cache != nil {
		if kw, ok := p.cache.Get(normalized); ok {
			return kw
		}
	}

	vocab := domain.Vocabulary{}
	if p.source != nil {
		vocab = p.source.Vocabulary()
	}
	stopwords := lowerSet(vocab.Stopwords)
	negatives := lowerSet(vocab.NegativeWords)

	var core, removed []string
	seen := make(map[string]struct{})
	for _, token := range tokenizeQuery(query) {
		if _, ok := negatives[token]; ok {
			removed = append(removed, token)
			continue
		}
		if _, ok := stopwords[token]; ok {
			removed = append(removed, token)
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		core = append(core, token)
	}

	core = appendDomainTerms(core, seen, normalized, vocab.DomainTerms)

	kw := domain.Keywords{
		Core:     core,
		Removed:  removed,
		Priority: priorityKeywords(core),
	}
	if p.cache != nil {
		p.cache.Set(normalized, kw)
	}
	return kw
}

// NormalizeQuery collapses whitespace and case so cache keys are stable
// across trivially different spellings of the same query.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func priorityKeywords(core []string) []string {
	if len(core) == 0 {
		return nil
	}
	n := priorityKeywordCount
	if len(core) < n {
		n = len(core)
	}
	out := make([]string, n)
	copy(out, core[:n])
	return out
}

// appendDomainTerms surfaces vocabulary terms that occur inside the query as
// substrings, ordered by their position of occurrence, skipping terms already
// present as tokens. Substring scan handles scripts without word separators.
func appendDomainTerms(core []string, seen map[string]struct{}, normalized string, terms []string) []string {
	type surfaced struct {
		term string
		pos  int
	}
	var found []surfaced
	for _, term := range terms {
		lt := strings.ToLower(strings.TrimSpace(term))
		if lt == "" {
			continue
		}
		if _, ok := seen[lt]; ok {
			continue
		}
		if pos := strings.Index(normalized, lt); pos >= 0 {
			found = append(found, surfaced{term: lt, pos: pos})
			seen[lt] = struct{}{}
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	for _, s := range found {
		core = append(core, s.term)
	}
	return core
}

// tokenizeQuery splits on anything that is not a letter or digit, keeping
// CJK runs whole. Short tokens are retained; stopword filtering is the only
// way a token is dropped.
func tokenizeQuery(s string) []string {
	if s == "" {
		return nil
	}
	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func lowerSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}
