package qdrant

import (
	"hash/fnv"
	"math"
	"sort"
	"unicode"
)

const (
	sparseVectorName = "lexical"

	queryBM25K     = 1.2
	keywordBoost   = 1.5
	maxSparseTerms = 256
)

type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// encodeSparseQuery builds the BM25-weighted sparse query vector from the
// full query text plus the extracted keywords, which get a term boost.
func encodeSparseQuery(queryText string, keywords []string) sparseVector {
	termFreq := make(map[uint32]float64, 32)
	appendTermFreq(termFreq, tokenizeLexical(queryText), 1.0)
	for _, kw := range keywords {
		appendTermFreq(termFreq, tokenizeLexical(kw), keywordBoost)
	}
	return termFreqToSparse(termFreq, queryBM25K)
}

func appendTermFreq(dst map[uint32]float64, tokens []string, tokenWeight float64) {
	for _, token := range tokens {
		if token == "" {
			continue
		}
		dst[hashToken(token)] += tokenWeight
	}
}

func termFreqToSparse(tf map[uint32]float64, k float64) sparseVector {
	if len(tf) == 0 {
		return sparseVector{}
	}
	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	if len(indices) > maxSparseTerms {
		indices = indices[:maxSparseTerms]
	}

	values := make([]float32, 0, len(indices))
	for _, idx := range indices {
		tfValue := tf[idx]
		weight := (tfValue * (k + 1.0)) / (tfValue + k)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values = append(values, float32(weight))
	}

	return sparseVector{Indices: indices, Values: values}
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum32()
	if sum == 0 {
		return 1
	}
	return sum
}

// tokenizeLexical lowercases and splits on non-letter/digit boundaries.
// Runs of Han/Kana are additionally expanded into character bigrams so
// unsegmented Japanese text matches at the subword level, mirroring how the
// ingestion side indexes it.
func tokenizeLexical(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var run []rune
	cjk := false

	flush := func() {
		if len(run) == 0 {
			return
		}
		if cjk {
			out = append(out, cjkBigrams(run)...)
		} else {
			out = append(out, string(run))
		}
		run = run[:0]
	}

	for _, r := range s {
		r = unicode.ToLower(r)
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		isCJK := unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r)
		if len(run) > 0 && isCJK != cjk {
			flush()
		}
		cjk = isCJK
		run = append(run, r)
	}
	flush()
	return out
}

func cjkBigrams(run []rune) []string {
	if len(run) == 1 {
		return []string{string(run)}
	}
	out := make([]string, 0, len(run)-1)
	for i := 0; i+1 < len(run); i++ {
		out = append(out, string(run[i:i+2]))
	}
	return out
}
