package domain

// SourceKind identifies the retrieval path that produced a candidate.
type SourceKind string

const (
	SourceVector         SourceKind = "vector"
	SourceLexical        SourceKind = "lexical"
	SourceTitleExact     SourceKind = "title-exact"
	SourceKnowledgeGraph SourceKind = "knowledge-graph"
)

// GraphRelation distinguishes how a knowledge-graph hit relates to the query.
type GraphRelation string

const (
	GraphReference     GraphRelation = "reference"
	GraphDomainRelated GraphRelation = "domain-related"
)

// RetrievalCandidate is one document surfaced by a single retrieval path.
// At least one of VectorDistance/LexicalScore is set; nil means the signal is
// absent for this candidate, not zero.
type RetrievalCandidate struct {
	Document        Document
	Source          SourceKind
	VectorDistance  *float64 // >= 0, ascending is better
	LexicalScore    *float64 // >= 0, descending is better
	TitleMatchRatio float64  // [0,1]
	LabelScore      float64  // [0,1]
	GraphRelation   GraphRelation
	GraphScore      float64 // [0,1], knowledge-graph hits only
}

// VectorHit is the raw output of the vector index search.
type VectorHit struct {
	Document Document
	Distance float64
}

// LexicalHit is the raw output of the lexical index search.
type LexicalHit struct {
	Document Document
	Score    float64
}

// GraphHit is the raw output of the knowledge-graph lookup.
type GraphHit struct {
	Document Document
	Relation GraphRelation
	Score    float64
}

// ScoreBreakdown records the weighted per-signal contributions that made up
// a composite score.
type ScoreBreakdown struct {
	Vector         float64 `json:"vector"`
	Lexical        float64 `json:"lexical"`
	Title          float64 `json:"title"`
	Label          float64 `json:"label"`
	KnowledgeGraph float64 `json:"knowledge_graph"`
	Multiplier     float64 `json:"multiplier"` // domain boost/penalty applied after the sum
}

// FusedResult is one ranked document after score fusion and formatting.
// FinalScore is always a finite integer in [0,100].
type FusedResult struct {
	Document   Document       `json:"document"`
	Composite  float64        `json:"composite_score"`
	RRF        float64        `json:"rrf_score,omitempty"`
	Breakdown  ScoreBreakdown `json:"score_breakdown"`
	FinalScore int            `json:"final_score"`

	// VectorConfidence is the distance-derived signal in [0,1], kept as the
	// fallback basis when a composite score turns out non-finite.
	VectorConfidence float64 `json:"-"`
}

// CloneFusedResults deep-copies a result set, including per-document label
// slices, so cached rankings cannot be mutated by callers.
func CloneFusedResults(results []FusedResult) []FusedResult {
	if results == nil {
		return nil
	}
	out := make([]FusedResult, len(results))
	copy(out, results)
	for i := range out {
		if labels := out[i].Document.Labels; labels != nil {
			out[i].Document.Labels = append([]string(nil), labels...)
		}
		if s := out[i].Document.Structured; s != nil {
			cp := *s
			if cp.Tags != nil {
				cp.Tags = append([]string(nil), cp.Tags...)
			}
			out[i].Document.Structured = &cp
		}
	}
	return out
}

// Keywords is the preprocessor output for one query.
type Keywords struct {
	Core     []string `json:"core"`
	Removed  []string `json:"removed,omitempty"`
	Priority []string `json:"priority,omitempty"`
}

// Vocabulary is the process-wide read-only keyword data loaded at startup
// from the domain-keyword source.
type Vocabulary struct {
	DomainTerms       []string
	GenericTitleTerms []string
	Stopwords         []string
	NegativeWords     []string
	IntentKeywords    []string // functional-intent markers ("how", "why", ...)
}
