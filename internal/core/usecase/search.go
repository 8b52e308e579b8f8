package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ymatsuda/docsearch/internal/core/domain"
	"github.com/ymatsuda/docsearch/internal/core/ports"
)

// candidateMultiplier sizes the per-path candidate limit relative to the
// requested topK so fusion has headroom to reorder.
const candidateMultiplier = 2

// SearchUseCase is the hybrid retrieval pipeline: preprocess, embed (cached),
// retrieve concurrently from the vector, lexical, and knowledge-graph paths,
// filter, fuse, and format. One instance serves concurrent queries; the cache
// manager is the only shared mutable state behind it.
type SearchUseCase struct {
	preprocessor *Preprocessor
	embedder     ports.Embedder
	vectorIndex  ports.VectorIndex
	lexicalIndex ports.LexicalIndex
	graphIndex   ports.GraphIndex
	labels       ports.LabelStore
	source       ports.KeywordSource
	results      ports.ResultCache
	observer     ports.SearchObserver
	logger       *slog.Logger
	pathTimeout  time.Duration
}

type SearchOption func(*SearchUseCase)

// WithGraphIndex enables the knowledge-graph retrieval path.
func WithGraphIndex(g ports.GraphIndex) SearchOption {
	return func(uc *SearchUseCase) { uc.graphIndex = g }
}

// WithResultCache enables whole-result caching around the pipeline.
func WithResultCache(c ports.ResultCache) SearchOption {
	return func(uc *SearchUseCase) { uc.results = c }
}

// WithObserver attaches pipeline metrics.
func WithObserver(o ports.SearchObserver) SearchOption {
	return func(uc *SearchUseCase) { uc.observer = o }
}

// WithPathTimeout overrides the per-retrieval-path timeout.
func WithPathTimeout(d time.Duration) SearchOption {
	return func(uc *SearchUseCase) {
		if d > 0 {
			uc.pathTimeout = d
		}
	}
}

func NewSearchUseCase(
	preprocessor *Preprocessor,
	embedder ports.Embedder,
	vectorIndex ports.VectorIndex,
	lexicalIndex ports.LexicalIndex,
	labels ports.LabelStore,
	source ports.KeywordSource,
	logger *slog.Logger,
	opts ...SearchOption,
) *SearchUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	uc := &SearchUseCase{
		preprocessor: preprocessor,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		lexicalIndex: lexicalIndex,
		labels:       labels,
		source:       source,
		logger:       logger,
		pathTimeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Search runs the full pipeline and returns at most cfg.TopK results ordered
// by final score descending. A failed retrieval path degrades to an empty
// list for that source; the query only fails when every signal source failed.
func (uc *SearchUseCase) Search(ctx context.Context, query string, cfg domain.FusionConfig) ([]domain.FusedResult, error) {
	start := time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is empty"))
	}

	cacheKey := NormalizeQuery(query) + "|" + cfg.Fingerprint()
	if uc.results != nil {
		if cached, ok := uc.results.Get(cacheKey); ok {
			uc.recordResultCache(true)
			return cached, nil
		}
		uc.recordResultCache(false)
	}

	kw, queryVector, embedErr := uc.prepare(ctx, query)
	if embedErr != nil {
		uc.logger.Warn("embedding_degraded", "error", embedErr)
		uc.recordSourceFailure("embedding")
	}

	set, failed, attempted := uc.retrieve(ctx, query, kw, queryVector, cfg)
	if attempted > 0 && failed == attempted {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "search", fmt.Errorf("all %d retrieval paths failed", attempted))
	}

	uc.enrichLabels(ctx, &set)
	annotateTitleMatch(&set, kw)
	set.TitleExact = titleExactCandidates(set, query)

	set.Vector = FilterCandidates(set.Vector, cfg.ExcludeLabels, cfg.ExcludeTitlePatterns)
	set.Lexical = FilterCandidates(set.Lexical, cfg.ExcludeLabels, cfg.ExcludeTitlePatterns)
	set.TitleExact = FilterCandidates(set.TitleExact, cfg.ExcludeLabels, cfg.ExcludeTitlePatterns)
	set.Graph = FilterCandidates(set.Graph, cfg.ExcludeLabels, cfg.ExcludeTitlePatterns)

	vocab := domain.Vocabulary{}
	if uc.source != nil {
		vocab = uc.source.Vocabulary()
	}
	fused := FuseCandidates(set, kw, vocab, cfg, uc.logger, uc.observer)
	out := FormatResults(fused, cfg.Strategy, cfg.TopK, uc.logger, uc.observer)

	if uc.results != nil {
		if cfg.CacheTTL > 0 {
			uc.results.SetWithTTL(cacheKey, out, cfg.CacheTTL)
		} else {
			uc.results.Set(cacheKey, out)
		}
	}
	if uc.observer != nil {
		uc.observer.RecordSearch(time.Since(start).Seconds(), len(out))
	}
	return out, nil
}

// prepare runs keyword extraction and embedding generation concurrently.
// An embedding failure is not fatal here; it disables the vector path.
func (uc *SearchUseCase) prepare(ctx context.Context, query string) (domain.Keywords, []float32, error) {
	var (
		kw       domain.Keywords
		vector   []float32
		embedErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		kw = uc.preprocessor.Process(query)
		return nil
	})
	g.Go(func() error {
		if uc.embedder == nil {
			embedErr = fmt.Errorf("no embedder configured")
			return nil
		}
		callCtx, cancel := context.WithTimeout(gctx, uc.pathTimeout)
		defer cancel()
		vector, embedErr = uc.embedder.EmbedQuery(callCtx, query)
		return nil
	})
	_ = g.Wait()
	return kw, vector, embedErr
}

// retrieve fans out to the configured retrieval paths. Each path carries its
// own timeout and degrades independently.
func (uc *SearchUseCase) retrieve(
	ctx context.Context,
	query string,
	kw domain.Keywords,
	queryVector []float32,
	cfg domain.FusionConfig,
) (set CandidateSet, failed, attempted int) {
	limit := cfg.TopK * candidateMultiplier

	type pathResult struct {
		candidates []domain.RetrievalCandidate
		err        error
	}
	var vectorRes, lexicalRes, graphRes pathResult

	g := &errgroup.Group{}

	runVector := uc.vectorIndex != nil && len(queryVector) > 0
	if runVector {
		attempted++
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, uc.pathTimeout)
			defer cancel()
			hits, err := uc.vectorIndex.Search(callCtx, queryVector, limit)
			if err != nil {
				vectorRes.err = err
				return nil
			}
			vectorRes.candidates = vectorCandidates(hits, cfg)
			return nil
		})
	}

	runLexical := uc.lexicalIndex != nil
	if runLexical {
		attempted++
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, uc.pathTimeout)
			defer cancel()
			hits, err := uc.lexicalIndex.Search(callCtx, query, kw.Core, limit)
			if err != nil {
				lexicalRes.err = err
				return nil
			}
			lexicalRes.candidates = lexicalCandidates(hits)
			return nil
		})
	}

	runGraph := uc.graphIndex != nil && len(kw.Priority) > 0
	if runGraph {
		attempted++
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, uc.pathTimeout)
			defer cancel()
			hits, err := uc.graphIndex.Related(callCtx, kw.Priority, limit)
			if err != nil {
				graphRes.err = err
				return nil
			}
			graphRes.candidates = graphCandidates(hits)
			return nil
		})
	}

	_ = g.Wait()

	for source, res := range map[string]*pathResult{
		"vector":          &vectorRes,
		"lexical":         &lexicalRes,
		"knowledge-graph": &graphRes,
	} {
		if res.err != nil {
			failed++
			uc.logger.Warn("retrieval_path_failed", "source", source, "error", res.err)
			uc.recordSourceFailure(source)
		}
	}

	set.Vector = vectorRes.candidates
	set.Lexical = lexicalRes.candidates
	set.Graph = graphRes.candidates
	return set, failed, attempted
}

// enrichLabels resolves labels and structured labels for every unique
// document. A metadata-store failure degrades to unlabeled candidates.
func (uc *SearchUseCase) enrichLabels(ctx context.Context, set *CandidateSet) {
	if uc.labels == nil {
		return
	}
	type labelInfo struct {
		labels     []string
		structured *domain.StructuredLabel
	}
	resolved := make(map[string]labelInfo)
	var failedOnce bool

	lookup := func(id string) (labelInfo, bool) {
		if info, ok := resolved[id]; ok {
			return info, true
		}
		labels, structured, err := uc.labels.GetLabels(ctx, id)
		if err != nil {
			if !failedOnce {
				failedOnce = true
				uc.logger.Warn("label_lookup_degraded", "document_id", id, "error", err)
			}
			resolved[id] = labelInfo{}
			return labelInfo{}, false
		}
		info := labelInfo{labels: labels, structured: structured}
		resolved[id] = info
		return info, true
	}

	apply := func(list []domain.RetrievalCandidate) {
		for i := range list {
			c := &list[i]
			if len(c.Document.Labels) > 0 && c.Document.Structured != nil {
				continue
			}
			info, ok := lookup(c.Document.ID)
			if !ok {
				continue
			}
			if len(c.Document.Labels) == 0 {
				c.Document.Labels = info.labels
			}
			if c.Document.Structured == nil {
				c.Document.Structured = info.structured
			}
		}
	}
	apply(set.Vector)
	apply(set.Lexical)
	apply(set.Graph)
}

func (uc *SearchUseCase) recordSourceFailure(source string) {
	if uc.observer != nil {
		uc.observer.RecordSourceFailure(source)
	}
}

func (uc *SearchUseCase) recordResultCache(hit bool) {
	if uc.observer != nil {
		uc.observer.RecordResultCache(hit)
	}
}

func vectorCandidates(hits []domain.VectorHit, cfg domain.FusionConfig) []domain.RetrievalCandidate {
	out := make([]domain.RetrievalCandidate, 0, len(hits))
	for _, h := range hits {
		d := h.Distance
		if cfg.DistanceThreshold > 0 && d > cfg.DistanceThreshold {
			continue
		}
		if cfg.QualityThreshold > 0 && d > cfg.QualityThreshold {
			continue
		}
		out = append(out, domain.RetrievalCandidate{
			Document:       h.Document,
			Source:         domain.SourceVector,
			VectorDistance: &d,
		})
	}
	return out
}

func lexicalCandidates(hits []domain.LexicalHit) []domain.RetrievalCandidate {
	out := make([]domain.RetrievalCandidate, 0, len(hits))
	for _, h := range hits {
		s := h.Score
		out = append(out, domain.RetrievalCandidate{
			Document:     h.Document,
			Source:       domain.SourceLexical,
			LexicalScore: &s,
		})
	}
	return out
}

func graphCandidates(hits []domain.GraphHit) []domain.RetrievalCandidate {
	out := make([]domain.RetrievalCandidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.RetrievalCandidate{
			Document:      h.Document,
			Source:        domain.SourceKnowledgeGraph,
			GraphRelation: h.Relation,
			GraphScore:    h.Score,
		})
	}
	return out
}

// annotateTitleMatch sets each candidate's title-match ratio: the fraction of
// core keywords contained in the title.
func annotateTitleMatch(set *CandidateSet, kw domain.Keywords) {
	apply := func(list []domain.RetrievalCandidate) {
		for i := range list {
			list[i].TitleMatchRatio = titleMatchRatio(list[i].Document.Title, kw.Core)
		}
	}
	apply(set.Vector)
	apply(set.Lexical)
	apply(set.Graph)
}

func titleMatchRatio(title string, core []string) float64 {
	if len(core) == 0 || title == "" {
		return 0
	}
	lt := strings.ToLower(title)
	matched := 0
	for _, k := range core {
		if strings.Contains(lt, k) {
			matched++
		}
	}
	return float64(matched) / float64(len(core))
}

// titleExactCandidates derives the title-exact source list: candidates whose
// title contains the whole normalized query, in vector-first encounter order.
func titleExactCandidates(set CandidateSet, query string) []domain.RetrievalCandidate {
	nq := NormalizeQuery(query)
	if nq == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []domain.RetrievalCandidate
	collect := func(list []domain.RetrievalCandidate) {
		for _, c := range list {
			if _, dup := seen[c.Document.ID]; dup {
				continue
			}
			if strings.Contains(strings.ToLower(c.Document.Title), nq) {
				seen[c.Document.ID] = struct{}{}
				exact := c
				exact.Source = domain.SourceTitleExact
				out = append(out, exact)
			}
		}
	}
	collect(set.Vector)
	collect(set.Lexical)
	return out
}
