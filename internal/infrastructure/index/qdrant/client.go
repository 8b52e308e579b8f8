package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ymatsuda/docsearch/internal/core/domain"
)

// Client is a thin HTTP client for a qdrant collection holding both the
// dense document vectors and a named sparse vector for lexical search.
// The collection is written by ingestion; this core only reads.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// VectorIndex adapts the client to the dense search port.
type VectorIndex struct {
	client *Client
}

func NewVectorIndex(client *Client) *VectorIndex {
	return &VectorIndex{client: client}
}

// Search returns hits ordered by ascending cosine distance. qdrant reports
// cosine similarity; distance = 1 - similarity, floored at zero.
func (v *VectorIndex) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.VectorHit, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}

	points, err := v.client.searchPoints(ctx, "/points/search", reqBody)
	if err != nil {
		return nil, err
	}

	out := make([]domain.VectorHit, 0, len(points))
	for _, p := range points {
		distance := 1 - p.Score
		if distance < 0 {
			distance = 0
		}
		out = append(out, domain.VectorHit{
			Document: documentFromPayload(p.Payload),
			Distance: distance,
		})
	}
	return out, nil
}

// LexicalIndex adapts the client to the BM25-style sparse search port.
type LexicalIndex struct {
	client *Client
}

func NewLexicalIndex(client *Client) *LexicalIndex {
	return &LexicalIndex{client: client}
}

// Search queries the named sparse vector with BM25-weighted query terms.
// Hits come back ordered by descending score.
func (l *LexicalIndex) Search(ctx context.Context, queryText string, keywords []string, limit int) ([]domain.LexicalHit, error) {
	sparse := encodeSparseQuery(queryText, keywords)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"query": map[string]any{
			"indices": sparse.Indices,
			"values":  sparse.Values,
		},
		"using":        sparseVectorName,
		"limit":        limit,
		"with_payload": true,
	}

	points, err := l.client.searchPoints(ctx, "/points/query", reqBody)
	if err != nil {
		return nil, err
	}

	out := make([]domain.LexicalHit, 0, len(points))
	for _, p := range points {
		out = append(out, domain.LexicalHit{
			Document: documentFromPayload(p.Payload),
			Score:    p.Score,
		})
	}
	return out, nil
}

type scoredPoint struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) searchPoints(ctx context.Context, endpoint string, reqBody map[string]any) ([]scoredPoint, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.collection, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProvider, "qdrant search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, domain.WrapError(domain.ErrProvider, "qdrant search",
			fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(detail))))
	}

	// /points/search returns a flat result list; /points/query nests points.
	var searchResp struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, domain.WrapError(domain.ErrProvider, "decode search response", err)
	}

	var flat []scoredPoint
	if err := json.Unmarshal(searchResp.Result, &flat); err == nil {
		return flat, nil
	}
	var nested struct {
		Points []scoredPoint `json:"points"`
	}
	if err := json.Unmarshal(searchResp.Result, &nested); err != nil {
		return nil, domain.WrapError(domain.ErrProvider, "decode search response", err)
	}
	return nested.Points, nil
}

func documentFromPayload(payload map[string]any) domain.Document {
	return domain.Document{
		ID:      payloadString(payload, "doc_id"),
		Title:   payloadString(payload, "title"),
		Content: payloadString(payload, "text"),
		Labels:  payloadStrings(payload, "labels"),
	}
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	v, _ := payload[key].(string)
	return v
}

func payloadStrings(payload map[string]any, key string) []string {
	if payload == nil {
		return nil
	}
	raw, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
