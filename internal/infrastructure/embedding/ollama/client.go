package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ymatsuda/docsearch/internal/core/domain"
	"github.com/ymatsuda/docsearch/internal/infrastructure/resilience"
)

// Client talks to an Ollama-compatible embedding endpoint. Every call is
// rate limited client-side and retried through the resilience executor.
// Returned vectors are L2-normalized so cosine distance is well defined
// regardless of the model's raw output scale.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

type Options struct {
	Timeout  time.Duration
	Rate     rate.Limit // requests per second, 0 disables limiting
	Burst    int
	Executor *resilience.Executor
}

func New(baseURL, model string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	var limiter *rate.Limiter
	if options.Rate > 0 {
		burst := options.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(options.Rate, burst)
	}
	executor := options.Executor
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		executor:   executor,
	}
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrProvider, "embed query", fmt.Errorf("provider returned no embedding"))
	}
	return vectors[0], nil
}

// Embed embeds a batch. A payload-too-large response bisects the batch and
// retries the halves independently; a single oversized text propagates.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := c.embedBatch(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	if !domain.IsKind(err, domain.ErrPayloadTooLarge) || len(texts) == 1 {
		return nil, err
	}

	mid := len(texts) / 2
	left, err := c.Embed(ctx, texts[:mid])
	if err != nil {
		return nil, err
	}
	right, err := c.Embed(ctx, texts[mid:])
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	request := map[string]any{
		"model": c.model,
		"input": texts,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}

	err := c.executor.Execute(ctx, "embed", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/embed", request, &response)
	}, resilience.ProviderClassifier)
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, domain.WrapError(domain.ErrProvider, "embed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Embeddings)))
	}
	for i := range response.Embeddings {
		l2Normalize(response.Embeddings[i])
	}
	return response.Embeddings, nil
}

func (c *Client) postJSON(ctx context.Context, path string, request, response any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrProvider, "embedding request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return domain.WrapError(domain.ErrPayloadTooLarge, "embedding request", fmt.Errorf("status %s", resp.Status))
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return domain.WrapError(domain.ErrProvider, "embedding request", fmt.Errorf("status %s", resp.Status))
	}
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if isPayloadTooLargeBody(detail) {
			return domain.WrapError(domain.ErrPayloadTooLarge, "embedding request", fmt.Errorf("status %s", resp.Status))
		}
		return fmt.Errorf("embedding request status %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return domain.WrapError(domain.ErrProvider, "decode embedding response", err)
	}
	return nil
}

// Some providers report oversized payloads as 400 with a descriptive body.
func isPayloadTooLargeBody(body []byte) bool {
	lb := strings.ToLower(string(body))
	return strings.Contains(lb, "too large") || strings.Contains(lb, "payload size") || strings.Contains(lb, "context length")
}

func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
