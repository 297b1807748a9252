package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL        = "http://127.0.0.1:8844"
	DefaultRequestTimeout = 45 * time.Second
	maxResponseBytes      = 4 << 20
)

type ClientOptions struct {
	BaseURL        string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Client talks to the model-serving sidecar that hosts the embedder, entity
// extractor, sentiment classifier, summarizer, and similarity index. Each
// call carries its own timeout and surfaces ErrTimeout distinguishably.
type Client struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		client:  client,
	}
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp embedResponse
	if err := c.post(ctx, "/embed", embedRequest{Text: text}, &resp); err != nil {
		return nil, wrapCallErr(ctx, "embed", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("embed: empty embedding in response")
	}
	return resp.Embedding, nil
}

type extractRequest struct {
	Text string `json:"text"`
}

func (c *Client) ExtractEntities(ctx context.Context, text string) (Entities, error) {
	var resp Entities
	if err := c.post(ctx, "/entities", extractRequest{Text: text}, &resp); err != nil {
		return Entities{}, wrapCallErr(ctx, "extract entities", err)
	}
	return resp, nil
}

func (c *Client) ClassifySentiment(ctx context.Context, text string) (Sentiment, error) {
	var resp Sentiment
	if err := c.post(ctx, "/sentiment", extractRequest{Text: text}, &resp); err != nil {
		return Sentiment{}, wrapCallErr(ctx, "classify sentiment", err)
	}
	if err := resp.Validate(); err != nil {
		return Sentiment{}, fmt.Errorf("classify sentiment: %w", err)
	}
	return resp, nil
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	var resp summarizeResponse
	if err := c.post(ctx, "/summarize", extractRequest{Text: text}, &resp); err != nil {
		return "", wrapCallErr(ctx, "summarize", err)
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return "", fmt.Errorf("summarize: empty summary in response")
	}
	return resp.Summary, nil
}

type indexUpsertRequest struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IndexUpsert replaces any prior entry stored under the same id.
func (c *Client) IndexUpsert(ctx context.Context, id int64, text string, metadata map[string]string) error {
	req := indexUpsertRequest{
		ID:       fmt.Sprintf("%d", id),
		Text:     text,
		Metadata: metadata,
	}
	if err := c.post(ctx, "/index/upsert", req, nil); err != nil {
		return wrapCallErr(ctx, "index upsert", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
