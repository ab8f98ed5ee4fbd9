package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	DefaultHTTPEndpoint       = "http://127.0.0.1:8844/embed"
	DefaultHTTPMaxLength      = 512
	DefaultHTTPRequestTimeout = 45 * time.Second
)

type embedRequest struct {
	Texts     []string `json:"texts,omitempty"`
	Input     []string `json:"input,omitempty"`
	Model     string   `json:"model,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Data       []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// HTTPProvider calls a self-hosted embedding service. Endpoints ending in
// /v1/embeddings are spoken to in the OpenAI-compatible shape ({"input": [...]});
// anything else receives {"texts": [...], "max_length": n}.
type HTTPProvider struct {
	endpoint  string
	model     string
	maxLength int
	client    *http.Client
}

func NewHTTPProvider(endpoint, model string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = DefaultHTTPRequestTimeout
	}
	return &HTTPProvider{
		endpoint:  normalizeEndpoint(endpoint),
		model:     strings.TrimSpace(model),
		maxLength: DefaultHTTPMaxLength,
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Name() string {
	return "http"
}

func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if p == nil {
		return nil, fmt.Errorf("http embedding provider is nil")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embedding text is empty")
	}

	payload := embedRequest{Texts: []string{text}, MaxLength: p.maxLength}
	if p.openAIShape() {
		payload = embedRequest{Input: []string{text}, Model: p.model}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding service status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	vectors := parsed.Embeddings
	if len(vectors) == 0 && len(parsed.Data) > 0 {
		sort.Slice(parsed.Data, func(i, j int) bool {
			return parsed.Data[i].Index < parsed.Data[j].Index
		})
		for _, row := range parsed.Data {
			vectors = append(vectors, row.Embedding)
		}
	}
	if len(vectors) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if err := checkVector(vectors[0]); err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *HTTPProvider) openAIShape() bool {
	parsed, err := url.Parse(p.endpoint)
	return err == nil && strings.HasSuffix(parsed.Path, "/v1/embeddings")
}

func normalizeEndpoint(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultHTTPEndpoint
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = "/embed"
	}
	return parsed.String()
}
