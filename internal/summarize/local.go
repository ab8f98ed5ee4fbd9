package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultLocalEndpoint points to a local OpenAI-compatible chat endpoint.
	DefaultLocalEndpoint = "http://127.0.0.1:8845/v1"
	DefaultLocalModel    = "qwen2.5-7b-instruct"
)

// LocalGenerator summarizes through an OpenAI-compatible chat completions endpoint.
type LocalGenerator struct {
	endpointURL string
	model       string
	client      *http.Client
}

func NewLocalGenerator(endpoint, model string, timeout time.Duration) *LocalGenerator {
	trimmedModel := strings.TrimSpace(model)
	if trimmedModel == "" {
		trimmedModel = DefaultLocalModel
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &LocalGenerator{
		endpointURL: chatCompletionsURL(normalizeEndpoint(endpoint)),
		model:       trimmedModel,
		client:      &http.Client{Timeout: timeout},
	}
}

func (g *LocalGenerator) Name() string {
	return "local"
}

func (g *LocalGenerator) Summarize(ctx context.Context, req Request) (Summary, error) {
	if g == nil {
		return Summary{}, fmt.Errorf("local generator is nil")
	}
	if len(req.Sources) == 0 {
		return Summary{}, fmt.Errorf("no source text to summarize")
	}

	body, err := json.Marshal(localChatRequest{
		Model: g.model,
		Messages: []localChatMessage{
			{Role: "user", Content: buildPrompt(req)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("marshal summary request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpointURL, bytes.NewReader(body))
	if err != nil {
		return Summary{}, fmt.Errorf("build summary request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Summary{}, fmt.Errorf("send summary request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Summary{}, fmt.Errorf("read summary response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errPayload localChatErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &errPayload); unmarshalErr == nil {
			if msg := strings.TrimSpace(errPayload.Error.Message); msg != "" {
				return Summary{}, fmt.Errorf("summary endpoint status %d: %s", resp.StatusCode, msg)
			}
		}
		return Summary{}, fmt.Errorf("summary endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed localChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Summary{}, fmt.Errorf("decode summary response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Summary{}, fmt.Errorf("summary response missing choices")
	}
	return parseSummary(parsed.Choices[0].Message.Content, req.Title)
}

type localChatRequest struct {
	Model       string             `json:"model"`
	Messages    []localChatMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
}

type localChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type localChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type localChatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return DefaultLocalEndpoint
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultLocalEndpoint
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	if parsed.Path == "" {
		parsed.Path = "/v1"
	}
	return parsed.String()
}

func chatCompletionsURL(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultLocalEndpoint + "/chat/completions"
	}

	path := strings.TrimRight(parsed.Path, "/")
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		parsed.Path = path
	case strings.HasSuffix(path, "/v1"):
		parsed.Path = path + "/chat/completions"
	default:
		parsed.Path = path + "/v1/chat/completions"
	}
	return parsed.String()
}
