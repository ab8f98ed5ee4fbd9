package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const DefaultOpenAIModel = "gpt-4o-mini"

type OpenAIGenerator struct {
	client openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIGenerator{client: openai.NewClient(opts...), model: model}
}

func (g *OpenAIGenerator) Name() string {
	return "openai"
}

func (g *OpenAIGenerator) Summarize(ctx context.Context, req Request) (Summary, error) {
	if g == nil {
		return Summary{}, fmt.Errorf("openai generator is nil")
	}
	if len(req.Sources) == 0 {
		return Summary{}, fmt.Errorf("no source text to summarize")
	}

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You write neutral Korean news digests. Never add facts that are not in the articles."),
			openai.UserMessage(buildPrompt(req)),
		},
		Model:       openai.ChatModel(g.model),
		MaxTokens:   openai.Int(600),
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return Summary{}, fmt.Errorf("openai chat request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Summary{}, fmt.Errorf("openai response missing choices")
	}
	return parseSummary(completion.Choices[0].Message.Content, req.Title)
}
