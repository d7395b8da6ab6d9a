package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	oaoption "github.com/openai/openai-go/option"
)

const (
	summaryPrompt  = "Summarize this: "
	keywordsPrompt = "Generate main keywords (numbered) to grasp insight of the content: "
)

// OpenAISummarizer answers summary and keyword requests with a chat model.
type OpenAISummarizer struct {
	client openai.Client
	model  string
}

func NewOpenAISummarizer(apiKey, model string, opts ...oaoption.RequestOption) *OpenAISummarizer {
	opts = append([]oaoption.RequestOption{oaoption.WithAPIKey(apiKey)}, opts...)
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAISummarizer{client: openai.NewClient(opts...), model: model}
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, text string) (string, error) {
	return s.complete(ctx, summaryPrompt+text)
}

func (s *OpenAISummarizer) Keywords(ctx context.Context, text string) (string, error) {
	return s.complete(ctx, keywordsPrompt+text)
}

func (s *OpenAISummarizer) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
