package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"llm-rebalancer/internal/store"
	"llm-rebalancer/internal/trace"
)

// Advisor completes prompts with the OpenAI chat completions API.
type Advisor struct {
	client *goopenai.Client
	cfg    *store.Config
}

// NewAdvisor builds a client from the key in the configured env var. A
// custom llm.base_url points the client at any compatible endpoint.
func NewAdvisor(cfg *store.Config) (*Advisor, error) {
	apiKey := store.Secret(cfg.LLM.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s missing", cfg.LLM.APIKeyEnv)
	}
	oc := goopenai.DefaultConfig(apiKey)
	if cfg.LLM.BaseURL != "" {
		oc.BaseURL = cfg.LLM.BaseURL
	}
	return &Advisor{client: goopenai.NewClientWithConfig(oc), cfg: cfg}, nil
}

func (a *Advisor) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	model := a.cfg.LLM.Model
	if model == "" {
		model = goopenai.GPT4oMini
	}

	var msgs []goopenai.ChatCompletionMessage
	if a.cfg.LLM.System != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: a.cfg.LLM.System})
	}
	msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: prompt})

	resp, err := a.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   a.cfg.LLM.MaxTokens,
		Temperature: a.cfg.LLM.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
