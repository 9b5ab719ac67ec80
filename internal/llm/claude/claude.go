package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"llm-rebalancer/internal/api"
	"llm-rebalancer/internal/store"
	"llm-rebalancer/internal/trace"
)

const (
	defaultEndpoint = "https://api.anthropic.com"
	apiVersion      = "2023-06-01"
)

// Advisor completes prompts with the Anthropic messages API.
type Advisor struct {
	cfg    *store.Config
	client *api.Client
}

// NewAdvisor reads the key from the configured env var. llm.base_url (or
// CLAUDE_API_ENDPOINT) overrides the endpoint for proxies.
func NewAdvisor(cfg *store.Config) (*Advisor, error) {
	apiKey := store.Secret(cfg.LLM.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s missing", cfg.LLM.APIKeyEnv)
	}
	endpoint := defaultEndpoint
	if ep := store.Secret("CLAUDE_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	if cfg.LLM.BaseURL != "" {
		endpoint = cfg.LLM.BaseURL
	}
	client := api.NewClient(
		api.WithBaseURL(strings.TrimRight(endpoint, "/")),
		api.WithTimeout(cfg.LLM.Timeout),
		api.WithHeader("x-api-key", apiKey),
		api.WithHeader("anthropic-version", apiVersion),
		api.WithLogging(true),
	)
	return &Advisor{cfg: cfg, client: client}, nil
}

func (a *Advisor) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	body := map[string]any{
		"model":       a.cfg.LLM.Model,
		"max_tokens":  a.cfg.LLM.MaxTokens,
		"temperature": a.cfg.LLM.Temperature,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if a.cfg.LLM.System != "" {
		body["system"] = a.cfg.LLM.System
	}

	req := api.NewRequest(ctx, "POST", "/v1/messages").WithBody(body)
	resp, err := a.client.DoWithRetry(req, api.DefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}
	return extractText(resp.Body)
}

// extractText pulls the assistant text out of a messages response, falling
// back to the older completion shapes some proxies still return.
func extractText(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body)), nil
	}

	var parts []string
	gjson.GetBytes(body, "content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			parts = append(parts, block.Get("text").String())
		}
		return true
	})
	if len(parts) > 0 {
		return strings.TrimSpace(strings.Join(parts, "")), nil
	}

	for _, path := range []string{"completion", "output_text", "choices.0.message.content", "choices.0.text"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
			return strings.TrimSpace(v.String()), nil
		}
	}
	return "", errors.New("no text in claude response")
}
