package ollama

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"llm-rebalancer/internal/store"
	"llm-rebalancer/internal/trace"
)

// Advisor completes prompts against a local Ollama server.
type Advisor struct {
	client *resty.Client
	model  string
	system string
}

func NewAdvisor(cfg *store.Config) *Advisor {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.LLM.BaseURL, "/"))
	client.SetTimeout(cfg.LLM.Timeout)
	client.SetHeader("Content-Type", "application/json")

	model := cfg.LLM.Model
	if model == "" {
		model = "llama3"
	}
	return &Advisor{client: client, model: model, system: cfg.LLM.System}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

func (a *Advisor) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "ollama-api-call")
	defer span.End()

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(generateRequest{Model: a.model, Prompt: prompt, System: a.system}).
		Post("/api/generate")
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ollama http %d: %s", resp.StatusCode(), resp.String())
	}
	return joinResponses(resp.Body()), nil
}

// joinResponses concatenates the "response" field of every JSON line, which
// covers both the single object and the streamed NDJSON forms.
func joinResponses(body []byte) string {
	var b strings.Builder
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || !gjson.ValidBytes(line) {
			continue
		}
		b.WriteString(gjson.GetBytes(line, "response").String())
	}
	return strings.TrimSpace(b.String())
}
