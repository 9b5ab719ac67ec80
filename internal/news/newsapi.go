package news

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/types"
)

// NewsAPIClient fetches headlines for many symbols with a single
// /v2/everything query.
type NewsAPIClient struct {
	client *resty.Client
	apiKey string
}

var _ interfaces.HeadlineSource = (*NewsAPIClient)(nil)

func NewNewsAPIClient(baseURL, apiKey string, timeout time.Duration) *NewsAPIClient {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	return &NewsAPIClient{client: client, apiKey: apiKey}
}

// Headlines maps every returned title to each symbol it mentions, compared
// case-insensitively, keeping at most perSymbol titles per symbol. Symbols
// with no match are present with an empty slice.
func (c *NewsAPIClient) Headlines(ctx context.Context, symbols []string, perSymbol int) (map[string][]types.Headline, error) {
	out := make(map[string][]types.Headline, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":        strings.Join(symbols, " OR "),
			"sortBy":   "publishedAt",
			"language": "en",
			"apiKey":   c.apiKey,
		}).
		Get("/v2/everything")
	if err != nil {
		return nil, fmt.Errorf("newsapi request failed: %w", err)
	}
	if resp.IsError() {
		msg := gjson.GetBytes(resp.Body(), "message").String()
		return nil, fmt.Errorf("newsapi: HTTP %d: %s", resp.StatusCode(), msg)
	}

	articles := gjson.GetBytes(resp.Body(), "articles").Array()
	logger.Debug(ctx, "NewsAPI articles received", "symbols", len(symbols), "articles", len(articles))

	for _, s := range symbols {
		out[s] = []types.Headline{}
	}
	for _, a := range articles {
		title := strings.TrimSpace(a.Get("title").String())
		if title == "" {
			continue
		}
		lower := strings.ToLower(title)
		for _, s := range symbols {
			if len(out[s]) >= perSymbol || !strings.Contains(lower, strings.ToLower(s)) {
				continue
			}
			out[s] = append(out[s], types.Headline{
				Symbol:      s,
				Title:       title,
				Source:      a.Get("source.name").String(),
				URL:         a.Get("url").String(),
				PublishedAt: a.Get("publishedAt").String(),
			})
		}
	}
	return out, nil
}
