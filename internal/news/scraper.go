package news

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/types"
)

const (
	defaultGoogleNewsURL = "https://news.google.com"
	userAgent            = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Scraper reads Google News search results. It is the fallback for symbols
// the API returned nothing for.
type Scraper struct {
	baseURL string
	timeout time.Duration
}

// NewScraper creates a scraper. An empty baseURL means Google News.
func NewScraper(baseURL string, timeout time.Duration) *Scraper {
	if baseURL == "" {
		baseURL = defaultGoogleNewsURL
	}
	return &Scraper{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// Search returns up to max headlines for symbol.
func (s *Scraper) Search(ctx context.Context, symbol string, max int) ([]types.Headline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.AllowedDomains(getDomain(s.baseURL)),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", userAgent)
	})

	var (
		headlines []types.Headline
		parseErr  error
	)
	c.OnResponse(func(r *colly.Response) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			parseErr = fmt.Errorf("failed to parse search page: %w", err)
			return
		}
		headlines = s.parseArticles(doc, symbol, max)
	})

	searchURL := fmt.Sprintf("%s/search?q=%s&hl=en-US&gl=US&ceid=US:en",
		s.baseURL, url.QueryEscape(symbol+" stock"))
	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", searchURL, err)
	}
	c.Wait()
	if parseErr != nil {
		return nil, parseErr
	}

	logger.Info(ctx, "Google News scraping completed", "symbol", symbol, "headlines", len(headlines))
	return headlines, nil
}

func (s *Scraper) parseArticles(doc *goquery.Document, symbol string, max int) []types.Headline {
	var out []types.Headline
	doc.Find("article").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(out) >= max {
			return false
		}
		title := strings.TrimSpace(sel.Find("h3").First().Text())
		if title == "" {
			title = strings.TrimSpace(sel.Find("h4").First().Text())
		}
		if title == "" {
			title = strings.TrimSpace(sel.Find("a").First().Text())
		}
		if title == "" {
			return true
		}

		link, _ := sel.Find("a").First().Attr("href")
		if strings.HasPrefix(link, "./") {
			link = s.baseURL + link[1:]
		}
		published, _ := sel.Find("time").First().Attr("datetime")

		out = append(out, types.Headline{
			Symbol:      symbol,
			Title:       title,
			Source:      "GoogleNews",
			URL:         link,
			PublishedAt: published,
		})
		return true
	})
	return out
}

func getDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
