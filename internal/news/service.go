package news

import (
	"context"
	"strings"
	"sync"
	"time"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/metrics"
	"llm-rebalancer/internal/sentiment"
	"llm-rebalancer/internal/store"
	"llm-rebalancer/internal/trace"
	"llm-rebalancer/internal/types"
)

// Marker headlines used when a symbol could not be scored from real news.
const (
	MarkerDisabled   = "News disabled"
	MarkerNoAPIKey   = "No API key"
	MarkerNoHeadline = "No headlines"
	MarkerFetchError = "Error fetching news"
)

// Service provides batch news sentiment with caching
type Service struct {
	source     interfaces.HeadlineSource
	scraper    *Scraper
	classifier Classifier
	cache      *sentimentCache
	limiter    *RateLimiter
	cfg        ServiceConfig
	metrics    *metrics.Collector
	now        func() time.Time
}

var _ interfaces.SentimentSource = (*Service)(nil)

// ServiceConfig configures the news sentiment service
type ServiceConfig struct {
	Enabled       bool
	MaxHeadlines  int           // per symbol
	CacheDuration time.Duration // zero disables caching
	RatePerSecond float64       // outbound calls, zero for unlimited
}

// NewService wires a service from its parts. source may be nil when no API
// key is configured, scraper may be nil when the fallback is off.
func NewService(cfg ServiceConfig, source interfaces.HeadlineSource, scraper *Scraper, classifier Classifier, m *metrics.Collector) *Service {
	if cfg.MaxHeadlines <= 0 {
		cfg.MaxHeadlines = 5
	}
	if classifier == nil {
		classifier = NewLexiconClassifier()
	}
	return &Service{
		source:     source,
		scraper:    scraper,
		classifier: classifier,
		cache:      newSentimentCache(cfg.CacheDuration),
		limiter:    NewRateLimiter(cfg.RatePerSecond),
		cfg:        cfg,
		metrics:    m,
		now:        time.Now,
	}
}

// NewServiceFromConfig builds the service described by the news section of
// the config. advisor backs the LLM classifier.
func NewServiceFromConfig(cfg *store.Config, advisor interfaces.Advisor, m *metrics.Collector) *Service {
	var source interfaces.HeadlineSource
	if key := store.Secret(cfg.News.APIKeyEnv); key != "" {
		source = NewNewsAPIClient(cfg.News.BaseURL, key, cfg.News.Timeout)
	}
	var scraper *Scraper
	if cfg.News.ScrapeFallback {
		scraper = NewScraper("", cfg.News.Timeout)
	}
	var classifier Classifier = NewLexiconClassifier()
	if strings.EqualFold(cfg.News.Classifier, "LLM") && advisor != nil {
		classifier = NewLLMClassifier(advisor)
	}
	return NewService(ServiceConfig{
		Enabled:       cfg.News.Enabled,
		MaxHeadlines:  cfg.News.MaxHeadlines,
		CacheDuration: cfg.News.CacheTTL,
		RatePerSecond: cfg.News.RatePerSecond,
	}, source, scraper, classifier, m)
}

// Batch returns a reading for every symbol. Failures never propagate: a
// symbol that cannot be scored gets the neutral score with a marker
// headline explaining why.
func (s *Service) Batch(ctx context.Context, symbols []string) map[string]types.SentimentReading {
	ctx, span := trace.StartSpan(ctx, "news.Batch")
	defer span.End()

	out := make(map[string]types.SentimentReading, len(symbols))
	if len(symbols) == 0 {
		return out
	}
	if !s.cfg.Enabled {
		for _, sym := range symbols {
			out[sym] = s.neutral(sym, MarkerDisabled)
		}
		return out
	}
	if s.source == nil && s.scraper == nil {
		for _, sym := range symbols {
			out[sym] = s.neutral(sym, MarkerNoAPIKey)
		}
		return out
	}

	var missing []string
	for _, sym := range symbols {
		if cached, ok := s.cache.get(sym); ok {
			out[sym] = cached
			continue
		}
		missing = append(missing, sym)
	}
	if len(missing) == 0 {
		logger.Info(ctx, "Using cached sentiment", "symbols", len(symbols))
		return out
	}

	logger.Info(ctx, "Fetching fresh news sentiment", "symbols", len(missing), "cached", len(symbols)-len(missing))

	headlines := map[string][]types.Headline{}
	if s.source != nil {
		fetched, err := s.fetchHeadlines(ctx, missing)
		if err != nil {
			s.metrics.ExternalFailure("news")
			logger.ErrorWithErr(ctx, "Failed batch news fetch", err, "symbols", len(missing))
			for _, sym := range missing {
				out[sym] = s.neutral(sym, MarkerFetchError)
			}
			return out
		}
		headlines = fetched
	}

	for _, sym := range missing {
		hs := headlines[sym]
		if len(hs) == 0 && s.scraper != nil {
			hs = s.scrape(ctx, sym)
		}
		reading := s.score(ctx, sym, hs)
		s.cache.set(sym, reading)
		out[sym] = reading
	}
	return out
}

func (s *Service) fetchHeadlines(ctx context.Context, symbols []string) (map[string][]types.Headline, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.source.Headlines(ctx, symbols, s.cfg.MaxHeadlines)
}

func (s *Service) scrape(ctx context.Context, symbol string) []types.Headline {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil
	}
	logger.Info(ctx, "No headlines from API, trying Google News", "symbol", symbol)
	hs, err := s.scraper.Search(ctx, symbol, s.cfg.MaxHeadlines)
	if err != nil {
		s.metrics.ExternalFailure("news_scrape")
		logger.ErrorWithErr(ctx, "Google News fallback failed", err, "symbol", symbol)
		return nil
	}
	return hs
}

// score classifies each headline and averages the splits. Headlines the
// classifier rejects are left out of the average.
func (s *Service) score(ctx context.Context, symbol string, hs []types.Headline) types.SentimentReading {
	if len(hs) == 0 {
		return s.neutral(symbol, MarkerNoHeadline)
	}

	titles := make([]string, 0, len(hs))
	dists := make([]sentiment.Distribution, 0, len(hs))
	for _, h := range hs {
		titles = append(titles, h.Title)
		d, err := s.classifier.Classify(ctx, h.Title)
		if err != nil {
			logger.Warn(ctx, "Failed to classify headline", "symbol", symbol, "headline", h.Title, "error", err)
			continue
		}
		dists = append(dists, d)
	}

	avg := sentiment.Average(dists)
	reading := types.SentimentReading{
		Symbol:    symbol,
		Headlines: titles,
		Score:     sentiment.Score(avg),
		Positive:  avg.Positive,
		Neutral:   avg.Neutral,
		Negative:  avg.Negative,
		Timestamp: s.now().Unix(),
	}
	logger.Debug(ctx, "Headline sentiment scored",
		"symbol", symbol,
		"headlines", len(titles),
		"score", reading.Score,
	)
	return reading
}

func (s *Service) neutral(symbol, marker string) types.SentimentReading {
	return types.SentimentReading{
		Symbol:    symbol,
		Headlines: []string{marker},
		Score:     sentiment.Neutral,
		Timestamp: s.now().Unix(),
	}
}

// ClearCache removes all cached sentiment data
func (s *Service) ClearCache() {
	s.cache.clear()
}

// Snapshot extracts the scores from a batch result.
func Snapshot(readings map[string]types.SentimentReading) sentiment.Snapshot {
	snap := make(sentiment.Snapshot, len(readings))
	for sym, r := range readings {
		snap[sym] = r.Score
	}
	return snap
}

// sentimentCache stores readings for a limited time. Expired entries are
// dropped on the next write.
type sentimentCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
	ttl  time.Duration
	now  func() time.Time
}

type cacheEntry struct {
	reading   types.SentimentReading
	timestamp time.Time
}

func newSentimentCache(ttl time.Duration) *sentimentCache {
	return &sentimentCache{
		data: make(map[string]cacheEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (c *sentimentCache) get(symbol string) (types.SentimentReading, bool) {
	if c.ttl <= 0 {
		return types.SentimentReading{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[symbol]
	if !ok || c.now().Sub(entry.timestamp) > c.ttl {
		return types.SentimentReading{}, false
	}
	return entry.reading, true
}

func (c *sentimentCache) set(symbol string, reading types.SentimentReading) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for sym, entry := range c.data {
		if now.Sub(entry.timestamp) > c.ttl {
			delete(c.data, sym)
		}
	}
	c.data[symbol] = cacheEntry{reading: reading, timestamp: now}
}

func (c *sentimentCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]cacheEntry)
}
