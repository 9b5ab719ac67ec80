package news

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"llm-rebalancer/internal/llm/noop"
	"llm-rebalancer/internal/sentiment"
	"llm-rebalancer/internal/types"
)

type fakeSource struct {
	calls     atomic.Int32
	headlines map[string][]types.Headline
	err       error
}

func (f *fakeSource) Headlines(_ context.Context, symbols []string, perSymbol int) (map[string][]types.Headline, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := map[string][]types.Headline{}
	for _, s := range symbols {
		hs := f.headlines[s]
		if len(hs) > perSymbol {
			hs = hs[:perSymbol]
		}
		out[s] = hs
	}
	return out, nil
}

func headline(sym, title string) types.Headline {
	return types.Headline{Symbol: sym, Title: title}
}

func TestSentimentCache(t *testing.T) {
	cache := newSentimentCache(time.Minute)
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.set("AAPL", types.SentimentReading{Symbol: "AAPL", Score: 1.3})
	got, ok := cache.get("AAPL")
	if !ok || got.Score != 1.3 {
		t.Fatalf("get = %+v %v", got, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.get("AAPL"); ok {
		t.Error("expected cache entry to be expired")
	}

	cache.set("MSFT", types.SentimentReading{Symbol: "MSFT"})
	if _, present := cache.data["AAPL"]; present {
		t.Error("expired entry not dropped on write")
	}
}

func TestBatchNoKey(t *testing.T) {
	s := NewService(ServiceConfig{Enabled: true}, nil, nil, nil, nil)
	got := s.Batch(context.Background(), []string{"AAPL", "BTC-USD"})
	for _, sym := range []string{"AAPL", "BTC-USD"} {
		r := got[sym]
		if r.Score != sentiment.Neutral || len(r.Headlines) != 1 || r.Headlines[0] != MarkerNoAPIKey {
			t.Errorf("%s = %+v", sym, r)
		}
	}
}

func TestBatchDisabled(t *testing.T) {
	src := &fakeSource{}
	s := NewService(ServiceConfig{Enabled: false}, src, nil, nil, nil)
	got := s.Batch(context.Background(), []string{"AAPL"})
	if got["AAPL"].Headlines[0] != MarkerDisabled || src.calls.Load() != 0 {
		t.Errorf("disabled batch = %+v, calls %d", got, src.calls.Load())
	}
}

func TestBatchFetchError(t *testing.T) {
	src := &fakeSource{err: errors.New("rate limited")}
	s := NewService(ServiceConfig{Enabled: true, CacheDuration: time.Hour}, src, nil, nil, nil)
	got := s.Batch(context.Background(), []string{"AAPL", "MSFT"})
	for sym, r := range got {
		if r.Score != sentiment.Neutral || r.Headlines[0] != MarkerFetchError {
			t.Errorf("%s = %+v", sym, r)
		}
	}
	// errors are not cached
	src.err = nil
	s.Batch(context.Background(), []string{"AAPL"})
	if src.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", src.calls.Load())
	}
}

func TestBatchScoresAndCaches(t *testing.T) {
	src := &fakeSource{headlines: map[string][]types.Headline{
		"AAPL": {
			headline("AAPL", "AAPL shares surge after record quarter"),
			headline("AAPL", "AAPL unveils new product line"),
		},
		"TSLA": {headline("TSLA", "TSLA stock plunges on weak deliveries")},
	}}
	s := NewService(ServiceConfig{Enabled: true, MaxHeadlines: 5, CacheDuration: time.Hour}, src, nil, nil, nil)

	got := s.Batch(context.Background(), []string{"AAPL", "TSLA", "MSFT"})

	if r := got["AAPL"]; len(r.Headlines) != 2 || r.Score <= sentiment.Neutral {
		t.Errorf("AAPL = %+v", r)
	}
	if r := got["TSLA"]; r.Score >= sentiment.Neutral {
		t.Errorf("TSLA = %+v", r)
	}
	if r := got["MSFT"]; r.Score != sentiment.Neutral || r.Headlines[0] != MarkerNoHeadline {
		t.Errorf("MSFT = %+v", r)
	}

	again := s.Batch(context.Background(), []string{"AAPL", "TSLA", "MSFT"})
	if src.calls.Load() != 1 {
		t.Errorf("source called %d times, want 1", src.calls.Load())
	}
	if again["AAPL"].Score != got["AAPL"].Score {
		t.Errorf("cached score changed: %v vs %v", again["AAPL"].Score, got["AAPL"].Score)
	}

	snap := Snapshot(got)
	if snap.Get("MSFT") != sentiment.Neutral || snap.Get("AAPL") != got["AAPL"].Score {
		t.Errorf("Snapshot = %v", snap)
	}
}

func TestBatchScrapeFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Query().Get("q"), "NVDA") {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>
<article><h3>NVDA rally continues as demand soars</h3><a href="./articles/abc">read</a><time datetime="2025-01-01T10:00:00Z">1h</time></article>
<article><h4>Chipmakers weak on export fears</h4><a href="https://example.com/x">x</a></article>
<article><p>no title</p></article>
</body></html>`))
	}))
	defer srv.Close()

	src := &fakeSource{headlines: map[string][]types.Headline{}}
	s := NewService(ServiceConfig{Enabled: true}, src, NewScraper(srv.URL, 5*time.Second), nil, nil)

	got := s.Batch(context.Background(), []string{"NVDA"})["NVDA"]
	if len(got.Headlines) != 2 {
		t.Fatalf("headlines = %v", got.Headlines)
	}
	if got.Headlines[0] != "NVDA rally continues as demand soars" {
		t.Errorf("first headline = %q", got.Headlines[0])
	}
}

func TestScraperParsesArticles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<article><h3>One</h3><a href="./articles/1">a</a><time datetime="2025-02-03">x</time></article>
<article><h3>Two</h3><a href="./articles/2">a</a></article>
<article><h3>Three</h3><a href="./articles/3">a</a></article>`))
	}))
	defer srv.Close()

	hs, err := NewScraper(srv.URL, time.Second).Search(context.Background(), "AMD", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hs) != 2 {
		t.Fatalf("got %d headlines", len(hs))
	}
	if hs[0].URL != srv.URL+"/articles/1" || hs[0].PublishedAt != "2025-02-03" || hs[0].Symbol != "AMD" {
		t.Errorf("first = %+v", hs[0])
	}
}

func TestNewsAPIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/v2/everything" || q.Get("q") != "AAPL OR MSFT" || q.Get("apiKey") != "k" || q.Get("sortBy") != "publishedAt" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Write([]byte(`{"status":"ok","articles":[
{"title":"Aapl beats estimates","source":{"name":"Wire"},"url":"u1"},
{"title":"AAPL and MSFT rally"},
{"title":"Markets flat"},
{"title":"aapl again"},
{"title":"AAPL third"}]}`))
	}))
	defer srv.Close()

	got, err := NewNewsAPIClient(srv.URL, "k", time.Second).Headlines(context.Background(), []string{"AAPL", "MSFT"}, 3)
	if err != nil {
		t.Fatalf("Headlines: %v", err)
	}
	if len(got["AAPL"]) != 3 || got["AAPL"][0].Source != "Wire" {
		t.Errorf("AAPL = %+v", got["AAPL"])
	}
	if len(got["MSFT"]) != 1 || got["MSFT"][0].Title != "AAPL and MSFT rally" {
		t.Errorf("MSFT = %+v", got["MSFT"])
	}
}

func TestNewsAPIClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"error","message":"bad key"}`))
	}))
	defer srv.Close()

	_, err := NewNewsAPIClient(srv.URL, "k", time.Second).Headlines(context.Background(), []string{"AAPL"}, 5)
	if err == nil || !strings.Contains(err.Error(), "bad key") {
		t.Errorf("err = %v", err)
	}
}

func TestLexiconClassifier(t *testing.T) {
	c := NewLexiconClassifier()
	tests := []struct {
		headline string
		want     float64
	}{
		{"Apple shares surge after record quarter", 1.5},
		{"Company holds annual meeting", 1.0},
		{"Stock falls on weak guidance", 0.5},
		{"Gains offset by losses", 1.0},
	}
	for _, tt := range tests {
		d, err := c.Classify(context.Background(), tt.headline)
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if got := sentiment.Score(d); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%q score = %v, want %v", tt.headline, got, tt.want)
		}
	}
}

func TestLLMClassifier(t *testing.T) {
	c := NewLLMClassifier(noop.NewCanned("Sure: {'positive': 0.6, 'neutral': 0.3, 'negative': 0.1}"))
	d, err := c.Classify(context.Background(), "x")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if math.Abs(d.Positive-0.6) > 1e-9 || math.Abs(d.Negative-0.1) > 1e-9 {
		t.Errorf("distribution = %+v", d)
	}

	if _, err := NewLLMClassifier(noop.NewCanned(`{"AAPL": 1}`)).Classify(context.Background(), "x"); err == nil {
		t.Error("expected error for reply without sentiment keys")
	}
	if _, err := NewLLMClassifier(noop.NewAdvisor()).Classify(context.Background(), "x"); err == nil {
		t.Error("expected error for empty reply")
	}
}

func TestRateLimiter(t *testing.T) {
	if err := (*RateLimiter)(nil).Wait(context.Background()); err != nil {
		t.Fatalf("nil limiter: %v", err)
	}
	rl := NewRateLimiter(1)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first token: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second wait err = %v", err)
	}
}
