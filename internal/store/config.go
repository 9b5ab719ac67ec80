package store

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Category is one bucket of the portfolio with its share of max_investment.
type Category struct {
	Target  float64  `yaml:"target"`
	Symbols []string `yaml:"symbols"`
}

type Config struct {
	Mode              string              `yaml:"mode"`
	MaxInvestment     float64             `yaml:"max_investment"`
	RebalanceInterval time.Duration       `yaml:"rebalance_interval"`
	LoopInterval      time.Duration       `yaml:"loop_interval"`
	Schedule          string              `yaml:"schedule"`
	Categories        map[string]Category `yaml:"categories"`
	Recommend         struct {
		SymbolSource   string `yaml:"symbol_source"`
		CandidatesPer  int    `yaml:"candidates_per_category"`
		OmitDigest     bool   `yaml:"omit_news_digest"`
		AllocationHint string `yaml:"allocation_hint"`
	} `yaml:"recommend"`
	LLM struct {
		Provider    string        `yaml:"provider"`
		Model       string        `yaml:"model"`
		BaseURL     string        `yaml:"base_url"`
		APIKeyEnv   string        `yaml:"api_key_env"`
		MaxTokens   int           `yaml:"max_tokens"`
		Temperature float32       `yaml:"temperature"`
		System      string        `yaml:"system"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"llm"`
	Market struct {
		Source       string             `yaml:"source"`
		StaticPrices map[string]float64 `yaml:"static_prices"`
		Timeout      time.Duration      `yaml:"timeout"`
		LookbackDays int                `yaml:"lookback_days"`
		TopN         int                `yaml:"top_n"`
	} `yaml:"market"`
	News struct {
		Enabled        bool          `yaml:"enabled"`
		Provider       string        `yaml:"provider"`
		BaseURL        string        `yaml:"base_url"`
		APIKeyEnv      string        `yaml:"api_key_env"`
		MaxHeadlines   int           `yaml:"max_headlines"`
		Timeout        time.Duration `yaml:"timeout"`
		CacheTTL       time.Duration `yaml:"cache_ttl"`
		ScrapeFallback bool          `yaml:"scrape_fallback"`
		Classifier     string        `yaml:"classifier"`
		RatePerSecond  float64       `yaml:"rate_per_second"`
	} `yaml:"news"`
	Ledger struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
		DSNEnv  string `yaml:"dsn_env"`
	} `yaml:"ledger"`
	Notify struct {
		Enabled  bool          `yaml:"enabled"`
		SMTPHost string        `yaml:"smtp_host"`
		SMTPPort int           `yaml:"smtp_port"`
		UserEnv  string        `yaml:"user_env"`
		PassEnv  string        `yaml:"pass_env"`
		From     string        `yaml:"from"`
		To       []string      `yaml:"to"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"notify"`
	Dashboard struct {
		Listen string `yaml:"listen"`
	} `yaml:"dashboard"`
	Tradelog struct {
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
		EODCutoff     string `yaml:"eod_cutoff"`
	} `yaml:"tradelog"`
}

// CategoryMembers returns category → symbols.
func (c *Config) CategoryMembers() map[string][]string {
	out := make(map[string][]string, len(c.Categories))
	for name, cat := range c.Categories {
		out[name] = append([]string(nil), cat.Symbols...)
	}
	return out
}

// CategoryTargets returns category → target share.
func (c *Config) CategoryTargets() map[string]float64 {
	out := make(map[string]float64, len(c.Categories))
	for name, cat := range c.Categories {
		out[name] = cat.Target
	}
	return out
}

// CategoryNames returns the sorted category names.
func (c *Config) CategoryNames() []string {
	out := make([]string, 0, len(c.Categories))
	for name := range c.Categories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Secret reads the env var named by key, empty when unset.
func Secret(key string) string {
	if key == "" {
		return ""
	}
	return os.Getenv(key)
}

func (c *Config) Validate() error {
	if c.Mode != "SIMULATE" {
		return fmt.Errorf("invalid mode '%s': must be 'SIMULATE'", c.Mode)
	}
	if c.MaxInvestment <= 0 {
		return fmt.Errorf("max_investment must be positive, got %.2f", c.MaxInvestment)
	}
	if c.RebalanceInterval <= 0 {
		return errors.New("rebalance_interval must be positive")
	}
	if c.LoopInterval <= 0 {
		return errors.New("loop_interval must be positive")
	}
	if c.Schedule != "gated" && c.Schedule != "continuous" {
		return fmt.Errorf("schedule must be 'gated' or 'continuous', got '%s'", c.Schedule)
	}
	if len(c.Categories) == 0 {
		return errors.New("categories cannot be empty")
	}
	total := 0.0
	for name, cat := range c.Categories {
		if cat.Target < 0 || cat.Target > 1 {
			return fmt.Errorf("categories.%s.target must be between 0-1, got %.2f", name, cat.Target)
		}
		total += cat.Target
	}
	if total > 1+1e-9 {
		return fmt.Errorf("category targets sum to %.4f, must not exceed 1", total)
	}
	switch c.Recommend.SymbolSource {
	case "LLM", "STATIC":
	default:
		return fmt.Errorf("recommend.symbol_source must be 'LLM' or 'STATIC', got '%s'", c.Recommend.SymbolSource)
	}
	if c.Recommend.SymbolSource == "STATIC" {
		for name, cat := range c.Categories {
			if len(cat.Symbols) == 0 {
				return fmt.Errorf("categories.%s.symbols cannot be empty with STATIC symbol source", name)
			}
		}
	}
	switch c.LLM.Provider {
	case "OPENAI", "CLAUDE", "OLLAMA", "NOOP":
	default:
		return fmt.Errorf("llm.provider must be 'OPENAI', 'CLAUDE', 'OLLAMA' or 'NOOP', got '%s'", c.LLM.Provider)
	}
	if c.Market.Source != "YAHOO" && c.Market.Source != "STATIC" {
		return fmt.Errorf("market.source must be 'YAHOO' or 'STATIC', got '%s'", c.Market.Source)
	}
	if c.Ledger.Backend != "FILE" && c.Ledger.Backend != "POSTGRES" && c.Ledger.Backend != "MEMORY" {
		return fmt.Errorf("ledger.backend must be 'FILE', 'POSTGRES' or 'MEMORY', got '%s'", c.Ledger.Backend)
	}
	if c.Ledger.Backend == "FILE" && c.Ledger.Path == "" {
		return errors.New("ledger.path cannot be empty for FILE backend")
	}
	if c.Notify.Enabled && len(c.Notify.To) == 0 {
		return errors.New("notify.to cannot be empty when notify is enabled")
	}
	return nil
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "SIMULATE"
	}
	c.Mode = strings.ToUpper(c.Mode)
	if c.MaxInvestment == 0 {
		c.MaxInvestment = 10000
	}
	if c.RebalanceInterval == 0 {
		c.RebalanceInterval = 24 * time.Hour
	}
	if c.LoopInterval == 0 {
		c.LoopInterval = 10 * time.Minute
	}
	if c.Schedule == "" {
		c.Schedule = "gated"
	}
	if len(c.Categories) == 0 {
		c.Categories = map[string]Category{
			"stocks":  {Target: 0.8, Symbols: []string{"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL"}},
			"cryptos": {Target: 0.2, Symbols: []string{"BTC-USD", "ETH-USD"}},
		}
	}
	for name, cat := range c.Categories {
		for i, s := range cat.Symbols {
			cat.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
		}
		c.Categories[name] = cat
	}

	if c.Recommend.SymbolSource == "" {
		c.Recommend.SymbolSource = "LLM"
	}
	if c.Recommend.CandidatesPer == 0 {
		c.Recommend.CandidatesPer = 10
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "NOOP"
	}
	c.LLM.Provider = strings.ToUpper(c.LLM.Provider)
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.LLM.APIKeyEnv == "" {
		switch c.LLM.Provider {
		case "OPENAI":
			c.LLM.APIKeyEnv = "OPENAI_API_KEY"
		case "CLAUDE":
			c.LLM.APIKeyEnv = "CLAUDE_API_KEY"
		}
	}
	if c.LLM.Provider == "OLLAMA" && c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "http://localhost:11434"
	}

	if c.Market.Source == "" {
		c.Market.Source = "YAHOO"
	}
	c.Market.Source = strings.ToUpper(c.Market.Source)
	if c.Market.Timeout == 0 {
		c.Market.Timeout = 30 * time.Second
	}
	if c.Market.LookbackDays == 0 {
		c.Market.LookbackDays = 30
	}
	if c.Market.TopN == 0 {
		c.Market.TopN = 3
	}

	if c.News.Provider == "" {
		c.News.Provider = "NEWSAPI"
	}
	if c.News.BaseURL == "" {
		c.News.BaseURL = "https://newsapi.org"
	}
	if c.News.APIKeyEnv == "" {
		c.News.APIKeyEnv = "NEWSAPI_KEY"
	}
	if c.News.MaxHeadlines == 0 {
		c.News.MaxHeadlines = 5
	}
	if c.News.Timeout == 0 {
		c.News.Timeout = 30 * time.Second
	}
	if c.News.CacheTTL == 0 {
		c.News.CacheTTL = time.Hour
	}
	if c.News.Classifier == "" {
		c.News.Classifier = "LEXICON"
	}
	if c.News.RatePerSecond == 0 {
		c.News.RatePerSecond = 1
	}

	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "FILE"
	}
	c.Ledger.Backend = strings.ToUpper(c.Ledger.Backend)
	if c.Ledger.Path == "" {
		c.Ledger.Path = "data/trades.json"
	}
	if c.Ledger.DSNEnv == "" {
		c.Ledger.DSNEnv = "LEDGER_DSN"
	}

	if c.Notify.SMTPHost == "" {
		c.Notify.SMTPHost = "smtp.gmail.com"
	}
	if c.Notify.SMTPPort == 0 {
		c.Notify.SMTPPort = 587
	}
	if c.Notify.UserEnv == "" {
		c.Notify.UserEnv = "EMAIL_USER"
	}
	if c.Notify.PassEnv == "" {
		c.Notify.PassEnv = "EMAIL_PASS"
	}
	if c.Notify.Interval == 0 {
		c.Notify.Interval = 24 * time.Hour
	}

	if c.Dashboard.Listen == "" {
		c.Dashboard.Listen = ":8080"
	}
	if c.Tradelog.Dir == "" {
		c.Tradelog.Dir = "logs"
	}
	if c.Tradelog.EODCutoff == "" {
		c.Tradelog.EODCutoff = "23:30"
	}
}

// TargetSum returns the sum of all category targets.
func (c *Config) TargetSum() float64 {
	total := 0.0
	for _, cat := range c.Categories {
		total += cat.Target
	}
	return math.Round(total*1e6) / 1e6
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML, applies defaults and validates.
func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.ApplyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
