package news

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"llm-rebalancer/internal/interfaces"
	"llm-rebalancer/internal/llmjson"
	"llm-rebalancer/internal/sentiment"
)

// Classifier turns one headline into a positive/neutral/negative split.
type Classifier interface {
	Classify(ctx context.Context, headline string) (sentiment.Distribution, error)
}

// LLMClassifier asks the configured model for the three probabilities.
type LLMClassifier struct {
	advisor interfaces.Advisor
}

func NewLLMClassifier(advisor interfaces.Advisor) *LLMClassifier {
	return &LLMClassifier{advisor: advisor}
}

const classifyPrompt = `Classify the sentiment of this financial news headline for the company's stock.
Respond ONLY with JSON of the form {"positive": p, "neutral": n, "negative": q} where p, n and q sum to 1.

Headline: %s`

func (c *LLMClassifier) Classify(ctx context.Context, headline string) (sentiment.Distribution, error) {
	reply, err := c.advisor.Complete(ctx, fmt.Sprintf(classifyPrompt, headline))
	if err != nil {
		return sentiment.Distribution{}, err
	}
	parsed, _, err := llmjson.ParseAllocation(ctx, reply)
	if err != nil {
		return sentiment.Distribution{}, err
	}
	p, okP := parsed["POSITIVE"]
	n, okN := parsed["NEUTRAL"]
	q, okQ := parsed["NEGATIVE"]
	if !okP && !okN && !okQ {
		return sentiment.Distribution{}, errors.New("classification reply has no sentiment keys")
	}
	return sentiment.Distribution{Positive: p, Neutral: n, Negative: q}.Normalized(), nil
}

// LexiconClassifier scores headlines by counting finance polarity words.
// It needs no network and is the default.
type LexiconClassifier struct {
	positive map[string]bool
	negative map[string]bool
}

func NewLexiconClassifier() *LexiconClassifier {
	return &LexiconClassifier{
		positive: wordSet(positiveWords),
		negative: wordSet(negativeWords),
	}
}

// Classify weighs each polarity hit against a single neutral unit, so one
// strong word moves the split halfway and opposing words cancel.
func (c *LexiconClassifier) Classify(_ context.Context, headline string) (sentiment.Distribution, error) {
	var pos, neg int
	for _, w := range tokenize(strings.ToLower(headline)) {
		if c.positive[w] {
			pos++
		}
		if c.negative[w] {
			neg++
		}
	}
	return sentiment.Distribution{
		Positive: float64(pos),
		Neutral:  1,
		Negative: float64(neg),
	}.Normalized(), nil
}

func tokenize(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(r)
		} else if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}

func wordSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var positiveWords = []string{
	"achieve", "beat", "beats", "benefit", "better", "boost", "bullish",
	"climb", "climbs", "excellent", "exceptional", "favorable", "gain",
	"gains", "good", "great", "grew", "growth", "improve", "improved",
	"innovation", "jump", "jumps", "leader", "leading", "optimistic",
	"outperform", "positive", "profit", "profitable", "rally", "rallies",
	"record", "rebound", "rise", "rises", "robust", "soar", "soars", "solid",
	"strong", "success", "successful", "surge", "surges", "upbeat", "upgrade",
	"upgraded", "win", "winning",
}

var negativeWords = []string{
	"adverse", "bearish", "concern", "concerns", "crash", "crisis", "cut",
	"cuts", "decline", "declines", "deficit", "disappoint", "disappointing",
	"downgrade", "downgraded", "downturn", "drop", "drops", "fail", "failure",
	"fall", "falls", "fear", "fears", "fraud", "headwind", "lawsuit",
	"layoffs", "loss", "losses", "miss", "misses", "negative", "plunge",
	"plunges", "poor", "probe", "recession", "risk", "selloff", "slump",
	"slumps", "slowdown", "tumble", "tumbles", "underperform", "warning",
	"weak", "weakness", "worse", "worst",
}
