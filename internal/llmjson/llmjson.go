// Package llmjson salvages JSON objects from free-form language model replies.
//
// Every parse walks the same chain and stops at the first step that yields a
// usable value:
//
//	strict       first {...} span, parsed as is
//	brace_repair trailing prose cut, missing closers appended, trailing commas dropped
//	quote_repair single quotes, bare keys and [k: v] lists rewritten, then brace_repair
//	pattern      key/value pairs matched directly in the text
//
// When every step fails the parse returns ErrUnrecoverable.
package llmjson

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"llm-rebalancer/internal/logger"
	"llm-rebalancer/internal/types"
)

// ErrUnrecoverable is returned when no step of the chain produced a value.
var ErrUnrecoverable = errors.New("llmjson: unrecoverable response")

// Step names one stage of the fallback chain.
type Step string

const (
	StepStrict      Step = "strict"
	StepBraceRepair Step = "brace_repair"
	StepQuoteRepair Step = "quote_repair"
	StepPattern     Step = "pattern"
)

// wrapperKeys are keys models like to nest the real payload under.
var wrapperKeys = []string{"allocation", "allocations", "portfolio", "weights", "symbols", "categories"}

var (
	fenceRe        = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")
	lineCommentRe  = regexp.MustCompile(`(?m)(^|[^:"'])//.*$`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	bareKeyRe      = regexp.MustCompile(`([{,]\s*)([A-Za-z0-9_.\-^=]+)\s*:`)
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	pairRe         = regexp.MustCompile(`["']?([A-Za-z][A-Za-z0-9.\-^=]*)["']?\s*[:=]\s*["']?(-?\d+(?:\.\d+)?)\s*(%?)`)
	listRe         = regexp.MustCompile(`["']?([A-Za-z_][A-Za-z0-9_ ]*)["']?\s*:\s*\[([^\]]*)\]`)
)

// ParseAllocation extracts a symbol → weight map. Weights may be numbers or
// numeric strings, a trailing % divides by 100. Negative and non-numeric
// weights are dropped; symbols are trimmed and upper-cased.
func ParseAllocation(ctx context.Context, raw string) (types.Allocation, Step, error) {
	var out types.Allocation
	step, err := run(ctx, "allocation", raw,
		func(obj gjson.Result) bool {
			out = decodeAllocation(obj)
			return len(out) > 0
		},
		func(text string) bool {
			out = matchPairs(text)
			return len(out) > 0
		},
	)
	if err != nil {
		return nil, step, err
	}
	return out, step, nil
}

// ParseSymbolLists extracts a category → symbols map. Category names are
// lower-cased, symbols upper-cased, duplicates within a list removed.
func ParseSymbolLists(ctx context.Context, raw string) (map[string][]string, Step, error) {
	var out map[string][]string
	step, err := run(ctx, "symbol_lists", raw,
		func(obj gjson.Result) bool {
			out = decodeSymbolLists(obj)
			return len(out) > 0
		},
		func(text string) bool {
			out = matchLists(text)
			return len(out) > 0
		},
	)
	if err != nil {
		return nil, step, err
	}
	return out, step, nil
}

func run(ctx context.Context, kind, raw string, decode func(gjson.Result) bool, pattern func(string) bool) (Step, error) {
	text := Clean(raw)
	if text == "" {
		logger.Warn(ctx, "LLM response empty after cleaning", "kind", kind)
		return "", ErrUnrecoverable
	}

	try := func(step Step, candidate string) bool {
		if candidate == "" || !gjson.Valid(candidate) {
			return false
		}
		obj := gjson.Parse(candidate)
		if !obj.IsObject() || !decode(obj) {
			return false
		}
		logger.Debug(ctx, "LLM response parsed", "kind", kind, "step", string(step))
		return true
	}

	if try(StepStrict, ExtractObject(text)) {
		return StepStrict, nil
	}

	logger.Debug(ctx, "Strict parse failed, repairing braces", "kind", kind)
	if try(StepBraceRepair, RepairBraces(text)) {
		return StepBraceRepair, nil
	}

	logger.Debug(ctx, "Brace repair failed, normalising quotes", "kind", kind)
	if try(StepQuoteRepair, RepairBraces(NormalizeQuotes(text))) {
		return StepQuoteRepair, nil
	}

	logger.Debug(ctx, "Quote repair failed, matching patterns", "kind", kind)
	if pattern(text) {
		logger.Warn(ctx, "LLM response recovered by pattern match", "kind", kind)
		return StepPattern, nil
	}

	logger.Warn(ctx, "LLM response unrecoverable", "kind", kind, "raw", truncate(raw, 200))
	return "", ErrUnrecoverable
}

// Clean strips code fences and comments and trims whitespace.
func Clean(raw string) string {
	s := fenceRe.ReplaceAllString(raw, "")
	s = blockCommentRe.ReplaceAllString(s, "")
	s = lineCommentRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// ExtractObject returns the span from the first '{' to the last '}'.
func ExtractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// RepairBraces starts at the first '{', stops where that object closes and
// appends whatever closers are missing. Trailing commas are removed.
func RepairBraces(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}

	var (
		stack   []byte
		inStr   bool
		quote   byte
		escaped bool
		end     = len(s)
	)
scan:
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr, quote = true, c
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				end = i + 1
				break scan
			}
		}
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(s[start:end], " \t\r\n,"))
	if inStr {
		b.WriteByte(quote)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return trailingComma.ReplaceAllString(b.String(), "$1")
}

// NormalizeQuotes rewrites pseudo-JSON into JSON: a leading [k: v, ...] list
// becomes an object, single quotes become double quotes and bare keys are
// quoted.
func NormalizeQuotes(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.Contains(s, ":") {
		if end := strings.LastIndex(s, "]"); end > 0 {
			s = "{" + s[1:end] + "}"
		}
	}
	s = strings.ReplaceAll(s, "'", `"`)
	s = bareKeyRe.ReplaceAllString(s, `$1"$2":`)
	return trailingComma.ReplaceAllString(s, "$1")
}

func decodeAllocation(obj gjson.Result) types.Allocation {
	out := types.Allocation{}
	obj.ForEach(func(key, value gjson.Result) bool {
		if w, ok := weight(value); ok {
			if sym := normSymbol(key.String()); sym != "" {
				out[sym] = w
			}
		}
		return true
	})
	if len(out) > 0 {
		return out
	}
	for _, k := range wrapperKeys {
		if inner := obj.Get(k); inner.IsObject() {
			if nested := decodeAllocation(inner); len(nested) > 0 {
				return nested
			}
		}
	}
	return out
}

func weight(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		if v.Float() < 0 {
			return 0, false
		}
		return v.Float(), true
	case gjson.String:
		return parseWeight(v.String(), "")
	}
	return 0, false
}

func parseWeight(s, pct string) (float64, bool) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "%") {
		s, pct = strings.TrimSpace(strings.TrimSuffix(s, "%")), "%"
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	if pct != "" {
		f /= 100
	}
	return f, true
}

func decodeSymbolLists(obj gjson.Result) map[string][]string {
	out := map[string][]string{}
	obj.ForEach(func(key, value gjson.Result) bool {
		if !value.IsArray() {
			return true
		}
		var syms []string
		for _, item := range value.Array() {
			if item.Type == gjson.String {
				syms = append(syms, item.String())
			}
		}
		if list := dedupe(syms); len(list) > 0 {
			out[strings.ToLower(strings.TrimSpace(key.String()))] = list
		}
		return true
	})
	if len(out) > 0 {
		return out
	}
	for _, k := range wrapperKeys {
		if inner := obj.Get(k); inner.IsObject() {
			if nested := decodeSymbolLists(inner); len(nested) > 0 {
				return nested
			}
		}
	}
	return out
}

func matchPairs(text string) types.Allocation {
	out := types.Allocation{}
	for _, m := range pairRe.FindAllStringSubmatch(text, -1) {
		w, ok := parseWeight(m[2], m[3])
		if !ok {
			continue
		}
		if sym := normSymbol(m[1]); sym != "" {
			out[sym] = w
		}
	}
	return out
}

func matchLists(text string) map[string][]string {
	out := map[string][]string{}
	for _, m := range listRe.FindAllStringSubmatch(text, -1) {
		var syms []string
		for _, item := range strings.Split(m[2], ",") {
			syms = append(syms, strings.Trim(strings.TrimSpace(item), `"'`))
		}
		if list := dedupe(syms); len(list) > 0 {
			out[strings.ToLower(strings.TrimSpace(m[1]))] = list
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		s = normSymbol(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func normSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
