package llmjson

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"llm-rebalancer/internal/types"
)

func TestParseAllocationChain(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     types.Allocation
		wantStep Step
	}{
		{
			name:     "fenced json with prose",
			raw:      "Here you go:\n```json\n{\"AAPL\": 0.6, \"msft\": \"0.4\"}\n```\nGood luck!",
			want:     types.Allocation{"AAPL": 0.6, "MSFT": 0.4},
			wantStep: StepStrict,
		},
		{
			name:     "line comments",
			raw:      "{\"AAPL\": 0.5, // strong quarter\n \"MSFT\": 0.5}",
			want:     types.Allocation{"AAPL": 0.5, "MSFT": 0.5},
			wantStep: StepStrict,
		},
		{
			name:     "trailing commentary with braces",
			raw:      `{"AAPL": 0.5, "MSFT": 0.5} Note: {weights sum to 1}`,
			want:     types.Allocation{"AAPL": 0.5, "MSFT": 0.5},
			wantStep: StepBraceRepair,
		},
		{
			name:     "unbalanced braces",
			raw:      `{"AAPL": 0.7, "BTC-USD": 0.3,`,
			want:     types.Allocation{"AAPL": 0.7, "BTC-USD": 0.3},
			wantStep: StepBraceRepair,
		},
		{
			name:     "trailing comma",
			raw:      `{"AAPL": 1.0,}`,
			want:     types.Allocation{"AAPL": 1.0},
			wantStep: StepBraceRepair,
		},
		{
			name:     "single quotes",
			raw:      `{'AAPL': 0.5, 'BTC-USD': 0.5}`,
			want:     types.Allocation{"AAPL": 0.5, "BTC-USD": 0.5},
			wantStep: StepQuoteRepair,
		},
		{
			name:     "bare keys",
			raw:      `{AAPL: 0.25, MSFT: 0.75}`,
			want:     types.Allocation{"AAPL": 0.25, "MSFT": 0.75},
			wantStep: StepQuoteRepair,
		},
		{
			name:     "list of pairs",
			raw:      `["DOGE-USD": 0.4, "BTC-USD": 0.6]`,
			want:     types.Allocation{"DOGE-USD": 0.4, "BTC-USD": 0.6},
			wantStep: StepQuoteRepair,
		},
		{
			name:     "prose percentages",
			raw:      "I suggest AAPL = 60% and MSFT = 40% this week.",
			want:     types.Allocation{"AAPL": 0.6, "MSFT": 0.4},
			wantStep: StepPattern,
		},
		{
			name:     "nested under allocation",
			raw:      `{"allocation": {"NVDA": 1}}`,
			want:     types.Allocation{"NVDA": 1},
			wantStep: StepStrict,
		},
		{
			name:     "invalid weights dropped",
			raw:      `{"AAPL": -0.2, "MSFT": 0.5, "X": "abc", "Y": "25%"}`,
			want:     types.Allocation{"MSFT": 0.5, "Y": 0.25},
			wantStep: StepStrict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, step, err := ParseAllocation(context.Background(), tt.raw)
			if err != nil {
				t.Fatalf("ParseAllocation: %v", err)
			}
			if step != tt.wantStep {
				t.Errorf("step = %q, want %q", step, tt.wantStep)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for s, w := range tt.want {
				if math.Abs(got[s]-w) > 1e-9 {
					t.Errorf("%s = %v, want %v", s, got[s], w)
				}
			}
		})
	}
}

func TestParseAllocationUnrecoverable(t *testing.T) {
	for _, raw := range []string{"", "   ", "I cannot help with that.", "```\n```", `{"AAPL": "lots"}`} {
		got, _, err := ParseAllocation(context.Background(), raw)
		if !errors.Is(err, ErrUnrecoverable) {
			t.Errorf("ParseAllocation(%q) err = %v, want ErrUnrecoverable", raw, err)
		}
		if got != nil {
			t.Errorf("ParseAllocation(%q) = %v, want nil", raw, got)
		}
	}
}

func TestParseSymbolLists(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     map[string][]string
		wantStep Step
	}{
		{
			name:     "strict with duplicates",
			raw:      `{"Stocks": ["aapl", "MSFT", "aapl"], "cryptos": ["BTC-USD"]}`,
			want:     map[string][]string{"stocks": {"AAPL", "MSFT"}, "cryptos": {"BTC-USD"}},
			wantStep: StepStrict,
		},
		{
			name:     "python style",
			raw:      `Sure! {stocks: ['NVDA', 'AMD'], cryptos: ['ETH-USD']}`,
			want:     map[string][]string{"stocks": {"NVDA", "AMD"}, "cryptos": {"ETH-USD"}},
			wantStep: StepQuoteRepair,
		},
		{
			name:     "plain lines",
			raw:      "stocks: [AAPL, MSFT]\ncryptos: [BTC-USD]",
			want:     map[string][]string{"stocks": {"AAPL", "MSFT"}, "cryptos": {"BTC-USD"}},
			wantStep: StepPattern,
		},
		{
			name:     "nested",
			raw:      `{"symbols": {"stocks": ["TSLA"]}}`,
			want:     map[string][]string{"stocks": {"TSLA"}},
			wantStep: StepStrict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, step, err := ParseSymbolLists(context.Background(), tt.raw)
			if err != nil {
				t.Fatalf("ParseSymbolLists: %v", err)
			}
			if step != tt.wantStep {
				t.Errorf("step = %q, want %q", step, tt.wantStep)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, _, err := ParseSymbolLists(context.Background(), `{"stocks": []}`); !errors.Is(err, ErrUnrecoverable) {
		t.Errorf("empty lists err = %v", err)
	}
}

func TestRepairBraces(t *testing.T) {
	tests := map[string]string{
		`{"a": [1, 2`:              `{"a": [1, 2]}`,
		`x {"a": "b}"} trailing`:   `{"a": "b}"}`,
		`{"a": {"b": 1}, `:         `{"a": {"b": 1}}`,
		`no braces`:                ``,
		`{"a": "unterminated`:      `{"a": "unterminated"}`,
		`{"a": 1, "b": [1, 2, ], }`: `{"a": 1, "b": [1, 2]}`,
	}
	for in, want := range tests {
		if got := RepairBraces(in); got != want {
			t.Errorf("RepairBraces(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanKeepsURLs(t *testing.T) {
	got := Clean(`{"src": "https://example.com"} // done`)
	if got != `{"src": "https://example.com"}` {
		t.Errorf("Clean = %q", got)
	}
}
