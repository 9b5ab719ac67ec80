package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"llm-rebalancer/internal/ledger"
	"llm-rebalancer/internal/types"
)

// Report is a set of ledger records grouped into cycles.
type Report struct {
	GeneratedAt time.Time
	Cycles      []Cycle
}

// Cycle is every record sharing one transaction id.
type Cycle struct {
	TransactionID  string
	Time           string
	Date           string
	PortfolioValue decimal.Decimal
	// Delta is the change from the previous cycle in the report, nil for
	// the first one.
	Delta *decimal.Decimal
	Lines []Line
}

type Line struct {
	Symbol     string
	Action     string
	Allocation string
	Price      string
	SharesHeld string
	Amount     string
}

// BuildReport groups records by transaction id in numeric order.
func BuildReport(records []types.TradeRecord, now time.Time) Report {
	rep := Report{GeneratedAt: now}
	var prev *decimal.Decimal
	for _, batch := range ledger.GroupByTransaction(records) {
		id := batch[0].TxID()
		if id < 0 {
			continue
		}
		total := decimal.NewFromFloat(batch[0].PortfolioValue).Round(2)
		c := Cycle{
			TransactionID:  types.FormatTransactionID(id),
			Time:           batch[0].Time,
			Date:           batch[0].Date,
			PortfolioValue: total,
		}
		if prev != nil {
			d := total.Sub(*prev)
			c.Delta = &d
		}
		for _, r := range batch {
			c.Lines = append(c.Lines, line(r))
		}
		rep.Cycles = append(rep.Cycles, c)
		prev = &total
	}
	return rep
}

func line(r types.TradeRecord) Line {
	price := "N/A"
	if r.CurrentPrice != nil {
		price = "$" + decimal.NewFromFloat(*r.CurrentPrice).String()
	}
	return Line{
		Symbol:     r.Symbol,
		Action:     string(r.Action),
		Allocation: decimal.NewFromFloat(r.Allocation*100).StringFixed(1) + "%",
		Price:      price,
		SharesHeld: decimal.NewFromFloat(r.SharesHeld).StringFixed(4),
		Amount:     "$" + decimal.NewFromFloat(r.Amount).StringFixed(2),
	}
}

// MaxTransactionID returns the highest id in the report, -1 when empty.
func (r Report) MaxTransactionID() int {
	top := -1
	for _, c := range r.Cycles {
		if id, err := types.ParseTransactionID(c.TransactionID); err == nil && id > top {
			top = id
		}
	}
	return top
}

// DeltaString renders the delta with its sign, empty for the first cycle.
func (c Cycle) DeltaString() string {
	if c.Delta == nil {
		return ""
	}
	if c.Delta.IsNegative() {
		return "-" + c.Delta.Abs().StringFixed(2)
	}
	return "+" + c.Delta.StringFixed(2)
}

// Text renders the plain text summary.
func (r Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trade Summary - %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	for _, c := range r.Cycles {
		fmt.Fprintf(&b, "Transaction %s at %s on %s | Portfolio Value: $%s", c.TransactionID, c.Time, c.Date, c.PortfolioValue.StringFixed(2))
		if d := c.DeltaString(); d != "" {
			fmt.Fprintf(&b, " (%s)", d)
		}
		b.WriteString("\n")
		for _, l := range c.Lines {
			fmt.Fprintf(&b, "  %s: %s | %s @ %s | Shares: %s | Amount: %s\n", l.Symbol, l.Action, l.Allocation, l.Price, l.SharesHeld, l.Amount)
		}
		b.WriteString("\n")
	}
	return b.String()
}

var htmlReport = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Trade Summary</title>
<style>
body { font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; color: #333; margin: 20px; }
table { border-collapse: collapse; margin-bottom: 24px; }
th, td { border: 1px solid #ddd; padding: 4px 10px; text-align: right; }
th { background: #f4f4f4; }
td.sym { text-align: left; font-weight: 600; }
.up { color: #1a7f37; }
.down { color: #cf222e; }
</style>
</head>
<body>
<h1>Trade Summary</h1>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04:05"}}</p>
{{range .Cycles}}
<h2>Transaction {{.TransactionID}} <small>{{.Time}} on {{.Date}}</small></h2>
<p>Portfolio Value: ${{.PortfolioValue.StringFixed 2}}{{if .Delta}} <span class="{{if .Delta.IsNegative}}down{{else}}up{{end}}">({{.DeltaString}})</span>{{end}}</p>
<table>
<tr><th>Symbol</th><th>Action</th><th>Allocation</th><th>Price</th><th>Shares Held</th><th>Amount</th></tr>
{{range .Lines}}<tr><td class="sym">{{.Symbol}}</td><td>{{.Action}}</td><td>{{.Allocation}}</td><td>{{.Price}}</td><td>{{.SharesHeld}}</td><td>{{.Amount}}</td></tr>
{{end}}</table>
{{else}}
<p>No trades.</p>
{{end}}
</body>
</html>
`))

// HTML renders the summary as a standalone page.
func (r Report) HTML() (string, error) {
	var buf bytes.Buffer
	if err := htmlReport.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}
