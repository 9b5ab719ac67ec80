package eod

// tradeLine is one line of the daily trade log, as written by tradelog.
type tradeLine struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Shares float64 `json:"shares"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// aggRow is the day's activity for one symbol.
type aggRow struct {
	Symbol      string
	BuyShares   float64
	BuyValue    float64
	SellShares  float64
	SellValue   float64
	RealizedPnL float64 // matched shares at (sell avg - buy avg)
}

// NetCashFlow is sells minus buys.
func (r aggRow) NetCashFlow() float64 {
	return r.SellValue - r.BuyValue
}
