package contracts

// Fundamentals are optional snapshot fundamentals. nil means unknown.
type Fundamentals struct {
	PER       *float64 `json:"per,omitempty"`
	PBR       *float64 `json:"pbr,omitempty"`
	ROE       *float64 `json:"roe,omitempty"`
	MarketCap *float64 `json:"market_cap,omitempty"` // 원 단위
}

// StockSnapshot is the frozen per-stock input to prompt composition.
// Empty strings and nil pointers print as "N/A".
type StockSnapshot struct {
	Code             string             `json:"code"`
	Name             string             `json:"name"`
	Sector           string             `json:"sector,omitempty"`
	Fundamentals     Fundamentals       `json:"fundamentals"`
	TechnicalSummary string             `json:"technical_summary,omitempty"`
	NewsReason       string             `json:"news_reason,omitempty"`
	MomentumScore    *float64           `json:"momentum_score,omitempty"`
	QuantScore       *float64           `json:"quant_score,omitempty"`
	Breakdown        map[string]float64 `json:"breakdown,omitempty"`
	Keywords         []string           `json:"keywords,omitempty"`
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
