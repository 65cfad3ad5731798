package contracts

import "time"

// Bar is one daily OHLCV bar
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Fundamental is one quarterly fundamentals row
type Fundamental struct {
	ReportDate time.Time `json:"report_date"`
	PER        float64   `json:"per"`
	PBR        float64   `json:"pbr"`
	ROE        float64   `json:"roe"`
}

// Flow is one day of investor net-buy (value, KRW)
type Flow struct {
	Date       time.Time `json:"date"`
	ForeignNet int64     `json:"foreign_net"`
	InstNet    int64     `json:"inst_net"`
}

// StockHistory is the per-stock input to calibration. Series are oldest-first.
type StockHistory struct {
	Code         string        `json:"code"`
	Bars         []Bar         `json:"bars"`
	Fundamentals []Fundamental `json:"fundamentals"`
	Flows        []Flow        `json:"flows"`
}

// StockInfo is the static stock master row
type StockInfo struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Market string `json:"market"`
	Sector string `json:"sector"`
}
