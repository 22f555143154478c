package models

import "time"

// Bar is one OHLCV record for a symbol at a single granularity (daily or
// minute). Bars are immutable once fetched; sequences are chronological
// with no duplicate timestamps.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// TradeEvent is a single streamed trade print. Transient, consumed once.
type TradeEvent struct {
	Symbol    string
	Price     float64
	Size      float64
	Timestamp time.Time
}

// LatestTrade is the most recent trade print known for a symbol.
type LatestTrade struct {
	Price     float64
	Timestamp time.Time
}
