package models

import "time"

// PivotKind distinguishes peaks from valleys.
type PivotKind string

const (
	PivotPeak   PivotKind = "peak"
	PivotValley PivotKind = "valley"
)

// PivotStrength classifies how confirmed a pivot level is. Strong pivots
// sit on the favorable side of the current price and survive price/time
// consolidation; weak pivots only fill out a target count when strong
// pivots are scarce.
type PivotStrength string

const (
	PivotStrong PivotStrength = "strong"
	PivotWeak   PivotStrength = "weak"
)

// Pivot is a historical local price extremum deemed significant as a
// potential support or resistance level.
type Pivot struct {
	Timestamp time.Time
	Price     float64
	Kind      PivotKind
	Strength  PivotStrength
}

// Action is the side a screened asset is expected to trade on.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// ScreenedAsset is one symbol that survived a full screening cycle,
// carrying the pivot level it is watched against. The set of screened
// assets is replaced wholesale between cycles, never merged.
type ScreenedAsset struct {
	Symbol     string
	Action     Action
	PivotPrice float64
	AvgVolume  float64
}
