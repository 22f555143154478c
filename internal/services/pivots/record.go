package pivots

import "PivotTrader/internal/domain/models"

// Record owns one symbol's pivot state across the lifetime of a run. It
// is created on the first successful search, updated on each re-screen,
// and never deleted; only the Detector mutates it.
type Record struct {
	Symbol string

	// ATR is computed once from the first sufficiently long bar history
	// and reused for every later evaluation of the symbol.
	ATR    float64
	hasATR bool

	StrongPeaks   []models.Pivot
	StrongValleys []models.Pivot
	WeakPeaks     []models.Pivot
	WeakValleys   []models.Pivot

	// LastPrice is the reference price the lists were built against.
	LastPrice float64
}

func NewRecord(symbol string) *Record {
	return &Record{Symbol: symbol}
}

// SetATR pre-supplies an ATR, used when the caller has one from a prior
// run or a longer history than the current bar window.
func (r *Record) SetATR(atr float64) {
	r.ATR = atr
	r.hasATR = atr > 0
}

// HasATR reports whether the record carries a usable ATR.
func (r *Record) HasATR() bool { return r.hasATR }

// NearestStrong returns the strong pivot of the given kind closest to
// price within tol, favoring peaks above price and valleys below it.
// ok is false when no pivot qualifies.
func (r *Record) NearestStrong(kind models.PivotKind, price, tol float64) (models.Pivot, bool) {
	list := r.StrongPeaks
	if kind == models.PivotValley {
		list = r.StrongValleys
	}
	var best models.Pivot
	bestDist := tol
	found := false
	for _, p := range list {
		if kind == models.PivotPeak && p.Price <= price {
			continue
		}
		if kind == models.PivotValley && p.Price >= price {
			continue
		}
		if d := abs(p.Price - price); d < bestDist {
			best, bestDist, found = p, d, true
		}
	}
	return best, found
}
