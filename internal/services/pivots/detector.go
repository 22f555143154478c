package pivots

import (
	"sort"
	"time"

	"PivotTrader/internal/domain/models"
)

// mergeWindow is the maximum age gap under which two price-close
// candidates are treated as the same level.
const mergeWindow = 365 * 24 * time.Hour

// Detector finds significant local extrema in a bar history. Tolerances
// scale with the symbol's ATR: the search band is bandScale×ATR wide and
// two candidates closer than slipScale×ATR are one level.
type Detector struct {
	count     int
	bandScale float64
	slipScale float64
}

func NewDetector(count int, bandScale, slipScale float64) *Detector {
	return &Detector{count: count, bandScale: bandScale, slipScale: slipScale}
}

type candidate struct {
	ts    time.Time
	price float64
}

// Evaluate re-runs the pivot search for rec against bars and the given
// reference price, replacing the record's strong lists (and weak lists
// when findWeak is set). Idempotent for identical input.
//
// Degraded inputs: empty bars leave the record untouched; a history too
// short for ATR with no previously cached ATR yields no classification,
// since the band and slip tolerance are undefined without one.
func (d *Detector) Evaluate(rec *Record, bars []models.Bar, currentPrice float64, findWeak bool) {
	if len(bars) == 0 {
		return
	}
	rec.LastPrice = currentPrice

	if !rec.hasATR {
		if atr, ok := AverageTrueRange(bars); ok {
			rec.SetATR(atr)
		} else {
			return
		}
	}
	priceRange := d.bandScale * rec.ATR
	slip := d.slipScale * rec.ATR

	peaks, valleys := findExtrema(bars, currentPrice, priceRange)

	strongPeaks := keep(peaks, func(c candidate) bool { return c.price > currentPrice })
	strongValleys := keep(valleys, func(c candidate) bool { return c.price < currentPrice })

	sortAscending(strongPeaks)
	sortDescending(strongValleys)

	rec.StrongPeaks = toPivots(
		truncate(consolidate(strongPeaks, slip), d.count),
		models.PivotPeak, models.PivotStrong)
	rec.StrongValleys = toPivots(
		truncate(consolidate(strongValleys, slip), d.count),
		models.PivotValley, models.PivotStrong)

	if !findWeak {
		return
	}

	// Weak pivots only fill out the deficit, seeded from the complementary
	// extremum set on the unfavorable side of price.
	rec.WeakPeaks = nil
	rec.WeakValleys = nil
	if missing := d.count - len(rec.StrongPeaks); missing > 0 {
		cands := keep(valleys, func(c candidate) bool { return c.price > currentPrice })
		sortByProximity(cands, currentPrice)
		weak := consolidateWeak(cands, rec.StrongPeaks, slip)
		rec.WeakPeaks = toPivots(truncate(weak, missing), models.PivotPeak, models.PivotWeak)
	}
	if missing := d.count - len(rec.StrongValleys); missing > 0 {
		cands := keep(peaks, func(c candidate) bool { return c.price < currentPrice })
		sortByProximity(cands, currentPrice)
		weak := consolidateWeak(cands, rec.StrongValleys, slip)
		rec.WeakValleys = toPivots(truncate(weak, missing), models.PivotValley, models.PivotWeak)
	}
}

// findExtrema scans bars for local peaks (on highs) and valleys (on
// lows). A bar qualifies as an extremum when it beats both immediate
// neighbors and at least one two-away neighbor; it is then accepted if
// it lies within priceRange of currentPrice, or if it dominates all four
// neighbors (a clear turning point even far from price). Edge bars are
// compared against duplicated copies of themselves, which excludes them.
func findExtrema(bars []models.Bar, currentPrice, priceRange float64) (peaks, valleys []candidate) {
	n := len(bars)
	at := func(i int) models.Bar {
		if i < 0 {
			return bars[0]
		}
		if i >= n {
			return bars[n-1]
		}
		return bars[i]
	}
	for i := 0; i < n; i++ {
		cur := bars[i]
		p2, p1 := at(i-2), at(i-1)
		n1, n2 := at(i+1), at(i+2)

		if cur.High > p1.High && cur.High > n1.High && (cur.High > p2.High || cur.High > n2.High) {
			inBand := abs(cur.High-currentPrice) < priceRange
			if inBand || (cur.High > p2.High && cur.High > n2.High) {
				peaks = append(peaks, candidate{ts: cur.Timestamp, price: cur.High})
			}
		}
		if cur.Low < p1.Low && cur.Low < n1.Low && (cur.Low < p2.Low || cur.Low < n2.Low) {
			inBand := abs(cur.Low-currentPrice) < priceRange
			if inBand || (cur.Low < p2.Low && cur.Low < n2.Low) {
				valleys = append(valleys, candidate{ts: cur.Timestamp, price: cur.Low})
			}
		}
	}
	return peaks, valleys
}

// consolidate walks a price-sorted candidate list and merges entries
// closer than slip in price and mergeWindow in time. A one-slot lookback
// holds the last superseded variant so a later candidate can evict a
// previous merge result while restoring the variant if it is itself far
// enough from the new arrival.
func consolidate(cands []candidate, slip float64) []candidate {
	var out []candidate
	var evicted *candidate
	for _, cur := range cands {
		if len(out) == 0 {
			out = append(out, cur)
			continue
		}
		last := out[len(out)-1]
		if abs(last.price-cur.price) < slip && withinMergeWindow(cur.ts, last.ts) {
			if evicted != nil {
				out = out[:len(out)-1]
				if abs(evicted.price-cur.price) > slip {
					out = append(out, *evicted)
					evicted = nil
				}
			} else {
				e := out[len(out)-1]
				evicted = &e
				out = out[:len(out)-1]
			}
			out = append(out, cur)
		} else {
			evicted = nil
			out = append(out, cur)
		}
	}
	return out
}

// consolidateWeak confirms a level only after it recurs: the working
// slot must absorb at least two further candidates within slip before it
// is emitted, and a confirmed level overlapping any strong pivot is
// redundant and dropped.
func consolidateWeak(cands []candidate, strongs []models.Pivot, slip float64) []candidate {
	var out []candidate
	var slot *candidate
	repeat := 0

	flush := func() {
		if slot != nil && repeat >= 2 && !nearStrong(slot.price, strongs, slip) {
			out = append(out, *slot)
		}
	}
	for _, cur := range cands {
		if slot == nil {
			c := cur
			slot, repeat = &c, 0
			continue
		}
		if abs(slot.price-cur.price) < slip {
			repeat++
			if withinMergeWindow(cur.ts, slot.ts) {
				c := cur
				slot = &c
			}
		} else {
			flush()
			c := cur
			slot, repeat = &c, 0
		}
	}
	flush()
	return out
}

func nearStrong(price float64, strongs []models.Pivot, slip float64) bool {
	for _, s := range strongs {
		if abs(s.Price-price) < slip {
			return true
		}
	}
	return false
}

func withinMergeWindow(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < mergeWindow
}

func keep(cands []candidate, pred func(candidate) bool) []candidate {
	var out []candidate
	for _, c := range cands {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// Ties on price break toward the earliest timestamp so consolidation is
// deterministic regardless of the scan order.
func sortAscending(cands []candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].price != cands[j].price {
			return cands[i].price < cands[j].price
		}
		return cands[i].ts.Before(cands[j].ts)
	})
}

func sortDescending(cands []candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].price != cands[j].price {
			return cands[i].price > cands[j].price
		}
		return cands[i].ts.Before(cands[j].ts)
	})
}

func sortByProximity(cands []candidate, ref float64) {
	sort.SliceStable(cands, func(i, j int) bool {
		di, dj := abs(cands[i].price-ref), abs(cands[j].price-ref)
		if di != dj {
			return di < dj
		}
		return cands[i].ts.Before(cands[j].ts)
	})
}

// truncate orders cands most-recent-first and keeps at most n.
func truncate(cands []candidate, n int) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].ts.After(cands[j].ts)
	})
	if len(cands) > n {
		cands = cands[:n]
	}
	return cands
}

func toPivots(cands []candidate, kind models.PivotKind, strength models.PivotStrength) []models.Pivot {
	if len(cands) == 0 {
		return nil
	}
	out := make([]models.Pivot, 0, len(cands))
	for _, c := range cands {
		out = append(out, models.Pivot{
			Timestamp: c.ts,
			Price:     c.price,
			Kind:      kind,
			Strength:  strength,
		})
	}
	return out
}
