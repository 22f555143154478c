package pivots

import "PivotTrader/internal/domain/models"

// atrPeriod is the trailing true-range window; atrPeriod+1 bars are
// needed because each true range consumes the previous close.
const atrPeriod = 14

// AverageTrueRange computes the mean true range over the most recent
// atrPeriod bars. It returns false when fewer than atrPeriod+1 bars are
// available.
func AverageTrueRange(bars []models.Bar) (float64, bool) {
	if len(bars) < atrPeriod+1 {
		return 0, false
	}
	window := bars[len(bars)-(atrPeriod+1):]
	var sum float64
	for i := 1; i < len(window); i++ {
		sum += trueRange(window[i], window[i-1].Close)
	}
	return sum / atrPeriod, true
}

func trueRange(b models.Bar, prevClose float64) float64 {
	tr := b.High - b.Low
	if d := abs(b.High - prevClose); d > tr {
		tr = d
	}
	if d := abs(b.Low - prevClose); d > tr {
		tr = d
	}
	return tr
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
