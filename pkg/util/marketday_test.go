package util

import (
	"testing"
	"time"
)

func TestIsTradingDay(t *testing.T) {
	cases := []struct {
		date string
		want bool
	}{
		{"2026-08-28", true},  // Friday
		{"2026-08-29", false}, // Saturday
		{"2026-08-30", false}, // Sunday
		{"2026-07-04", false}, // Independence Day (Saturday too)
		{"2026-12-25", false}, // Christmas
		{"2026-01-02", true},
	}
	for _, c := range cases {
		d, err := time.Parse("2006-01-02", c.date)
		if err != nil {
			t.Fatal(err)
		}
		if got := IsTradingDay(d); got != c.want {
			t.Errorf("IsTradingDay(%s) = %v, want %v", c.date, got, c.want)
		}
	}
}

func TestPreviousTradingDaySkipsWeekend(t *testing.T) {
	mon := time.Date(2026, 8, 31, 15, 30, 0, 0, time.UTC)
	got := PreviousTradingDay(mon)
	if got.Weekday() != time.Friday {
		t.Fatalf("expected Friday, got %v", got.Weekday())
	}
	if got.Hour() != 15 || got.Minute() != 30 {
		t.Fatalf("clock time not preserved: %v", got)
	}
}

func TestPreviousTradingDaySkipsHoliday(t *testing.T) {
	// Monday June 22 2026; June 19 is a Friday holiday.
	mon := time.Date(2026, 6, 22, 0, 0, 0, 0, time.UTC)
	got := PreviousTradingDay(mon)
	if got.Month() != time.June || got.Day() != 18 {
		t.Fatalf("expected June 18, got %v", got)
	}
}

func TestSameUTCDay(t *testing.T) {
	a := time.Date(2026, 3, 5, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 5, 1, 0, 0, 0, time.UTC)
	if !SameUTCDay(a, b) {
		t.Fatal("expected same day")
	}
	if SameUTCDay(a, a.AddDate(0, 0, 1)) {
		t.Fatal("expected different days")
	}
}
