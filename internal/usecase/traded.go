package usecase

import (
	"sync"

	"PivotTrader/internal/domain/models"
)

// TradedSet remembers every symbol whose order reached a definitive
// broker outcome this run. Marks are never removed, so a symbol gets
// at most one successful or rejected order per run.
type TradedSet struct {
	mu      sync.Mutex
	symbols map[string]bool
}

func NewTradedSet() *TradedSet {
	return &TradedSet{symbols: make(map[string]bool)}
}

func (s *TradedSet) Add(symbol string) {
	s.mu.Lock()
	s.symbols[symbol] = true
	s.mu.Unlock()
}

func (s *TradedSet) Contains(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbols[symbol]
}

// Filter drops assets whose symbol has already been traded.
func (s *TradedSet) Filter(assets []models.ScreenedAsset) []models.ScreenedAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := assets[:0]
	for _, a := range assets {
		if !s.symbols[a.Symbol] {
			out = append(out, a)
		}
	}
	return out
}
