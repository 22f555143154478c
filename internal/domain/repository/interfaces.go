package repository

import (
	"context"
	"errors"
	"time"

	"PivotTrader/internal/domain/models"
)

// ErrNoData is returned by MarketData lookups when the collaborator has
// nothing for the requested symbols or window. Callers skip the affected
// symbol for the current cycle only.
var ErrNoData = errors.New("no market data")

// ErrMarketClosed indicates the current session has no activity (weekend,
// holiday, or outside trading hours).
var ErrMarketClosed = errors.New("market closed")

// MarketData is the historical/latest market-data collaborator.
type MarketData interface {
	// ListTradableSymbols returns active equity symbols that are
	// tradable, shortable and easy to borrow.
	ListTradableSymbols(ctx context.Context) ([]string, error)
	// DailyBars returns up to lookbackDays of daily bars per symbol,
	// chronological. Symbols with no data are absent from the map.
	DailyBars(ctx context.Context, symbols []string, lookbackDays int) (map[string][]models.Bar, error)
	// MinuteBars returns minute bars covering the trailing lookback
	// window of the most recent session, chronological.
	MinuteBars(ctx context.Context, symbols []string, lookback time.Duration) (map[string][]models.Bar, error)
	// OpeningPrices returns today's opening price per symbol, or the
	// previous session's close before today's open.
	OpeningPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	// LatestTrades returns the most recent trade print per symbol.
	LatestTrades(ctx context.Context, symbols []string) (map[string]models.LatestTrade, error)
	// NextClose reports when the current or next market session closes.
	NextClose(ctx context.Context) (time.Time, error)
}

// MarketStream is one live trade-stream connection. A stream is subscribed
// to a fixed symbol set for its whole lifetime; changing the set means
// closing the stream and opening a new one.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, symbols []string) error
	Read(ctx context.Context) (<-chan models.TradeEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// StreamFactory builds a fresh MarketStream connection.
type StreamFactory func() MarketStream

// OrderExecutor is the order-execution collaborator shared by the
// decision engine and the position-risk monitor.
type OrderExecutor interface {
	SubmitOrder(ctx context.Context, o models.Order) (models.OrderResult, error)
	OpenPositions(ctx context.Context) ([]models.Position, error)
	// ClosePosition submits the market order that flattens p.
	ClosePosition(ctx context.Context, p models.Position) error
	CloseAllPositions(ctx context.Context) error
}

// SymbolSource supplies the raw candidate symbol list that seeds
// screening. The list is an opaque, untyped seed.
type SymbolSource interface {
	CandidateSymbols(ctx context.Context) ([]string, error)
}

// Metrics records operational measurements.
type Metrics interface {
	RecordTradeEvent(symbol string)
	RecordOrder(action, outcome string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordCycleDuration(seconds float64)
	SetSubscribedSymbols(n int)
	SetScreenedAssets(n int)
}
