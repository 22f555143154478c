package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"PivotTrader/internal/domain/models"
	"PivotTrader/internal/domain/repository"
	"PivotTrader/pkg/logger"
)

const eventBuffer = 1024

// SubscriptionRouter owns the trade stream and keeps its subscription
// aligned with the screened set. When the desired set changes the old
// stream is torn down and a fresh one is started; an unchanged set is
// a no-op so steady cycles do not churn the connection.
type SubscriptionRouter struct {
	log     *logger.Logger
	factory repository.StreamFactory
	metrics repository.Metrics
	events  chan models.TradeEvent

	mu      sync.Mutex
	stream  repository.MarketStream
	current map[string]bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// set by the collector when a reconnect fails, forcing the next
	// Update to restart even with an unchanged set
	dead atomic.Bool
}

func NewSubscriptionRouter(log *logger.Logger, factory repository.StreamFactory, metrics repository.Metrics) *SubscriptionRouter {
	return &SubscriptionRouter{
		log:     log,
		factory: factory,
		metrics: metrics,
		events:  make(chan models.TradeEvent, eventBuffer),
	}
}

// Events returns the channel trade events are forwarded on. The channel
// stays valid across stream restarts.
func (r *SubscriptionRouter) Events() <-chan models.TradeEvent { return r.events }

// Update reconciles the live subscription with the desired symbols.
func (r *SubscriptionRouter) Update(ctx context.Context, symbols []string) error {
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if setsEqual(want, r.current) && !r.dead.Load() {
		return nil
	}

	r.stopLocked()
	r.current = nil
	if len(want) == 0 {
		r.metrics.SetSubscribedSymbols(0)
		r.log.Info("subscription cleared")
		return nil
	}

	stream := r.factory()
	if err := stream.Connect(ctx); err != nil {
		r.metrics.RecordError("stream_connect")
		return err
	}
	if err := stream.Subscribe(ctx, symbols); err != nil {
		r.metrics.RecordError("stream_subscribe")
		_ = stream.Close()
		return err
	}

	collectCtx, cancel := context.WithCancel(context.Background())
	r.stream = stream
	r.current = want
	r.cancel = cancel
	r.dead.Store(false)

	trCh, errCh := stream.Read(collectCtx)
	r.wg.Add(1)
	go r.collect(collectCtx, stream, trCh, errCh)

	r.metrics.SetSubscribedSymbols(len(symbols))
	r.log.Info("subscription updated", logger.Int("symbols", len(symbols)))
	return nil
}

func (r *SubscriptionRouter) collect(ctx context.Context, stream repository.MarketStream, trCh <-chan models.TradeEvent, errCh <-chan error) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err == nil {
				continue
			}
			r.metrics.RecordError("stream")
			r.log.Warn("stream error, reconnecting", logger.Error(err))
			if rerr := stream.Reconnect(ctx); rerr != nil {
				r.metrics.RecordError("stream_reconnect")
				r.log.Error("stream reconnect failed", logger.Error(rerr))
				r.dead.Store(true)
				return
			}
		case ev, ok := <-trCh:
			if !ok {
				return
			}
			r.metrics.RecordTradeEvent(ev.Symbol)
			r.metrics.RecordLastPrice(ev.Symbol, ev.Price)
			select {
			case r.events <- ev:
			default:
				// consumer is behind, drop rather than stall the reader
			}
		}
	}
}

// Stop tears down the live stream, if any.
func (r *SubscriptionRouter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	r.current = nil
}

func (r *SubscriptionRouter) stopLocked() {
	if r.stream == nil {
		return
	}
	r.cancel()
	if err := r.stream.Close(); err != nil {
		r.log.Warn("stream close failed", logger.Error(err))
	}
	r.wg.Wait()
	r.stream = nil
	r.cancel = nil
}

func setsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
