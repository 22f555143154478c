package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PivotTrader/internal/domain/models"
	"PivotTrader/pkg/logger"
)

const (
	streamBuffer   = 1024
	authWaitFrames = 5
)

// StreamConfig carries the market-data websocket settings.
type StreamConfig struct {
	KeyID          string
	SecretKey      string
	Feed           string
	URL            string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Stream implements repository.MarketStream over the Alpaca v2
// market-data websocket. A Stream is single-use: the router builds a
// fresh one per subscription set.
type Stream struct {
	log *logger.Logger
	cfg StreamConfig

	mu        sync.Mutex
	conn      *websocket.Conn
	symbols   []string
	connected bool
}

func NewStream(log *logger.Logger, cfg StreamConfig) *Stream {
	return &Stream{log: log, cfg: cfg}
}

type controlFrame struct {
	Type string `json:"T"`
	Msg  string `json:"msg"`
	Code int    `json:"code"`
}

// Connect dials the feed endpoint and authenticates.
func (s *Stream) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s/%s", s.cfg.URL, s.cfg.Feed)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}

	auth := map[string]string{
		"action": "auth",
		"key":    s.cfg.KeyID,
		"secret": s.cfg.SecretKey,
	}
	if err := conn.WriteJSON(auth); err != nil {
		_ = conn.Close()
		return fmt.Errorf("stream auth: %w", err)
	}
	if err := awaitControl(conn, "authenticated"); err != nil {
		_ = conn.Close()
		return fmt.Errorf("stream auth: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.log.Debug("stream connected", logger.String("feed", s.cfg.Feed))
	return nil
}

// awaitControl reads frames until the wanted control message arrives.
// The server interleaves a connect ack before the auth response.
func awaitControl(conn *websocket.Conn, want string) error {
	for i := 0; i < authWaitFrames; i++ {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frames []controlFrame
		if err := json.Unmarshal(b, &frames); err != nil {
			continue
		}
		for _, f := range frames {
			switch f.Type {
			case "error":
				return fmt.Errorf("stream error %d: %s", f.Code, f.Msg)
			case "success":
				if f.Msg == want {
					return nil
				}
			}
		}
	}
	return fmt.Errorf("no %q ack from stream", want)
}

// Subscribe requests trade events for the given symbols.
func (s *Stream) Subscribe(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	conn := s.conn
	s.symbols = symbols
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("stream not connected")
	}

	msg := map[string]interface{}{
		"action": "subscribe",
		"trades": symbols,
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Debug("stream subscribed", logger.Int("symbols", len(symbols)))
	return nil
}

type tradeFrame struct {
	Type      string    `json:"T"`
	Symbol    string    `json:"S"`
	Price     float64   `json:"p"`
	Size      float64   `json:"s"`
	Timestamp time.Time `json:"t"`
	Msg       string    `json:"msg"`
	Code      int       `json:"code"`
}

// Read streams trade events and errors until ctx is done or the
// connection fails. Events are dropped rather than blocking the reader
// when the consumer falls behind.
func (s *Stream) Read(ctx context.Context) (<-chan models.TradeEvent, <-chan error) {
	events := make(chan models.TradeEvent, streamBuffer)
	errs := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				conn := s.conn
				s.mu.Unlock()
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	go func() {
		defer close(events)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				errs <- fmt.Errorf("stream connection lost")
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("stream read: %w", err)
				return
			}

			var frames []tradeFrame
			if err := json.Unmarshal(b, &frames); err != nil {
				continue
			}
			for _, f := range frames {
				switch f.Type {
				case "t":
					ev := models.TradeEvent{
						Symbol:    f.Symbol,
						Price:     f.Price,
						Size:      f.Size,
						Timestamp: f.Timestamp,
					}
					select {
					case events <- ev:
					default:
						// consumer behind, drop
					}
				case "error":
					select {
					case errs <- fmt.Errorf("stream error %d: %s", f.Code, f.Msg):
					default:
					}
				}
			}
		}
	}()

	return events, errs
}

// Reconnect tears the connection down and dials again with the last
// subscription.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.ReconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	symbols := s.symbols
	s.mu.Unlock()
	return s.Subscribe(ctx, symbols)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
