package terminal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"PivotTrader/internal/domain/models"
	phttp "PivotTrader/pkg/http"
	"PivotTrader/pkg/logger"
)

// Config carries the trading-terminal bridge settings.
type Config struct {
	BaseURL  string
	Exchange string
	Timeout  time.Duration
}

// Client drives the local trading terminal over its HTTP bridge. The
// bridge takes everything as GET query parameters and answers in the
// pseudo-JSON handled by normalize. It implements
// repository.OrderExecutor.
type Client struct {
	log  *logger.Logger
	http *phttp.Client
	cfg  Config
}

func NewClient(log *logger.Logger, cfg Config) *Client {
	return &Client{
		log:  log,
		http: phttp.NewClient(phttp.WithTimeout(cfg.Timeout)),
		cfg:  cfg,
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.http.SendRequest(ctx, &phttp.RequestOptions{
		Method:      phttp.MethodGet,
		URL:         c.cfg.BaseURL + path,
		QueryParams: params,
	})
}

// commaPrice renders a price the way the terminal wants it: two
// decimals, comma separator.
func commaPrice(price float64) string {
	s := decimal.NewFromFloat(price).StringFixed(2)
	return strings.Replace(s, ".", ",", 1)
}

// SubmitOrder sends one order and reports how the terminal took it.
// A reply mentioning a rejection is final; anything else is matched
// against the returned order record.
func (c *Client) SubmitOrder(ctx context.Context, o models.Order) (models.OrderResult, error) {
	params := url.Values{}
	params.Set("Symbol", o.Symbol)
	params.Set("Exchange", c.cfg.Exchange)
	params.Set("Side", string(o.Side))
	params.Set("Qty", strconv.Itoa(o.Quantity))
	params.Set("Type", string(o.Type))
	// Market orders carry no price on the wire.
	price := "0"
	if o.Type == models.TypeLimit {
		price = commaPrice(o.Price)
	}
	params.Set("Price", price)

	body, err := c.get(ctx, "/sendOrder", params)
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("send order: %w", err)
	}
	if strings.Contains(strings.ToLower(string(body)), "rejected") {
		c.log.Warn("terminal rejected order",
			logger.String("symbol", o.Symbol),
			logger.String("side", string(o.Side)))
		return models.OrderResult{Status: models.StatusRejected}, nil
	}

	orders, err := decodeOrders(body)
	if err != nil {
		return models.OrderResult{}, err
	}
	if len(orders) == 0 {
		return models.OrderResult{}, fmt.Errorf("empty order reply for %s", o.Symbol)
	}
	reply := orders[0]
	if strings.EqualFold(reply.Status, "filled") {
		return models.OrderResult{Status: models.StatusFilled}, nil
	}
	return models.OrderResult{Status: models.StatusPending, PendingID: reply.OrderID}, nil
}

// OpenPositions returns every non-flat position.
func (c *Client) OpenPositions(ctx context.Context) ([]models.Position, error) {
	body, err := c.get(ctx, "/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	replies, err := decodePositions(body)
	if err != nil {
		return nil, err
	}
	out := make([]models.Position, 0, len(replies))
	for _, r := range replies {
		if r.Pos == 0 {
			continue
		}
		side := models.SideBuy
		if r.Pos < 0 {
			side = models.SideSell
		}
		out = append(out, models.Position{
			Symbol:        r.Symbol,
			Qty:           int(r.Pos),
			AvgPrice:      r.PosAvgPrice,
			LastPrice:     r.LastPrice,
			UnrealizedPnL: r.Unrealized,
			Side:          side,
		})
	}
	return out, nil
}

// ClosePosition flattens one position with an opposite-side market
// order at the terminal's last price.
func (c *Client) ClosePosition(ctx context.Context, p models.Position) error {
	side := models.SideSell
	qty := p.Qty
	if p.Qty < 0 {
		side = models.SideBuy
		qty = -p.Qty
	}
	res, err := c.SubmitOrder(ctx, models.Order{
		Symbol:   p.Symbol,
		Price:    p.LastPrice,
		Quantity: qty,
		Type:     models.TypeMarket,
		Side:     side,
	})
	if err != nil {
		return fmt.Errorf("close %s: %w", p.Symbol, err)
	}
	if res.Status == models.StatusRejected {
		return fmt.Errorf("close %s: terminal rejected the order", p.Symbol)
	}
	return nil
}

// CloseAllPositions flattens the whole account, trying every position
// even when some fail.
func (c *Client) CloseAllPositions(ctx context.Context) error {
	positions, err := c.OpenPositions(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range positions {
		if err := c.ClosePosition(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CancelOrder cancels one working order by id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	params := url.Values{}
	params.Set("OrderId", orderID)
	if _, err := c.get(ctx, "/cancelOrder", params); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// CancelOpenOrders cancels everything still working at the terminal.
func (c *Client) CancelOpenOrders(ctx context.Context) error {
	if _, err := c.get(ctx, "/cancelAllOrders", nil); err != nil {
		return fmt.Errorf("cancel open orders: %w", err)
	}
	return nil
}
