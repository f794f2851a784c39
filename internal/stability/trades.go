package stability

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const aggTradesPath = "/bapi/defi/v1/public/alpha-trade/agg-trades"

// Trade is one aggregated trade from the Alpha trade feed.
type Trade struct {
	Price        float64
	Quantity     float64
	Time         time.Time
	IsBuyerMaker bool
}

// UnmarshalJSON decodes the upstream tuple shape
// ["<price>","<qty>",<time_ms>,<is_buyer_maker>].
func (t *Trade) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode trade tuple: %w", err)
	}
	if len(fields) < 4 {
		return fmt.Errorf("trade tuple has %d fields, want 4", len(fields))
	}

	var priceStr, qtyStr string
	if err := json.Unmarshal(fields[0], &priceStr); err != nil {
		return fmt.Errorf("decode trade price: %w", err)
	}
	if err := json.Unmarshal(fields[1], &qtyStr); err != nil {
		return fmt.Errorf("decode trade quantity: %w", err)
	}
	var ms int64
	if err := json.Unmarshal(fields[2], &ms); err != nil {
		return fmt.Errorf("decode trade time: %w", err)
	}
	var maker bool
	if err := json.Unmarshal(fields[3], &maker); err != nil {
		return fmt.Errorf("decode trade maker flag: %w", err)
	}

	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return fmt.Errorf("parse trade price %q: %w", priceStr, err)
	}
	qty, err := strconv.ParseFloat(qtyStr, 64)
	if err != nil {
		return fmt.Errorf("parse trade quantity %q: %w", qtyStr, err)
	}

	t.Price = price
	t.Quantity = qty
	t.Time = time.UnixMilli(ms).UTC()
	t.IsBuyerMaker = maker
	return nil
}

// ClientOptions tune the trade feed client.
type ClientOptions struct {
	BaseURL    string
	Timeout    time.Duration
	QuoteAsset string
	Limit      int
}

// Client pulls recent aggregated trades for Alpha pairs over HTTP. The feed
// is pull-only; there is no streaming endpoint on the public surface.
type Client struct {
	http   *resty.Client
	quote  string
	limit  int
	logger zerolog.Logger
}

// NewClient constructs a trade feed client with sane defaults.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.binance.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.QuoteAsset == "" {
		opts.QuoteAsset = "USDT"
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		quote:  opts.QuoteAsset,
		limit:  opts.Limit,
		logger: logger.With().Str("component", "trade_feed").Logger(),
	}
}

// RecentTrades fetches the latest aggregated trades for symbol, most recent
// last. A non-OK response is treated as a quiet market rather than an error
// so one flaky symbol cannot poison a polling batch.
func (c *Client) RecentTrades(ctx context.Context, symbol string) ([]Trade, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol+c.quote).
		SetQueryParam("limit", strconv.Itoa(c.limit)).
		Get(aggTradesPath)
	if err != nil {
		return nil, fmt.Errorf("fetch trades for %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		c.logger.Debug().Str("symbol", symbol).Int("status", resp.StatusCode()).Msg("trade feed returned non-OK, treating as no trades")
		return []Trade{}, nil
	}

	var envelope struct {
		Code string          `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	body := resp.Body()
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
		body = envelope.Data
	}

	var trades []Trade
	if err := json.Unmarshal(body, &trades); err != nil {
		return nil, fmt.Errorf("decode trades for %s: %w", symbol, err)
	}
	return trades, nil
}
