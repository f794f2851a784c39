package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alphawatch/internal/model"
)

const (
	binanceSourceName  = "binance-alpha"
	binanceSuccessCode = "000000"
	binanceListPath    = "/bapi/defi/v1/public/alpha-trade/token/list"
)

// BinanceOptions parameterise the official Alpha listing fetcher.
type BinanceOptions struct {
	BaseURL       string
	Timeout       time.Duration
	HealthTimeout time.Duration
	UserAgent     string
	Priority      int
}

// Binance is the primary data source: the official exchange Alpha token
// listing behind a strict {code, message, data} envelope.
type Binance struct {
	opts   BinanceOptions
	logger zerolog.Logger
	client *resty.Client
	now    func() time.Time
}

// NewBinance constructs the official listing source.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 3 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.binance.com"
	}
	if opts.Priority <= 0 {
		opts.Priority = 1
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		client.SetHeader("User-Agent", ua)
	}

	return &Binance{
		opts:   opts,
		logger: logger.With().Str("component", "source_binance").Logger(),
		client: client,
		now:    time.Now,
	}
}

// Name identifies the source in cache tags and sync logs.
func (b *Binance) Name() string { return binanceSourceName }

// Priority orders the source within the failover chain.
func (b *Binance) Priority() int { return b.opts.Priority }

// IsAvailable probes the listing endpoint with a short deadline. It never
// returns an error; any failure reads as unavailable.
func (b *Binance) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, b.opts.HealthTimeout)
	defer cancel()

	resp, err := b.client.R().SetContext(ctx).Head(binanceListPath)
	if err != nil {
		b.logger.Debug().Err(asTimeout(err)).Msg("health probe failed")
		return false
	}
	return resp.StatusCode() < 500
}

// FetchTokens retrieves and normalizes the full Alpha listing.
func (b *Binance) FetchTokens(ctx context.Context) ([]model.Token, error) {
	resp, err := b.client.R().SetContext(ctx).Get(binanceListPath)
	if err != nil {
		return nil, asTimeout(fmt.Errorf("fetch alpha token list: %w", err))
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("alpha token list returned status %d", resp.StatusCode())
	}

	var envelope binanceEnvelope
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, fmt.Errorf("decode alpha token list: %w", err)
	}
	if envelope.Code != binanceSuccessCode {
		return nil, fmt.Errorf("alpha token list code %q: %s", envelope.Code, envelope.Message)
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("alpha token list missing data array")
	}

	now := b.now().UTC()
	tokens := make([]model.Token, 0, len(envelope.Data))
	for _, raw := range envelope.Data {
		tokens = append(tokens, b.transform(raw, now))
	}

	b.logger.Debug().Int("tokens", len(tokens)).Msg("fetched alpha token list")
	return tokens, nil
}

// FetchToken looks a single symbol up in the flat listing.
func (b *Binance) FetchToken(ctx context.Context, symbol string) (model.Token, error) {
	tokens, err := b.FetchTokens(ctx)
	if err != nil {
		return model.Token{}, err
	}
	for _, token := range tokens {
		if strings.EqualFold(token.Symbol, symbol) {
			return token, nil
		}
	}
	return model.Token{}, fmt.Errorf("%w: %s", ErrTokenNotFound, symbol)
}

type binanceEnvelope struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    []binanceToken `json:"data"`
}

type binanceToken struct {
	AlphaID         string      `json:"alphaId"`
	Symbol          string      `json:"symbol"`
	Name            string      `json:"name"`
	ChainID         string      `json:"chainId"`
	ChainName       string      `json:"chainName"`
	ContractAddress string      `json:"contractAddress"`
	Price           string      `json:"price"`
	PercentChange   string      `json:"percentChange24h"`
	Volume24h       string      `json:"volume24h"`
	MarketCap       string      `json:"marketCap"`
	Liquidity       string      `json:"liquidity"`
	Holders         string      `json:"holders"`
	Score           json.Number `json:"score"`
	MulPoint        int         `json:"mulPoint"`
	OnlineTGE       bool        `json:"onlineTge"`
	OnlineAirdrop   bool        `json:"onlineAirdrop"`
	ListingTime     int64       `json:"listingTime"`
	Offline         bool        `json:"offline"`
	Offsell         bool        `json:"offsell"`
}

func (b *Binance) transform(raw binanceToken, now time.Time) model.Token {
	price := parseDecimal(raw.Price)

	var listing *time.Time
	if raw.ListingTime > 0 {
		t := time.UnixMilli(raw.ListingTime).UTC()
		listing = &t
	}

	chain := NormalizeChain(raw.ChainName)
	if chain == "" {
		chain = NormalizeChain(raw.ChainID)
	}

	multiplier := raw.MulPoint
	if multiplier <= 0 {
		multiplier = 1
	}

	return model.Token{
		Symbol:           raw.Symbol,
		AlphaID:          raw.AlphaID,
		Name:             raw.Name,
		ChainID:          chain,
		ContractAddress:  NormalizeContract(chain, raw.ContractAddress),
		Price:            price,
		PercentChange24h: parseDecimal(raw.PercentChange),
		Volume24h:        parseDecimal(raw.Volume24h),
		MarketCap:        parseDecimal(raw.MarketCap),
		Liquidity:        parseDecimal(raw.Liquidity),
		Holders:          parseInt(raw.Holders),
		Score:            parseDecimal(raw.Score.String()),
		EstimatedValue:   price,
		Multiplier:       multiplier,
		OnlineTGE:        raw.OnlineTGE,
		OnlineAirdrop:    raw.OnlineAirdrop,
		ListingTime:      listing,
		Type:             deriveBinanceType(raw, now),
		Status:           deriveBinanceStatus(raw, now),
		Source:           binanceSourceName,
		LastUpdate:       now,
	}
}

// deriveBinanceStatus applies the offline/airdrop priority order: delisted
// beats everything, an active airdrop flag means claimable regardless of
// listing time, and everything else (including unreached listing times) is
// upcoming.
func deriveBinanceStatus(raw binanceToken, now time.Time) model.TokenStatus {
	if raw.Offline || raw.Offsell {
		return model.StatusEnded
	}
	if raw.OnlineAirdrop {
		return model.StatusClaimable
	}
	return model.StatusUpcoming
}

func deriveBinanceType(raw binanceToken, now time.Time) model.TokenType {
	if raw.OnlineTGE {
		if raw.ListingTime > 0 && time.UnixMilli(raw.ListingTime).After(now) {
			return model.TypePreTGE
		}
		return model.TypeTGE
	}
	return model.TypeAirdrop
}

// parseDecimal parses numeric string fields defensively: anything that does
// not parse becomes zero rather than failing the whole listing.
func parseDecimal(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return value
}

func parseInt(raw string) int64 {
	value := parseDecimal(raw)
	return value.IntPart()
}

var _ Source = (*Binance)(nil)
