package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"alphawatch/internal/model"
)

const (
	alpha123SourceName = "alpha123"
	alpha123DataPath   = "/api/airdrops"
)

// Alpha123Options parameterise the community fallback fetcher. The day
// windows are policy defaults carried from upstream, not protocol
// guarantees, so they stay configurable.
type Alpha123Options struct {
	BaseURL       string
	Timeout       time.Duration
	HealthTimeout time.Duration
	UpcomingDays  int
	GraceDays     int
	Priority      int
}

// Alpha123 is the community fallback source. Its response shape is loose
// (bare array or {data: [...]}) and unexpected shapes degrade to an empty
// result rather than an error.
type Alpha123 struct {
	opts   Alpha123Options
	logger zerolog.Logger
	client *resty.Client
	now    func() time.Time
}

// NewAlpha123 constructs the community fallback source.
func NewAlpha123(opts Alpha123Options, logger zerolog.Logger) *Alpha123 {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 3 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://alpha123.uk"
	}
	if opts.UpcomingDays <= 0 {
		opts.UpcomingDays = 7
	}
	if opts.GraceDays <= 0 {
		opts.GraceDays = 7
	}
	if opts.Priority <= 0 {
		opts.Priority = 2
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &Alpha123{
		opts:   opts,
		logger: logger.With().Str("component", "source_alpha123").Logger(),
		client: client,
		now:    time.Now,
	}
}

// Name identifies the source in cache tags and sync logs.
func (a *Alpha123) Name() string { return alpha123SourceName }

// Priority orders the source within the failover chain.
func (a *Alpha123) Priority() int { return a.opts.Priority }

// IsAvailable probes the data endpoint with a short deadline.
func (a *Alpha123) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, a.opts.HealthTimeout)
	defer cancel()

	resp, err := a.client.R().SetContext(ctx).Head(alpha123DataPath)
	if err != nil {
		a.logger.Debug().Err(asTimeout(err)).Msg("health probe failed")
		return false
	}
	return resp.StatusCode() < 500
}

// FetchTokens retrieves the community airdrop list with a freshness query
// parameter and normalizes it to the canonical record.
func (a *Alpha123) FetchTokens(ctx context.Context) ([]model.Token, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("fresh", "1").
		Get(alpha123DataPath)
	if err != nil {
		return nil, asTimeout(fmt.Errorf("fetch alpha123 airdrops: %w", err))
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("alpha123 returned status %d", resp.StatusCode())
	}

	entries := decodeAlpha123(resp.Body())
	now := a.now().UTC()

	tokens := make([]model.Token, 0, len(entries))
	for _, raw := range entries {
		if strings.TrimSpace(raw.Token) == "" {
			continue
		}
		tokens = append(tokens, a.transform(raw, now))
	}

	a.logger.Debug().Int("tokens", len(tokens)).Msg("fetched alpha123 airdrops")
	return tokens, nil
}

// FetchToken looks a single symbol up in the community list.
func (a *Alpha123) FetchToken(ctx context.Context, symbol string) (model.Token, error) {
	tokens, err := a.FetchTokens(ctx)
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

type alpha123Entry struct {
	Token    string      `json:"token"`
	Name     string      `json:"name"`
	Date     string      `json:"date"`
	Time     string      `json:"time"`
	Points   json.Number `json:"points"`
	Deduct   json.Number `json:"deduct"`
	Amount   json.Number `json:"amount"`
	Price    json.Number `json:"price"`
	Chain    string      `json:"chain"`
	Contract string      `json:"contract_address"`
	Type     string      `json:"type"`
	Phase    int         `json:"phase"`
}

// decodeAlpha123 accepts either a bare array or a {data: [...]} wrapper.
// Anything else yields an empty slice; the fallback degrades gracefully
// instead of failing like the primary source does.
func decodeAlpha123(body []byte) []alpha123Entry {
	var bare []alpha123Entry
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare
	}

	var wrapped struct {
		Data []alpha123Entry `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data
	}
	return nil
}

func (a *Alpha123) transform(raw alpha123Entry, now time.Time) model.Token {
	chain := NormalizeChain(raw.Chain)
	claimAt := parseClaimTime(raw.Date, raw.Time)

	price := parseDecimal(raw.Price.String())
	amount := parseDecimal(raw.Amount.String())

	token := model.Token{
		Symbol:          strings.ToUpper(strings.TrimSpace(raw.Token)),
		Name:            raw.Name,
		ChainID:         chain,
		ContractAddress: NormalizeContract(chain, raw.Contract),
		Price:           price,
		Amount:          amount,
		EstimatedValue:  price.Mul(amount),
		RequiredPoints:  int(parseInt(raw.Points.String())),
		DeductPoints:    int(parseInt(raw.Deduct.String())),
		Multiplier:      1,
		OnlineAirdrop:   !strings.EqualFold(raw.Type, "tge"),
		OnlineTGE:       strings.EqualFold(raw.Type, "tge"),
		ListingTime:     claimAt,
		Source:          alpha123SourceName,
		LastUpdate:      now,
	}
	if token.Name == "" {
		token.Name = token.Symbol
	}
	token.Status = a.deriveStatus(claimAt, now)
	if token.OnlineTGE {
		token.Type = model.TypeTGE
		if claimAt != nil && claimAt.After(now) {
			token.Type = model.TypePreTGE
		}
	} else {
		token.Type = model.TypeAirdrop
	}
	return token
}

// deriveStatus buckets purely on the claim date: far future is upcoming,
// near future is the snapshot-eligible window, recently past is claimable,
// and anything older has ended. The day boundaries come from options.
func (a *Alpha123) deriveStatus(claimAt *time.Time, now time.Time) model.TokenStatus {
	if claimAt == nil {
		return model.StatusUpcoming
	}

	until := claimAt.Sub(now)
	upcoming := time.Duration(a.opts.UpcomingDays) * 24 * time.Hour
	grace := time.Duration(a.opts.GraceDays) * 24 * time.Hour

	switch {
	case until > upcoming:
		return model.StatusUpcoming
	case until > 0:
		return model.StatusSnapshot
	case until > -grace:
		return model.StatusClaimable
	default:
		return model.StatusEnded
	}
}

// parseClaimTime combines the separate date and time strings the community
// site publishes. A missing or malformed date yields nil; a missing time
// defaults to midnight UTC.
func parseClaimTime(date, clock string) *time.Time {
	date = strings.TrimSpace(date)
	if date == "" {
		return nil
	}

	clock = strings.TrimSpace(clock)
	if clock == "" {
		clock = "00:00"
	}

	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if parsed, err := time.ParseInLocation(layout, date+" "+clock, time.UTC); err == nil {
			return &parsed
		}
	}
	if parsed, err := time.ParseInLocation("2006-01-02", date, time.UTC); err == nil {
		return &parsed
	}
	return nil
}

var _ Source = (*Alpha123)(nil)
