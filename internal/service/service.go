package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"alphawatch/internal/cache"
	"alphawatch/internal/model"
	"alphawatch/internal/source"
	"alphawatch/internal/storage"
)

const allTokensCacheKey = "alpha:tokens:all"

// Source tags for results that were not served by a live adapter.
const (
	SourceCache      = "CACHE"
	SourceStaleCache = "CACHE_STALE"
)

// ErrAllSourcesFailed is surfaced when every adapter failed and no cache
// entry exists at all.
var ErrAllSourcesFailed = errors.New("service: all data sources failed")

// TokenResult is the uniform response shape handed to dashboard-facing
// callers: always a success flag plus the source that served the data, never
// a bare error.
type TokenResult struct {
	Success   bool
	Source    string
	Tokens    []model.Token
	Total     int
	Error     string
	FetchedAt time.Time
}

// SyncResult aggregates the outcome of one diff-based database sync.
type SyncResult struct {
	Created   int
	Updated   int
	Unchanged int
	Errors    int
	Source    string
	Duration  time.Duration
	Timestamp time.Time
}

// Service orchestrates the data sources with priority failover, owns the
// token cache, and performs diff-based synchronization into storage.
type Service struct {
	sources    []source.Source
	cache      *cache.Cache[[]model.Token]
	tokenStore storage.TokenStore
	syncLogs   storage.SyncLogStore
	logger     zerolog.Logger
	now        func() time.Time

	listenerMu sync.RWMutex
	listeners  []Listener
}

// New constructs the aggregation service. Sources are tried ascending by
// priority; the token store and sync log store may be nil when persistence
// is disabled.
func New(sources []source.Source, tokenCache *cache.Cache[[]model.Token], tokenStore storage.TokenStore, syncLogs storage.SyncLogStore, logger zerolog.Logger) *Service {
	return &Service{
		sources:    source.ByPriority(sources),
		cache:      tokenCache,
		tokenStore: tokenStore,
		syncLogs:   syncLogs,
		logger:     logger.With().Str("component", "alpha_service").Logger(),
		now:        time.Now,
	}
}

// GetTokens returns the current token listing, serving from cache unless
// forceRefresh is set. On total source failure any cached entry, however
// stale, is served as a last resort; the result is only unsuccessful when
// no cache exists at all.
func (s *Service) GetTokens(ctx context.Context, forceRefresh bool) TokenResult {
	if !forceRefresh {
		if tokens, ok := s.cache.Get(allTokensCacheKey); ok {
			s.emit(Event{Type: EventCacheHit, Source: SourceCache})
			return TokenResult{Success: true, Source: SourceCache, Tokens: tokens, Total: len(tokens), FetchedAt: s.now()}
		}
		s.emit(Event{Type: EventCacheMiss})
	}

	var lastErr error
	for _, src := range s.sources {
		if !src.IsAvailable(ctx) {
			s.logger.Debug().Str("source", src.Name()).Msg("source unavailable, trying next")
			continue
		}

		tokens, err := src.FetchTokens(ctx)
		if err != nil {
			lastErr = err
			if errors.Is(err, source.ErrTimeout) {
				s.logger.Warn().Str("source", src.Name()).Err(err).Msg("source timed out, trying next")
			} else {
				s.logger.Warn().Str("source", src.Name()).Err(err).Msg("source fetch failed, trying next")
			}
			continue
		}
		if len(tokens) == 0 {
			lastErr = fmt.Errorf("source %s returned no tokens", src.Name())
			continue
		}

		s.cache.Set(allTokensCacheKey, tokens, src.Name())
		return TokenResult{Success: true, Source: src.Name(), Tokens: tokens, Total: len(tokens), FetchedAt: s.now()}
	}

	if entry, ok := s.cache.Peek(allTokensCacheKey); ok {
		s.logger.Warn().Err(lastErr).Str("cached_source", entry.Source).Msg("all sources failed, serving stale cache")
		result := TokenResult{Success: true, Source: SourceStaleCache, Tokens: entry.Value, Total: len(entry.Value), FetchedAt: entry.WrittenAt}
		if lastErr != nil {
			result.Error = lastErr.Error()
		}
		return result
	}

	if lastErr == nil {
		lastErr = ErrAllSourcesFailed
	}
	s.logger.Error().Err(lastErr).Msg("all sources failed and cache is empty")
	return TokenResult{Success: false, Error: lastErr.Error(), FetchedAt: s.now()}
}

// GetTokensByStatus filters the current listing by lifecycle status.
func (s *Service) GetTokensByStatus(ctx context.Context, status model.TokenStatus) TokenResult {
	result := s.GetTokens(ctx, false)
	if !result.Success {
		return result
	}

	filtered := make([]model.Token, 0)
	for _, token := range result.Tokens {
		if token.Status == status {
			filtered = append(filtered, token)
		}
	}
	result.Tokens = filtered
	result.Total = len(filtered)
	return result
}

// GetActiveAirdrops returns tokens with a live airdrop campaign.
func (s *Service) GetActiveAirdrops(ctx context.Context) TokenResult {
	result := s.GetTokens(ctx, false)
	if !result.Success {
		return result
	}

	filtered := make([]model.Token, 0)
	for _, token := range result.Tokens {
		if token.OnlineAirdrop && token.Status != model.StatusEnded && token.Status != model.StatusCancelled {
			filtered = append(filtered, token)
		}
	}
	result.Tokens = filtered
	result.Total = len(filtered)
	return result
}

// GetUpcomingTGE returns pending TGE tokens ordered by listing time.
func (s *Service) GetUpcomingTGE(ctx context.Context) TokenResult {
	result := s.GetTokens(ctx, false)
	if !result.Success {
		return result
	}

	filtered := make([]model.Token, 0)
	for _, token := range result.Tokens {
		if (token.Type == model.TypeTGE || token.Type == model.TypePreTGE) && token.Status == model.StatusUpcoming {
			filtered = append(filtered, token)
		}
	}
	sortTokens(filtered, SortByListingTime, false)
	result.Tokens = filtered
	result.Total = len(filtered)
	return result
}

// GetFilteredTokens applies the full filter/sort/paginate pipeline in
// memory. Filtering never bypasses the fetch/cache path.
func (s *Service) GetFilteredTokens(ctx context.Context, opts FilterOptions) TokenResult {
	result := s.GetTokens(ctx, false)
	if !result.Success {
		return result
	}

	filtered := applyFilters(result.Tokens, opts)
	sortTokens(filtered, opts.SortBy, opts.SortDesc)

	result.Total = len(filtered)
	result.Tokens = paginate(filtered, opts.Offset, opts.Limit)
	return result
}

// CacheStats exposes token cache occupancy for the dashboard API.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// SyncToDatabase forces a fresh fetch and upserts each token with
// change detection: only records whose whitelisted fields differ are
// written, so repeated syncs with unchanged upstream data are no-ops.
// Per-token failures are counted and never abort the batch.
func (s *Service) SyncToDatabase(ctx context.Context) (SyncResult, error) {
	if s.tokenStore == nil {
		return SyncResult{}, storage.ErrNotConfigured
	}

	start := s.now()
	s.emit(Event{Type: EventSyncStart})

	fetched := s.GetTokens(ctx, true)
	if !fetched.Success {
		err := fmt.Errorf("sync aborted: %s", fetched.Error)
		s.emit(Event{Type: EventSyncError, Err: err})
		return SyncResult{}, err
	}

	result := SyncResult{Source: fetched.Source, Timestamp: start}
	for _, token := range fetched.Tokens {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		record := toTokenRecord(token)
		existing, err := s.tokenStore.GetTokenBySymbol(ctx, token.Symbol)
		if err != nil {
			result.Errors++
			s.logger.Error().Err(err).Str("symbol", token.Symbol).Msg("sync lookup failed")
			continue
		}

		switch {
		case existing == nil:
			if err := s.tokenStore.UpsertToken(ctx, record); err != nil {
				result.Errors++
				s.logger.Error().Err(err).Str("symbol", token.Symbol).Msg("sync insert failed")
				continue
			}
			result.Created++
			s.emit(Event{Type: EventTokenNew, Symbol: token.Symbol, Source: fetched.Source})
		case tokenChanged(*existing, record):
			if err := s.tokenStore.UpsertToken(ctx, record); err != nil {
				result.Errors++
				s.logger.Error().Err(err).Str("symbol", token.Symbol).Msg("sync update failed")
				continue
			}
			result.Updated++
			s.emit(Event{Type: EventTokenUpdated, Symbol: token.Symbol, Source: fetched.Source})
		default:
			result.Unchanged++
		}
	}

	result.Duration = s.now().Sub(start)

	if s.syncLogs != nil {
		logErr := s.syncLogs.InsertSyncLog(ctx, storage.SyncLogRecord{
			Kind:      "tokens",
			Source:    result.Source,
			Created:   result.Created,
			Updated:   result.Updated,
			Unchanged: result.Unchanged,
			Errors:    result.Errors,
			Duration:  result.Duration,
			RanAt:     start,
		})
		if logErr != nil {
			s.logger.Error().Err(logErr).Msg("failed to record sync log")
		}
	}

	s.emit(Event{Type: EventSyncComplete, Source: result.Source})
	s.logger.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("errors", result.Errors).
		Dur("duration", result.Duration).
		Msg("token sync complete")

	return result, nil
}

func toTokenRecord(token model.Token) storage.TokenRecord {
	return storage.TokenRecord{
		Symbol:          token.Symbol,
		Name:            token.Name,
		Chain:           token.ChainID,
		ContractAddress: token.ContractAddress,
		Status:          string(token.Status),
		Type:            string(token.Type),
		EstimatedValue:  token.EstimatedValue,
		RequiredPoints:  token.RequiredPoints,
		DeductPoints:    token.DeductPoints,
		Multiplier:      token.Multiplier,
		Score:           token.Score,
		Source:          token.Source,
		ListingTime:     token.ListingTime,
	}
}

// tokenChanged compares the fixed whitelist of monitored fields. Anything
// outside the whitelist (price ticks, volume, holders) deliberately does not
// trigger a write.
func tokenChanged(existing storage.TokenRecord, next storage.TokenRecord) bool {
	if existing.Name != next.Name {
		return true
	}
	if existing.Chain != next.Chain {
		return true
	}
	if existing.Status != next.Status {
		return true
	}
	if existing.Type != next.Type {
		return true
	}
	if !existing.EstimatedValue.Equal(next.EstimatedValue) {
		return true
	}
	if existing.RequiredPoints != next.RequiredPoints {
		return true
	}
	if existing.DeductPoints != next.DeductPoints {
		return true
	}
	return false
}
