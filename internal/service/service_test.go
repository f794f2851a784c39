package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphawatch/internal/cache"
	"alphawatch/internal/model"
	"alphawatch/internal/source"
	"alphawatch/internal/storage"
)

type fakeSource struct {
	name      string
	priority  int
	available bool
	tokens    []model.Token
	err       error
	fetches   int
}

func (f *fakeSource) Name() string                           { return f.name }
func (f *fakeSource) Priority() int                          { return f.priority }
func (f *fakeSource) IsAvailable(ctx context.Context) bool   { return f.available }
func (f *fakeSource) FetchTokens(ctx context.Context) ([]model.Token, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return f.tokens, nil
}
func (f *fakeSource) FetchToken(ctx context.Context, symbol string) (model.Token, error) {
	return model.Token{}, source.ErrTokenNotFound
}

type fakeTokenStore struct {
	records map[string]storage.TokenRecord
	failOn  map[string]bool
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{records: make(map[string]storage.TokenRecord), failOn: make(map[string]bool)}
}

func (f *fakeTokenStore) UpsertToken(ctx context.Context, record storage.TokenRecord) error {
	if f.failOn[record.Symbol] {
		return errors.New("simulated write failure")
	}
	f.records[record.Symbol] = record
	return nil
}

func (f *fakeTokenStore) GetTokenBySymbol(ctx context.Context, symbol string) (*storage.TokenRecord, error) {
	record, ok := f.records[symbol]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (f *fakeTokenStore) ListTokens(ctx context.Context, limit int) ([]storage.TokenRecord, error) {
	out := make([]storage.TokenRecord, 0, len(f.records))
	for _, record := range f.records {
		out = append(out, record)
	}
	return out, nil
}

func (f *fakeTokenStore) CountTokensByStatus(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, record := range f.records {
		counts[record.Status]++
	}
	return counts, nil
}

type fakeSyncLogStore struct {
	logs []storage.SyncLogRecord
}

func (f *fakeSyncLogStore) InsertSyncLog(ctx context.Context, record storage.SyncLogRecord) error {
	f.logs = append(f.logs, record)
	return nil
}

func (f *fakeSyncLogStore) ListSyncLogsBetween(ctx context.Context, from, to time.Time) ([]storage.SyncLogRecord, error) {
	return f.logs, nil
}

func (f *fakeSyncLogStore) ListRecentSyncLogs(ctx context.Context, limit int) ([]storage.SyncLogRecord, error) {
	return f.logs, nil
}

func token(symbol string, mutate ...func(*model.Token)) model.Token {
	t := model.Token{
		Symbol:         symbol,
		Name:           symbol + " Token",
		ChainID:        "BSC",
		Status:         model.StatusClaimable,
		Type:           model.TypeAirdrop,
		Price:          decimal.NewFromInt(1),
		Score:          decimal.NewFromInt(50),
		EstimatedValue: decimal.NewFromInt(1),
		Multiplier:     1,
		OnlineAirdrop:  true,
		LastUpdate:     time.Now(),
	}
	for _, m := range mutate {
		m(&t)
	}
	return t
}

func newTestService(sources []source.Source, store storage.TokenStore, logs storage.SyncLogStore) *Service {
	tokenCache := cache.New[[]model.Token](cache.Options{TTL: time.Minute, StaleWhileRevalidate: true})
	return New(sources, tokenCache, store, logs, zerolog.Nop())
}

func TestFailoverOrder(t *testing.T) {
	primary := &fakeSource{name: "primary", priority: 1, available: false}
	fallback := &fakeSource{name: "fallback", priority: 2, available: true, tokens: []model.Token{token("FOO")}}

	svc := newTestService([]source.Source{fallback, primary}, nil, nil)
	result := svc.GetTokens(context.Background(), false)

	require.True(t, result.Success)
	assert.Equal(t, "fallback", result.Source, "unavailable primary must be skipped")
	assert.Zero(t, primary.fetches, "unavailable source must not be fetched")
}

func TestFetchFailureFallsThrough(t *testing.T) {
	primary := &fakeSource{name: "primary", priority: 1, available: true, err: errors.New("boom")}
	fallback := &fakeSource{name: "fallback", priority: 2, available: true, tokens: []model.Token{token("FOO")}}

	svc := newTestService([]source.Source{primary, fallback}, nil, nil)
	result := svc.GetTokens(context.Background(), false)

	require.True(t, result.Success)
	assert.Equal(t, "fallback", result.Source)
}

func TestEmptyFetchFallsThrough(t *testing.T) {
	primary := &fakeSource{name: "primary", priority: 1, available: true, tokens: nil}
	fallback := &fakeSource{name: "fallback", priority: 2, available: true, tokens: []model.Token{token("FOO")}}

	svc := newTestService([]source.Source{primary, fallback}, nil, nil)
	result := svc.GetTokens(context.Background(), false)

	require.True(t, result.Success)
	assert.Equal(t, "fallback", result.Source, "zero tokens counts as a failed source")
}

func TestCacheHitTaggedAsCache(t *testing.T) {
	src := &fakeSource{name: "primary", priority: 1, available: true, tokens: []model.Token{token("FOO")}}

	svc := newTestService([]source.Source{src}, nil, nil)

	first := svc.GetTokens(context.Background(), false)
	require.Equal(t, "primary", first.Source)

	second := svc.GetTokens(context.Background(), false)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, 1, src.fetches, "second call must be served from cache")
}

func TestStaleCacheServedWhenAllSourcesFail(t *testing.T) {
	src := &fakeSource{name: "primary", priority: 1, available: true, tokens: []model.Token{token("FOO")}}

	svc := newTestService([]source.Source{src}, nil, nil)
	require.True(t, svc.GetTokens(context.Background(), true).Success)

	src.err = errors.New("upstream down")
	result := svc.GetTokens(context.Background(), true)

	require.True(t, result.Success, "cached data must be served on total source failure")
	assert.Equal(t, SourceStaleCache, result.Source)
	assert.Len(t, result.Tokens, 1)
	assert.Contains(t, result.Error, "upstream down")
}

func TestStructuredFailureWhenNoCache(t *testing.T) {
	src := &fakeSource{name: "primary", priority: 1, available: true, err: errors.New("upstream down")}

	svc := newTestService([]source.Source{src}, nil, nil)
	result := svc.GetTokens(context.Background(), false)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, result.Tokens)
}

func TestSyncDiffIdempotence(t *testing.T) {
	src := &fakeSource{name: "primary", priority: 1, available: true, tokens: []model.Token{token("FOO"), token("BAR")}}
	store := newFakeTokenStore()
	logs := &fakeSyncLogStore{}

	svc := newTestService([]source.Source{src}, store, logs)

	first, err := svc.SyncToDatabase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 0, first.Updated)

	second, err := svc.SyncToDatabase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated, "no upstream change means no writes")
	assert.Equal(t, 2, second.Unchanged)

	// a non-whitelisted field change must not count as an update
	src.tokens = []model.Token{
		token("FOO", func(t *model.Token) { t.Volume24h = decimal.NewFromInt(999) }),
		token("BAR"),
	}
	third, err := svc.SyncToDatabase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, third.Updated)
	assert.Equal(t, 2, third.Unchanged)

	// a whitelisted field change does
	src.tokens = []model.Token{
		token("FOO", func(t *model.Token) { t.Status = model.StatusEnded }),
		token("BAR"),
	}
	fourth, err := svc.SyncToDatabase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fourth.Updated)
	assert.Equal(t, 1, fourth.Unchanged)

	assert.Len(t, logs.logs, 4, "every sync records a sync log entry")
}

func TestSyncPerTokenErrorsDoNotAbort(t *testing.T) {
	src := &fakeSource{name: "primary", priority: 1, available: true, tokens: []model.Token{token("FOO"), token("BAD"), token("BAR")}}
	store := newFakeTokenStore()
	store.failOn["BAD"] = true

	svc := newTestService([]source.Source{src}, store, nil)
	result, err := svc.SyncToDatabase(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 2, result.Created)
}

func TestEventsEmitted(t *testing.T) {
	src := &fakeSource{name: "primary", priority: 1, available: true, tokens: []model.Token{token("FOO")}}
	store := newFakeTokenStore()

	svc := newTestService([]source.Source{src}, store, nil)

	var events []EventType
	svc.Subscribe(func(e Event) { events = append(events, e.Type) })
	svc.Subscribe(func(e Event) { panic("listener bug") })

	_, err := svc.SyncToDatabase(context.Background())
	require.NoError(t, err, "panicking listener must not fail the sync")

	assert.Contains(t, events, EventSyncStart)
	assert.Contains(t, events, EventTokenNew)
	assert.Contains(t, events, EventSyncComplete)
}

func TestGetFilteredTokens(t *testing.T) {
	future := time.Now().Add(48 * time.Hour)
	universe := []model.Token{
		token("AAA", func(t *model.Token) { t.Score = decimal.NewFromInt(30); t.Multiplier = 2 }),
		token("BBB", func(t *model.Token) {
			t.Status = model.StatusUpcoming
			t.Type = model.TypeTGE
			t.ChainID = "SOL"
			t.Score = decimal.NewFromInt(80)
			t.ListingTime = &future
		}),
		token("CCC", func(t *model.Token) { t.Name = "Super Cat Coin"; t.Score = decimal.NewFromInt(60) }),
	}
	src := &fakeSource{name: "primary", priority: 1, available: true, tokens: universe}
	svc := newTestService([]source.Source{src}, nil, nil)
	ctx := context.Background()

	byStatus := svc.GetFilteredTokens(ctx, FilterOptions{Statuses: []model.TokenStatus{model.StatusUpcoming}})
	require.Len(t, byStatus.Tokens, 1)
	assert.Equal(t, "BBB", byStatus.Tokens[0].Symbol)

	byChain := svc.GetFilteredTokens(ctx, FilterOptions{Chains: []string{"sol", "eth"}})
	require.Len(t, byChain.Tokens, 1, "chain match is case-insensitive and multi-valued")

	minScore := decimal.NewFromInt(50)
	byScore := svc.GetFilteredTokens(ctx, FilterOptions{MinScore: &minScore})
	assert.Len(t, byScore.Tokens, 2)

	mult := 2
	byMult := svc.GetFilteredTokens(ctx, FilterOptions{Multiplier: &mult})
	require.Len(t, byMult.Tokens, 1)
	assert.Equal(t, "AAA", byMult.Tokens[0].Symbol)

	bySearch := svc.GetFilteredTokens(ctx, FilterOptions{Search: "cat"})
	require.Len(t, bySearch.Tokens, 1, "search spans symbol and name")
	assert.Equal(t, "CCC", bySearch.Tokens[0].Symbol)

	sorted := svc.GetFilteredTokens(ctx, FilterOptions{SortBy: SortByScore, SortDesc: true})
	require.Len(t, sorted.Tokens, 3)
	assert.Equal(t, "BBB", sorted.Tokens[0].Symbol)

	paged := svc.GetFilteredTokens(ctx, FilterOptions{SortBy: SortBySymbol, Offset: 1, Limit: 1})
	require.Len(t, paged.Tokens, 1)
	assert.Equal(t, "BBB", paged.Tokens[0].Symbol)
	assert.Equal(t, 3, paged.Total, "total reflects the filtered set before pagination")
}

func TestSortListingTimeNullsLast(t *testing.T) {
	early := time.Now().Add(time.Hour)
	late := time.Now().Add(10 * time.Hour)
	tokens := []model.Token{
		token("NONE"),
		token("LATE", func(t *model.Token) { t.ListingTime = &late }),
		token("EARLY", func(t *model.Token) { t.ListingTime = &early }),
	}

	sortTokens(tokens, SortByListingTime, false)
	assert.Equal(t, []string{"EARLY", "LATE", "NONE"}, symbols(tokens))

	tokens = []model.Token{
		token("NONE"),
		token("LATE", func(t *model.Token) { t.ListingTime = &late }),
		token("EARLY", func(t *model.Token) { t.ListingTime = &early }),
	}
	sortTokens(tokens, SortByListingTime, true)
	assert.Equal(t, []string{"LATE", "EARLY", "NONE"}, symbols(tokens), "nulls sort last regardless of direction")
}

func symbols(tokens []model.Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Symbol
	}
	return out
}
