package stability

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"alphawatch/internal/cache"
	"alphawatch/internal/model"
	"alphawatch/internal/service"
	"alphawatch/internal/source"
)

type stubSource struct {
	tokens []model.Token
}

func (s *stubSource) Name() string                         { return "stub" }
func (s *stubSource) Priority() int                        { return 1 }
func (s *stubSource) IsAvailable(ctx context.Context) bool { return true }
func (s *stubSource) FetchTokens(ctx context.Context) ([]model.Token, error) {
	return s.tokens, nil
}
func (s *stubSource) FetchToken(ctx context.Context, symbol string) (model.Token, error) {
	return model.Token{}, source.ErrTokenNotFound
}

func TestResolveUniverse(t *testing.T) {
	tokens := []model.Token{
		{Symbol: "aaa", Multiplier: 2, OnlineAirdrop: true, Status: model.StatusClaimable},
		{Symbol: "BBB", Multiplier: 1, OnlineAirdrop: true, Status: model.StatusClaimable},
		{Symbol: "CCC", Multiplier: 3, Status: model.StatusEnded},
	}
	tokenCache := cache.New[[]model.Token](cache.Options{TTL: time.Minute})
	alpha := service.New([]source.Source{&stubSource{tokens: tokens}}, tokenCache, nil, nil, zerolog.Nop())

	monitor := NewMonitor(MonitorOptions{
		Alpha:          alpha,
		Logger:         zerolog.Nop(),
		MultiplierTier: 2,
		ExtraSymbols:   []string{"koge", " ", "AAA"},
	})

	universe := monitor.resolveUniverse(context.Background())

	assert.Equal(t, []string{"AAA", "KOGE"}, universe,
		"universe is the high-multiplier active tokens plus extras, deduplicated and sorted")
}

func TestMonitorSnapshotRoundTrip(t *testing.T) {
	monitor := NewMonitor(MonitorOptions{Logger: zerolog.Nop()})

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	monitor.snapshots.Store("FOO", Assessment{Symbol: "FOO", Status: StatusStable, EvaluatedAt: now})

	got, ok := monitor.Snapshot("foo")
	assert.True(t, ok, "snapshot lookup is case-insensitive")
	assert.Equal(t, StatusStable, got.Status)

	all := monitor.Snapshots()
	assert.Len(t, all, 1)
}

func TestConnectionCallbacksFireOnTransitionsOnly(t *testing.T) {
	monitor := NewMonitor(MonitorOptions{Logger: zerolog.Nop()})

	var states []bool
	monitor.SubscribeConnection(func(connected bool) { states = append(states, connected) })

	monitor.setConnected(true)
	monitor.setConnected(true)
	monitor.setConnected(false)

	assert.Equal(t, []bool{true, false}, states, "repeated states must not re-fire")
	assert.False(t, monitor.Connected())
}

func TestMonitorSubscribers(t *testing.T) {
	monitor := NewMonitor(MonitorOptions{Logger: zerolog.Nop()})

	var seen []Assessment
	monitor.Subscribe(func(a Assessment) { seen = append(seen, a) })

	monitor.publish(Assessment{Symbol: "FOO", Status: StatusModerate})

	assert.Len(t, seen, 1)
	assert.Equal(t, StatusModerate, seen[0].Status)
}
