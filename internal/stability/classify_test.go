package stability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testThresholds() Thresholds {
	return Thresholds{
		StablePct:      0.01,
		ModeratePct:    0.5,
		SpikePct:       2.0,
		MinTrades:      3,
		NoTradeTimeout: 30 * time.Second,
	}
}

func fillBuffer(prices []float64, base time.Time) *PriceBuffer {
	b := NewPriceBuffer(time.Minute, 200)
	for i, p := range prices {
		b.Append(p, 1, base.Add(time.Duration(i)*time.Second))
	}
	return b
}

func TestClassifyStable(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	b := fillBuffer([]float64{100, 100.001, 99.999, 100}, base)

	a := Classify("FOO", b, testThresholds(), base.Add(5*time.Second))

	assert.Equal(t, StatusStable, a.Status)
	assert.Equal(t, TrendFlat, a.Trend)
	assert.False(t, a.Spike)
	assert.InDelta(t, 0.002, a.RangePct, 0.0005)
}

func TestClassifyIsDeterministic(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	now := base.Add(5 * time.Second)
	b := fillBuffer([]float64{100, 100.001, 99.999, 100}, base)

	first := Classify("FOO", b, testThresholds(), now)
	second := Classify("FOO", b, testThresholds(), now)
	assert.Equal(t, first, second, "same window and clock must yield the same verdict")
}

func TestClassifyModerate(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	b := fillBuffer([]float64{100, 100.1, 99.9, 100.05}, base)

	a := Classify("FOO", b, testThresholds(), base.Add(5*time.Second))

	assert.Equal(t, StatusModerate, a.Status)
	assert.InDelta(t, 0.2, a.RangePct, 0.01)
}

func TestClassifySpikeForcesUnstable(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	// a single +3% jump inside an otherwise narrow window
	b := fillBuffer([]float64{100, 100.05, 103.1, 103.0}, base)

	a := Classify("FOO", b, testThresholds(), base.Add(5*time.Second))

	assert.True(t, a.Spike)
	assert.Equal(t, StatusUnstable, a.Status)
	assert.Equal(t, 100.0, a.Volatility, "spike pins the volatility score at the cap")
}

func TestClassifyTrend(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	now := base.Add(5 * time.Second)

	up := Classify("FOO", fillBuffer([]float64{100, 100.1, 100.2}, base), testThresholds(), now)
	assert.Equal(t, TrendUp, up.Trend)

	down := Classify("FOO", fillBuffer([]float64{100, 99.9, 99.8}, base), testThresholds(), now)
	assert.Equal(t, TrendDown, down.Trend)

	flat := Classify("FOO", fillBuffer([]float64{100, 100.01, 100.02}, base), testThresholds(), now)
	assert.Equal(t, TrendFlat, flat.Trend, "moves under 0.1% carry no direction")
}

func TestClassifyTooFewTrades(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	// recent trades but not enough of them yet
	checking := Classify("FOO", fillBuffer([]float64{100, 100.1}, base), testThresholds(), base.Add(5*time.Second))
	assert.Equal(t, StatusChecking, checking.Status)

	// last trade beyond the no-trade timeout
	stale := Classify("FOO", fillBuffer([]float64{100, 100.1}, base), testThresholds(), base.Add(2*time.Minute))
	assert.Equal(t, StatusNoTrade, stale.Status)

	empty := Classify("FOO", NewPriceBuffer(time.Minute, 10), testThresholds(), base)
	assert.Equal(t, StatusNoTrade, empty.Status)
}

func TestClassifySpreadOverrides(t *testing.T) {
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	now := base.Add(5 * time.Second)
	th := testThresholds()

	// range under the stable threshold cannot coexist with a wide spread,
	// so widen the thresholds instead to isolate the override
	th.StablePct = 10
	th.ModeratePct = 20
	th.SpikePct = 50

	// roughly 650bps of spread on a range that would otherwise classify STABLE
	downgraded := Classify("FOO", fillBuffer([]float64{100, 107, 103, 105}, base), th, now)
	assert.Equal(t, StatusModerate, downgraded.Status, "wide spread downgrades STABLE to MODERATE")

	// roughly 1650bps forces UNSTABLE outright
	forced := Classify("FOO", fillBuffer([]float64{100, 120, 110, 115}, base), th, now)
	assert.Equal(t, StatusUnstable, forced.Status)
}

func TestVolatilityScoreScale(t *testing.T) {
	assert.InDelta(t, 50.0, volatilityScore(0.5, 0.5, false), 0.001, "moderate threshold maps to 50")
	assert.InDelta(t, 10.0, volatilityScore(0.1, 0.5, false), 0.001)
	assert.Equal(t, 100.0, volatilityScore(2.0, 0.5, false), "score is capped at 100")
	assert.InDelta(t, 60.0, volatilityScore(0.1, 0.5, true), 0.001, "a spike adds a flat 50")
}
