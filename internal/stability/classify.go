package stability

import (
	"math"
	"time"
)

// Status is the stability classification of a trading pair.
type Status string

const (
	StatusStable   Status = "STABLE"
	StatusModerate Status = "MODERATE"
	StatusUnstable Status = "UNSTABLE"
	StatusNoTrade  Status = "NO_TRADE"
	StatusChecking Status = "CHECKING"
)

// Trend is the short-window price direction.
type Trend string

const (
	TrendUp   Trend = "UP"
	TrendDown Trend = "DOWN"
	TrendFlat Trend = "FLAT"
)

// trendEpsilonPct is the minimum first-to-last move treated as a direction.
const trendEpsilonPct = 0.1

// Spread sanity bounds in basis points. A wide effective spread downgrades
// an otherwise stable pair; an extreme one forces UNSTABLE outright.
const (
	spreadModerateBps = 500.0
	spreadUnstableBps = 1500.0
)

// Thresholds hold the classification tuning knobs, all in percent of the
// window midpoint price.
type Thresholds struct {
	StablePct      float64
	ModeratePct    float64
	SpikePct       float64
	MinTrades      int
	NoTradeTimeout time.Duration
}

// Assessment is one immutable classification result for a symbol.
type Assessment struct {
	Symbol      string    `json:"symbol"`
	Status      Status    `json:"status"`
	LastPrice   float64   `json:"lastPrice"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	RangePct    float64   `json:"rangePct"`
	SpreadBps   float64   `json:"spreadBps"`
	SpreadPct   float64   `json:"spreadPct"`
	Trend       Trend     `json:"trend"`
	Spike       bool      `json:"spike"`
	Volatility  float64   `json:"volatility"`
	Trades      int       `json:"trades"`
	Volume      float64   `json:"volume"`
	LastTradeAt time.Time `json:"lastTradeAt"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Classify evaluates the current buffer contents. It is a pure function of
// the buffer, thresholds, and clock, so the same window always yields the
// same verdict.
func Classify(symbol string, buffer *PriceBuffer, th Thresholds, now time.Time) Assessment {
	assessment := Assessment{
		Symbol:      symbol,
		LastPrice:   buffer.Last(),
		Trend:       TrendFlat,
		Trades:      buffer.Len(),
		Volume:      buffer.TotalVolume(),
		LastTradeAt: buffer.LastTime(),
		EvaluatedAt: now,
	}

	if buffer.Len() < th.MinTrades {
		if buffer.Len() == 0 || now.Sub(buffer.LastTime()) > th.NoTradeTimeout {
			assessment.Status = StatusNoTrade
		} else {
			assessment.Status = StatusChecking
		}
		return assessment
	}

	low, high := buffer.Bounds()
	mid := (high + low) / 2
	if mid <= 0 {
		assessment.Status = StatusNoTrade
		return assessment
	}
	assessment.Low = low
	assessment.High = high
	assessment.RangePct = (high - low) / mid * 100

	// the poll feed has no order book; window bounds stand in for bid/ask
	if high > 0 {
		assessment.SpreadBps = (high - low) / high * 10000
		assessment.SpreadPct = assessment.SpreadBps / 100
	}

	first, last := buffer.First(), buffer.Last()
	if first > 0 {
		movePct := (last - first) / first * 100
		switch {
		case movePct >= trendEpsilonPct:
			assessment.Trend = TrendUp
		case movePct <= -trendEpsilonPct:
			assessment.Trend = TrendDown
		}
	}

	assessment.Spike = hasSpike(buffer.prices, th.SpikePct)
	assessment.Volatility = volatilityScore(assessment.RangePct, th.ModeratePct, assessment.Spike)

	switch {
	case assessment.Spike:
		assessment.Status = StatusUnstable
	case assessment.RangePct <= th.StablePct:
		assessment.Status = StatusStable
	case assessment.RangePct <= th.ModeratePct:
		assessment.Status = StatusModerate
	default:
		assessment.Status = StatusUnstable
	}

	// wide spreads override a calm range
	if assessment.SpreadBps > spreadUnstableBps {
		assessment.Status = StatusUnstable
	} else if assessment.SpreadBps > spreadModerateBps && assessment.Status == StatusStable {
		assessment.Status = StatusModerate
	}

	return assessment
}

// hasSpike reports whether any consecutive pair of prices jumped by at
// least spikePct percent in either direction.
func hasSpike(prices []float64, spikePct float64) bool {
	if spikePct <= 0 {
		return false
	}
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev <= 0 {
			continue
		}
		jump := math.Abs(prices[i]-prev) / prev * 100
		if jump >= spikePct {
			return true
		}
	}
	return false
}

// volatilityScore maps the window range onto a 0-100 scale where the
// moderate threshold sits at 50, with a flat 50 point penalty for a spike.
func volatilityScore(rangePct, moderatePct float64, spike bool) float64 {
	if moderatePct <= 0 {
		moderatePct = 0.5
	}
	score := rangePct / moderatePct * 50
	if spike {
		score += 50
	}
	return math.Min(score, 100)
}
