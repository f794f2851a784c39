package stability

import "time"

// PriceBuffer keeps a sliding window of trade observations as three parallel
// slices. Entries fall off the front once they age past the time window or
// push the buffer over its length cap; the slices always stay equal length.
//
// The buffer is not safe for concurrent use. The monitor confines each
// buffer to the single worker polling its symbol.
type PriceBuffer struct {
	window time.Duration
	maxLen int

	prices  []float64
	times   []time.Time
	volumes []float64
}

// NewPriceBuffer constructs a buffer with a 60s window and 200 entry cap
// when the arguments are zero or negative.
func NewPriceBuffer(window time.Duration, maxLen int) *PriceBuffer {
	if window <= 0 {
		window = time.Minute
	}
	if maxLen <= 0 {
		maxLen = 200
	}
	return &PriceBuffer{window: window, maxLen: maxLen}
}

// Append records one observation and trims the window relative to its time.
func (b *PriceBuffer) Append(price, volume float64, at time.Time) {
	b.prices = append(b.prices, price)
	b.times = append(b.times, at)
	b.volumes = append(b.volumes, volume)
	b.trim(at)
}

func (b *PriceBuffer) trim(now time.Time) {
	cutoff := now.Add(-b.window)
	drop := 0
	for drop < len(b.times) && b.times[drop].Before(cutoff) {
		drop++
	}
	if over := len(b.times) - drop - b.maxLen; over > 0 {
		drop += over
	}
	if drop > 0 {
		b.prices = append(b.prices[:0], b.prices[drop:]...)
		b.times = append(b.times[:0], b.times[drop:]...)
		b.volumes = append(b.volumes[:0], b.volumes[drop:]...)
	}
}

// Len returns the number of buffered observations.
func (b *PriceBuffer) Len() int { return len(b.prices) }

// Prices returns a copy of the buffered prices, oldest first.
func (b *PriceBuffer) Prices() []float64 {
	out := make([]float64, len(b.prices))
	copy(out, b.prices)
	return out
}

// First returns the oldest buffered price.
func (b *PriceBuffer) First() float64 {
	if len(b.prices) == 0 {
		return 0
	}
	return b.prices[0]
}

// Last returns the newest buffered price.
func (b *PriceBuffer) Last() float64 {
	if len(b.prices) == 0 {
		return 0
	}
	return b.prices[len(b.prices)-1]
}

// LastTime returns the timestamp of the newest observation, zero when empty.
func (b *PriceBuffer) LastTime() time.Time {
	if len(b.times) == 0 {
		return time.Time{}
	}
	return b.times[len(b.times)-1]
}

// Bounds returns the low and high prices currently in the window.
func (b *PriceBuffer) Bounds() (low, high float64) {
	if len(b.prices) == 0 {
		return 0, 0
	}
	low, high = b.prices[0], b.prices[0]
	for _, p := range b.prices[1:] {
		if p < low {
			low = p
		}
		if p > high {
			high = p
		}
	}
	return low, high
}

// TotalVolume sums the buffered trade volumes.
func (b *PriceBuffer) TotalVolume() float64 {
	total := 0.0
	for _, v := range b.volumes {
		total += v
	}
	return total
}
