package stability

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"

	"alphawatch/internal/service"
)

// MonitorOptions wire the stability monitor.
type MonitorOptions struct {
	Client         *Client
	Alpha          *service.Service
	Logger         zerolog.Logger
	PollInterval   time.Duration
	TimeWindow     time.Duration
	BufferSize     int
	BatchSize      int
	BatchDelay     time.Duration
	Thresholds     Thresholds
	MultiplierTier int
	ExtraSymbols   []string
}

// Monitor polls the trade feed for a set of Alpha pairs, maintains one
// sliding price window per symbol, and publishes classification snapshots.
// Start and Stop are idempotent.
type Monitor struct {
	client *Client
	alpha  *service.Service
	logger zerolog.Logger
	now    func() time.Time

	pollInterval   time.Duration
	window         time.Duration
	bufferSize     int
	batchSize      int
	batchDelay     time.Duration
	thresholds     Thresholds
	multiplierTier int
	extraSymbols   []string

	symbols   []string
	pool      pond.Pool
	buffers   *xsync.Map[string, *PriceBuffer]
	snapshots *xsync.Map[string, Assessment]
	lastSeen  *xsync.Map[string, time.Time]

	subMu       sync.RWMutex
	subscribers []func(Assessment)
	connSubs    []func(bool)

	connected atomic.Bool
	running   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewMonitor constructs a monitor. Zero options fall back to a 3s poll, 60s
// window, 200 entry buffers, and batches of 5 spaced 200ms apart.
func NewMonitor(opts MonitorOptions) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.TimeWindow <= 0 {
		opts.TimeWindow = time.Minute
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 200
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = 200 * time.Millisecond
	}
	if opts.Thresholds.MinTrades <= 0 {
		opts.Thresholds.MinTrades = 3
	}
	if opts.Thresholds.NoTradeTimeout <= 0 {
		opts.Thresholds.NoTradeTimeout = 30 * time.Second
	}

	return &Monitor{
		client:         opts.Client,
		alpha:          opts.Alpha,
		logger:         opts.Logger.With().Str("component", "stability_monitor").Logger(),
		now:            time.Now,
		pollInterval:   opts.PollInterval,
		window:         opts.TimeWindow,
		bufferSize:     opts.BufferSize,
		batchSize:      opts.BatchSize,
		batchDelay:     opts.BatchDelay,
		thresholds:     opts.Thresholds,
		multiplierTier: opts.MultiplierTier,
		extraSymbols:   opts.ExtraSymbols,
		buffers:        xsync.NewMap[string, *PriceBuffer](),
		snapshots:      xsync.NewMap[string, Assessment](),
		lastSeen:       xsync.NewMap[string, time.Time](),
	}
}

// Start resolves the monitored universe and launches the polling loop.
// Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		return
	}

	m.symbols = m.resolveUniverse(ctx)
	m.pool = pond.NewPool(m.batchSize)

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	m.logger.Info().
		Int("symbols", len(m.symbols)).
		Dur("poll_interval", m.pollInterval).
		Msg("stability monitor started")

	go m.loop(loopCtx)
}

// Stop halts the polling loop and waits for in-flight batches to drain.
// Calling Stop on a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.cancel()
	<-m.done
	m.pool.StopAndWait()
	m.setConnected(false)
	m.logger.Info().Msg("stability monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// poll refreshes every symbol in fixed-size batches. Batches run their
// symbols concurrently but the batches themselves are sequenced with a
// delay between them so the feed never sees the whole universe at once.
func (m *Monitor) poll(ctx context.Context) {
	for start := 0; start < len(m.symbols); start += m.batchSize {
		if ctx.Err() != nil {
			return
		}

		end := start + m.batchSize
		if end > len(m.symbols) {
			end = len(m.symbols)
		}

		group := m.pool.NewGroup()
		for _, symbol := range m.symbols[start:end] {
			symbol := symbol
			group.Submit(func() {
				m.refreshSymbol(ctx, symbol)
			})
		}
		if err := group.Wait(); err != nil {
			m.logger.Warn().Err(err).Msg("poll batch finished with errors")
		}

		if end < len(m.symbols) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.batchDelay):
			}
		}
	}
}

func (m *Monitor) refreshSymbol(ctx context.Context, symbol string) {
	trades, err := m.client.RecentTrades(ctx, symbol)
	if err != nil {
		m.setConnected(false)
		m.logger.Debug().Err(err).Str("symbol", symbol).Msg("trade fetch failed, snapshot left to age")
		return
	}
	m.setConnected(true)

	buffer, _ := m.buffers.LoadOrStore(symbol, NewPriceBuffer(m.window, m.bufferSize))
	last, _ := m.lastSeen.Load(symbol)
	for _, trade := range trades {
		if !trade.Time.After(last) {
			continue
		}
		buffer.Append(trade.Price, trade.Quantity, trade.Time)
		last = trade.Time
	}
	m.lastSeen.Store(symbol, last)

	assessment := Classify(symbol, buffer, m.thresholds, m.now())
	m.snapshots.Store(symbol, assessment)
	m.publish(assessment)
}

// resolveUniverse selects high-multiplier active tokens from the aggregated
// listing plus the configured extra symbols.
func (m *Monitor) resolveUniverse(ctx context.Context) []string {
	set := make(map[string]bool)

	if m.alpha != nil {
		result := m.alpha.GetTokens(ctx, false)
		if result.Success {
			for _, token := range result.Tokens {
				if token.Multiplier >= m.multiplierTier && token.Active() {
					set[strings.ToUpper(token.Symbol)] = true
				}
			}
		} else {
			m.logger.Warn().Str("error", result.Error).Msg("token listing unavailable, monitoring extras only")
		}
	}

	for _, symbol := range m.extraSymbols {
		if symbol = strings.ToUpper(strings.TrimSpace(symbol)); symbol != "" {
			set[symbol] = true
		}
	}

	symbols := make([]string, 0, len(set))
	for symbol := range set {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Subscribe registers a callback invoked with every fresh assessment.
// Callbacks run on polling workers and must return quickly.
func (m *Monitor) Subscribe(fn func(Assessment)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// SubscribeConnection registers a callback invoked whenever the feed
// connection state flips, including the disconnect on Stop.
func (m *Monitor) SubscribeConnection(fn func(bool)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.connSubs = append(m.connSubs, fn)
}

// setConnected records the feed state and notifies on transitions only.
func (m *Monitor) setConnected(connected bool) {
	if m.connected.Swap(connected) == connected {
		return
	}

	m.subMu.RLock()
	subs := make([]func(bool), len(m.connSubs))
	copy(subs, m.connSubs)
	m.subMu.RUnlock()

	for _, fn := range subs {
		fn(connected)
	}
}

func (m *Monitor) publish(assessment Assessment) {
	m.subMu.RLock()
	subscribers := make([]func(Assessment), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.subMu.RUnlock()

	for _, fn := range subscribers {
		fn(assessment)
	}
}

// Snapshot returns the latest assessment for one symbol.
func (m *Monitor) Snapshot(symbol string) (Assessment, bool) {
	return m.snapshots.Load(strings.ToUpper(symbol))
}

// Snapshots returns the latest assessment of every monitored symbol.
func (m *Monitor) Snapshots() map[string]Assessment {
	out := make(map[string]Assessment)
	m.snapshots.Range(func(symbol string, assessment Assessment) bool {
		out[symbol] = assessment
		return true
	})
	return out
}

// Connected reports whether the last feed request succeeded.
func (m *Monitor) Connected() bool {
	return m.connected.Load()
}

// Symbols returns the monitored universe resolved at start time.
func (m *Monitor) Symbols() []string {
	out := make([]string, len(m.symbols))
	copy(out, m.symbols)
	return out
}
