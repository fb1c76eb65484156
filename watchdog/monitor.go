package watchdog

import (
	"sync/atomic"
	"time"
)

// Token bits. Each participating thread owns exactly one bit.
const (
	// TokenSafetyThread is reported by the safety monitor itself
	TokenSafetyThread = 0x01

	// TokenMainThread is reported by the application main thread
	TokenMainThread = 0x02

	// TokenCommThread is reported by the communication thread
	TokenCommThread = 0x04

	// TokenAll is the default required mask
	TokenAll = TokenSafetyThread | TokenMainThread | TokenCommThread
)

// tokenBits is the width of the token mask.
const tokenBits = 8

// Feeder refreshes a hardware watchdog. A refresh failure is a hardware
// fault; the monitor surfaces it through the violation handler.
type Feeder interface {
	Refresh() error
}

// ViolationHandler is called when the feed gate finds required tokens
// missing or stale, with the received and required masks.
type ViolationHandler func(received, required uint8)

// Status is a snapshot of the liveness monitor state.
type Status struct {
	// TokensReceived is the mask accumulated in the current feed cycle
	TokensReceived uint8

	// TokensRequired is the configured required mask
	TokensRequired uint8

	// FeedCount is the number of primary watchdog feeds
	FeedCount uint32

	// LastFeed is when the primary watchdog was last fed
	LastFeed time.Time

	// DegradedMode indicates the token requirement is suspended
	DegradedMode bool

	// Enabled indicates Start has been called
	Enabled bool

	// WindowedFeedCount is the number of windowed watchdog feeds
	WindowedFeedCount uint32

	// WindowedLastFeed is when the windowed watchdog was last fed
	WindowedLastFeed time.Time
}

// Monitor aggregates per-thread liveness tokens and gates watchdog
// feeding. ReportToken is safe from any goroutine; all other methods
// belong to the single monitor goroutine.
type Monitor struct {
	primary  Feeder
	windowed Feeder

	tokens     atomic.Uint32
	timestamps [tokenBits]atomic.Int64 // unix nanoseconds per bit

	required     uint8
	feedPeriod   time.Duration
	tokenTimeout time.Duration
	windowOpen   time.Duration

	degraded atomic.Bool
	enabled  bool

	feedCount    uint32
	lastFeed     time.Time
	wwdFeedCount uint32
	wwdLastFeed  time.Time

	onViolation ViolationHandler
	now         func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRequiredTokens sets the token mask every feed decision requires.
func WithRequiredTokens(mask uint8) Option {
	return func(m *Monitor) {
		m.required = mask
	}
}

// WithFeedPeriod sets the primary watchdog feed period.
func WithFeedPeriod(period time.Duration) Option {
	return func(m *Monitor) {
		m.feedPeriod = period
	}
}

// WithTokenTimeout sets the maximum age of a token at feed time.
func WithTokenTimeout(timeout time.Duration) Option {
	return func(m *Monitor) {
		m.tokenTimeout = timeout
	}
}

// WithWindowed enables the secondary windowed watchdog. Its feed window
// opens openAfter the previous windowed feed and closes at the feed
// period; the hardware resets if the feed lands outside.
func WithWindowed(w Feeder, openAfter time.Duration) Option {
	return func(m *Monitor) {
		m.windowed = w
		m.windowOpen = openAfter
	}
}

// WithViolationHandler sets the callback invoked on token violations.
func WithViolationHandler(h ViolationHandler) Option {
	return func(m *Monitor) {
		m.onViolation = h
	}
}

// WithNow overrides the time source, for tests.
func WithNow(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a liveness monitor feeding the given primary watchdog.
func New(primary Feeder, opts ...Option) *Monitor {
	if primary == nil {
		panic("primary watchdog cannot be nil")
	}

	m := &Monitor{
		primary:      primary,
		required:     TokenAll,
		feedPeriod:   500 * time.Millisecond,
		tokenTimeout: 800 * time.Millisecond,
		windowOpen:   100 * time.Millisecond,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start arms the monitor. The first feed decision is due one feed period
// after Start.
func (m *Monitor) Start() {
	m.enabled = true
	now := m.now()
	m.lastFeed = now
	if m.windowed != nil {
		m.wwdLastFeed = now
	}
}

// ReportToken records that the thread owning token is alive. Bits are
// OR-accumulated; reporting is idempotent within a feed cycle and safe
// from any goroutine.
func (m *Monitor) ReportToken(token uint8) {
	if !m.enabled {
		return
	}

	for {
		old := m.tokens.Load()
		if m.tokens.CompareAndSwap(old, old|uint32(token)) {
			break
		}
	}

	now := m.now().UnixNano()
	for i := 0; i < tokenBits; i++ {
		if token&(1<<i) != 0 {
			m.timestamps[i].Store(now)
		}
	}
}

// CheckAllTokens reports whether every required token has been reported
// and is no older than the token timeout. Always true in degraded mode,
// where the requirement is suspended.
func (m *Monitor) CheckAllTokens() bool {
	if !m.enabled || m.degraded.Load() {
		return true
	}

	now := m.now().UnixNano()
	received := uint8(m.tokens.Load())

	for i := 0; i < tokenBits; i++ {
		bit := uint8(1 << i)
		if m.required&bit == 0 {
			continue
		}
		if received&bit == 0 {
			return false
		}
		if time.Duration(now-m.timestamps[i].Load()) > m.tokenTimeout {
			return false
		}
	}

	return true
}

// Process runs one monitor cycle of the feed state machine. When a feed
// is due it either feeds (all tokens fresh, or already degraded) or
// raises a violation, enters degraded mode, and feeds anyway: the
// hardware watchdog must not fire because one application thread
// stalled. The windowed watchdog is fed whenever its window is open.
func (m *Monitor) Process() {
	if !m.enabled {
		return
	}

	now := m.now()

	if now.Sub(m.lastFeed) >= m.feedPeriod {
		switch {
		case m.degraded.Load():
			m.feedPrimary(now)
		case m.CheckAllTokens():
			m.feedPrimary(now)
		default:
			if m.onViolation != nil {
				m.onViolation(uint8(m.tokens.Load()), m.required)
			}
			m.EnterDegraded()
			m.feedPrimary(now)
		}
	}

	if m.windowed != nil && now.Sub(m.wwdLastFeed) >= m.windowOpen {
		m.feedWindowed(now)
	}
}

// EarlyWakeup is the near-miss hook for the windowed watchdog, called
// from its early-wakeup interrupt just before a hardware reset would
// occur. If tokens allow it the feed is salvaged; otherwise the
// violation is recorded so it survives the reset in the error log.
func (m *Monitor) EarlyWakeup() {
	if m.windowed == nil || !m.enabled {
		return
	}

	if m.CheckAllTokens() {
		m.feedWindowed(m.now())
		return
	}

	if m.onViolation != nil {
		m.onViolation(uint8(m.tokens.Load()), m.required)
	}
}

// EnterDegraded suspends the token requirement so the watchdog keeps
// being fed while the system sheds functionality.
func (m *Monitor) EnterDegraded() {
	m.degraded.Store(true)
}

// ExitDegraded restores the token requirement and clears all token
// state so the next cycle starts fresh.
func (m *Monitor) ExitDegraded() {
	m.degraded.Store(false)
	m.clearTokens()
}

// clearTokens resets the token bits and their freshness timestamps.
func (m *Monitor) clearTokens() {
	m.tokens.Store(0)
	for i := range m.timestamps {
		m.timestamps[i].Store(0)
	}
}

// Degraded reports whether the token requirement is suspended.
func (m *Monitor) Degraded() bool {
	return m.degraded.Load()
}

// Status returns a snapshot of the monitor state.
func (m *Monitor) Status() Status {
	return Status{
		TokensReceived:    uint8(m.tokens.Load()),
		TokensRequired:    m.required,
		FeedCount:         m.feedCount,
		LastFeed:          m.lastFeed,
		DegradedMode:      m.degraded.Load(),
		Enabled:           m.enabled,
		WindowedFeedCount: m.wwdFeedCount,
		WindowedLastFeed:  m.wwdLastFeed,
	}
}

// feedPrimary refreshes the primary watchdog and opens the next cycle:
// token bits and freshness reset at every successful feed.
func (m *Monitor) feedPrimary(now time.Time) {
	if err := m.primary.Refresh(); err != nil {
		if m.onViolation != nil {
			m.onViolation(uint8(m.tokens.Load()), m.required)
		}
		return
	}

	m.lastFeed = now
	m.feedCount++
	m.clearTokens()
}

func (m *Monitor) feedWindowed(now time.Time) {
	if err := m.windowed.Refresh(); err != nil {
		if m.onViolation != nil {
			m.onViolation(uint8(m.tokens.Load()), m.required)
		}
		return
	}

	m.wwdLastFeed = now
	m.wwdFeedCount++
}
