package watchdog

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeFeeder counts refreshes and can be made to fail.
type fakeFeeder struct {
	count int
	err   error
}

func (f *fakeFeeder) Refresh() error {
	if f.err != nil {
		return f.err
	}
	f.count++
	return nil
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestMonitor(t *testing.T, opts ...Option) (*Monitor, *fakeFeeder, *fakeClock) {
	t.Helper()

	fd := &fakeFeeder{}
	clk := &fakeClock{t: time.Unix(1000, 0)}
	all := append([]Option{
		WithFeedPeriod(500 * time.Millisecond),
		WithTokenTimeout(800 * time.Millisecond),
		WithNow(clk.now),
	}, opts...)

	m := New(fd, all...)
	m.Start()
	return m, fd, clk
}

func TestCheckAllTokens(t *testing.T) {
	tests := []struct {
		name   string
		tokens []uint8
		want   bool
	}{
		{"no tokens", nil, false},
		{"one of three", []uint8{TokenSafetyThread}, false},
		{"two of three", []uint8{TokenSafetyThread, TokenMainThread}, false},
		{"all three", []uint8{TokenSafetyThread, TokenMainThread, TokenCommThread}, true},
		{"all in one report", []uint8{TokenAll}, true},
		{"repeat reports", []uint8{TokenMainThread, TokenMainThread, TokenSafetyThread, TokenCommThread}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newTestMonitor(t)
			for _, tok := range tt.tokens {
				m.ReportToken(tok)
			}
			if got := m.CheckAllTokens(); got != tt.want {
				t.Errorf("CheckAllTokens() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTokenStaleness(t *testing.T) {
	m, _, clk := newTestMonitor(t)

	m.ReportToken(TokenAll)
	if !m.CheckAllTokens() {
		t.Fatal("fresh tokens should pass")
	}

	// one token refreshed, the others allowed to age past the timeout
	clk.advance(700 * time.Millisecond)
	m.ReportToken(TokenSafetyThread)
	clk.advance(200 * time.Millisecond)

	if m.CheckAllTokens() {
		t.Error("stale tokens should fail the check")
	}
}

func TestProcessFeedsWhenAllTokensPresent(t *testing.T) {
	m, fd, clk := newTestMonitor(t)

	m.ReportToken(TokenAll)
	clk.advance(500 * time.Millisecond)
	m.Process()

	if fd.count != 1 {
		t.Fatalf("feed count = %d, want 1", fd.count)
	}
	if m.Degraded() {
		t.Error("should not be degraded after a clean feed")
	}

	// a feed clears the accumulated tokens and their freshness
	if got := m.Status().TokensReceived; got != 0 {
		t.Errorf("tokens after feed = %#x, want 0", got)
	}
	for i := range m.timestamps {
		if ts := m.timestamps[i].Load(); ts != 0 {
			t.Errorf("timestamp[%d] = %d after feed, want 0", i, ts)
		}
	}
}

func TestProcessNotDueDoesNotFeed(t *testing.T) {
	m, fd, clk := newTestMonitor(t)

	m.ReportToken(TokenAll)
	clk.advance(100 * time.Millisecond)
	m.Process()

	if fd.count != 0 {
		t.Errorf("feed count = %d, want 0 before period elapses", fd.count)
	}
}

func TestMissingTokenEntersDegradedButStillFeeds(t *testing.T) {
	m, fd, clk := newTestMonitor(t)

	var gotReceived, gotRequired uint8
	violations := 0
	m.onViolation = func(received, required uint8) {
		violations++
		gotReceived, gotRequired = received, required
	}

	// comm thread never reports
	m.ReportToken(TokenSafetyThread)
	m.ReportToken(TokenMainThread)
	clk.advance(500 * time.Millisecond)
	m.Process()

	if fd.count != 1 {
		t.Fatalf("feed count = %d, want 1: the watchdog must still be fed", fd.count)
	}
	if !m.Degraded() {
		t.Error("missing token should enter degraded mode")
	}
	if violations != 1 {
		t.Fatalf("violations = %d, want 1", violations)
	}
	if gotReceived != TokenSafetyThread|TokenMainThread {
		t.Errorf("violation received mask = %#x, want %#x", gotReceived, TokenSafetyThread|TokenMainThread)
	}
	if gotRequired != TokenAll {
		t.Errorf("violation required mask = %#x, want %#x", gotRequired, TokenAll)
	}
}

func TestDegradedModeFeedsWithoutTokens(t *testing.T) {
	m, fd, clk := newTestMonitor(t)
	m.EnterDegraded()

	for i := 0; i < 3; i++ {
		clk.advance(500 * time.Millisecond)
		m.Process()
	}

	if fd.count != 3 {
		t.Errorf("feed count = %d, want 3: degraded mode feeds unconditionally", fd.count)
	}
}

func TestExitDegradedClearsTokens(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	m.ReportToken(TokenAll)
	m.EnterDegraded()
	m.ExitDegraded()

	if m.Degraded() {
		t.Error("ExitDegraded should clear degraded mode")
	}
	if m.CheckAllTokens() {
		t.Error("tokens must be cleared on degraded exit")
	}
}

func TestRequiredTokenSubset(t *testing.T) {
	m, fd, clk := newTestMonitor(t, WithRequiredTokens(TokenSafetyThread|TokenMainThread))

	// comm thread absent but not required
	m.ReportToken(TokenSafetyThread)
	m.ReportToken(TokenMainThread)
	clk.advance(500 * time.Millisecond)
	m.Process()

	if fd.count != 1 {
		t.Errorf("feed count = %d, want 1", fd.count)
	}
	if m.Degraded() {
		t.Error("unrequired token absence must not trigger degraded mode")
	}
}

func TestReportBeforeStartIgnored(t *testing.T) {
	fd := &fakeFeeder{}
	m := New(fd)

	m.ReportToken(TokenAll)

	if got := m.Status().TokensReceived; got != 0 {
		t.Errorf("tokens before Start = %#x, want 0", got)
	}
}

func TestFeedFailureReportsViolation(t *testing.T) {
	m, fd, clk := newTestMonitor(t)

	violations := 0
	m.onViolation = func(received, required uint8) { violations++ }

	fd.err = errors.New("refresh register write failed")
	m.ReportToken(TokenAll)
	clk.advance(500 * time.Millisecond)
	m.Process()

	if violations != 1 {
		t.Errorf("violations = %d, want 1 on refresh failure", violations)
	}
	if got := m.Status().FeedCount; got != 0 {
		t.Errorf("feed count = %d, want 0 after failed refresh", got)
	}
}

func TestWindowedFeedRespectsWindow(t *testing.T) {
	wwd := &fakeFeeder{}
	m, _, clk := newTestMonitor(t, WithWindowed(wwd, 300*time.Millisecond))

	m.ReportToken(TokenAll)

	// window not yet open
	clk.advance(100 * time.Millisecond)
	m.Process()
	if wwd.count != 0 {
		t.Fatalf("windowed feed count = %d, want 0 before window opens", wwd.count)
	}

	clk.advance(250 * time.Millisecond)
	m.Process()
	if wwd.count != 1 {
		t.Errorf("windowed feed count = %d, want 1 inside window", wwd.count)
	}
}

func TestEarlyWakeupSalvagesFeed(t *testing.T) {
	wwd := &fakeFeeder{}
	m, _, _ := newTestMonitor(t, WithWindowed(wwd, 300*time.Millisecond))

	m.ReportToken(TokenAll)
	m.EarlyWakeup()

	if wwd.count != 1 {
		t.Errorf("windowed feed count = %d, want 1: early wakeup should feed when tokens allow", wwd.count)
	}
}

func TestEarlyWakeupWithMissingTokens(t *testing.T) {
	wwd := &fakeFeeder{}
	m, _, _ := newTestMonitor(t, WithWindowed(wwd, 300*time.Millisecond))

	violations := 0
	m.onViolation = func(received, required uint8) { violations++ }

	m.ReportToken(TokenSafetyThread)
	m.EarlyWakeup()

	if wwd.count != 0 {
		t.Error("early wakeup must not feed with missing tokens")
	}
	if violations != 1 {
		t.Errorf("violations = %d, want 1", violations)
	}
}

func TestConcurrentTokenReports(t *testing.T) {
	m, _, _ := newTestMonitor(t)

	var wg sync.WaitGroup
	for _, tok := range []uint8{TokenSafetyThread, TokenMainThread, TokenCommThread} {
		wg.Add(1)
		go func(tok uint8) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				m.ReportToken(tok)
			}
		}(tok)
	}
	wg.Wait()

	if !m.CheckAllTokens() {
		t.Error("all tokens reported concurrently should pass the check")
	}
}

func BenchmarkReportToken(b *testing.B) {
	m := New(&fakeFeeder{})
	m.Start()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.ReportToken(TokenMainThread)
	}
}
