package config

import "fmt"

// Validate checks policy correctness.
// It performs declarative validation only and MUST NOT mutate the policy.
func Validate(p *Policy) error {
	if p == nil {
		return fmt.Errorf("policy is nil")
	}

	// ------------------------------------------------------------
	// MONITOR CYCLE
	// ------------------------------------------------------------

	if p.Monitor.PeriodMs <= 0 {
		return fmt.Errorf("monitor: period_ms must be positive, got %d", p.Monitor.PeriodMs)
	}
	if p.Monitor.FlowVerifyIntervalMs < p.Monitor.PeriodMs {
		return fmt.Errorf("monitor: flow_verify_interval_ms %d is shorter than the monitor period %d",
			p.Monitor.FlowVerifyIntervalMs, p.Monitor.PeriodMs)
	}

	// ------------------------------------------------------------
	// WATCHDOG
	// ------------------------------------------------------------

	if p.Watchdog.FeedPeriodMs <= 0 {
		return fmt.Errorf("watchdog: feed_period_ms must be positive, got %d", p.Watchdog.FeedPeriodMs)
	}

	// A token timeout shorter than the feed period would declare every
	// thread stale before the first feed decision is even due.
	if p.Watchdog.TokenTimeoutMs < p.Watchdog.FeedPeriodMs {
		return fmt.Errorf("watchdog: token_timeout_ms %d is shorter than feed_period_ms %d",
			p.Watchdog.TokenTimeoutMs, p.Watchdog.FeedPeriodMs)
	}
	if p.Watchdog.RequiredTokens == 0 {
		return fmt.Errorf("watchdog: required_tokens must name at least one thread")
	}
	if p.Watchdog.Windowed {
		if p.Watchdog.WindowOpenMs <= 0 || p.Watchdog.WindowOpenMs >= p.Watchdog.FeedPeriodMs {
			return fmt.Errorf("watchdog: window_open_ms %d must lie inside the feed period %d",
				p.Watchdog.WindowOpenMs, p.Watchdog.FeedPeriodMs)
		}
	}

	// ------------------------------------------------------------
	// DEGRADED MODE
	// ------------------------------------------------------------

	if p.Degraded.Enabled && p.Degraded.TimeoutMs <= 0 {
		return fmt.Errorf("degraded: timeout_ms must be positive when degraded mode is enabled, got %d",
			p.Degraded.TimeoutMs)
	}

	// ------------------------------------------------------------
	// CLOCK
	// ------------------------------------------------------------

	if p.Clock.NominalHz == 0 {
		return fmt.Errorf("clock: nominal_hz must be set")
	}
	if p.Clock.TolerancePercent < 1 || p.Clock.TolerancePercent > 50 {
		return fmt.Errorf("clock: tolerance_percent %d outside 1..50", p.Clock.TolerancePercent)
	}

	// ------------------------------------------------------------
	// SELF-TEST
	// ------------------------------------------------------------

	if p.SelfTest.FlashCRCBlockSize <= 0 || p.SelfTest.FlashCRCBlockSize%4 != 0 {
		return fmt.Errorf("selftest: flash_crc_block_size %d must be a positive word multiple",
			p.SelfTest.FlashCRCBlockSize)
	}
	if p.SelfTest.FlashCRCIntervalMs < p.Monitor.PeriodMs {
		return fmt.Errorf("selftest: flash_crc_interval_ms %d is shorter than the monitor period %d",
			p.SelfTest.FlashCRCIntervalMs, p.Monitor.PeriodMs)
	}
	if p.SelfTest.ParamCheckIntervalMs < p.Monitor.PeriodMs {
		return fmt.Errorf("selftest: param_check_interval_ms %d is shorter than the monitor period %d",
			p.SelfTest.ParamCheckIntervalMs, p.Monitor.PeriodMs)
	}
	if p.SelfTest.StackCheckIntervalMs < p.Monitor.PeriodMs {
		return fmt.Errorf("selftest: stack_check_interval_ms %d is shorter than the monitor period %d",
			p.SelfTest.StackCheckIntervalMs, p.Monitor.PeriodMs)
	}

	// ------------------------------------------------------------
	// STACK THRESHOLDS
	// ------------------------------------------------------------

	if p.Stack.WarningPercent <= 0 || p.Stack.WarningPercent >= 100 {
		return fmt.Errorf("stack: warning_percent %d outside 1..99", p.Stack.WarningPercent)
	}
	if p.Stack.CriticalPercent <= p.Stack.WarningPercent || p.Stack.CriticalPercent > 100 {
		return fmt.Errorf("stack: critical_percent %d must lie in (%d, 100]",
			p.Stack.CriticalPercent, p.Stack.WarningPercent)
	}

	return nil
}
