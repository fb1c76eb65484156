// Package config defines the safety policy file. Behavior that the
// reference firmware fixed at build time (degraded-mode handling, the
// safe-state watchdog policy, timing intervals) is resolved here once at
// startup into a Policy value, so both variants of every policy are
// testable in the same binary.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy is the top-level safety policy.
type Policy struct {
	Monitor  MonitorPolicy  `yaml:"monitor"`
	Watchdog WatchdogPolicy `yaml:"watchdog"`
	Degraded DegradedPolicy `yaml:"degraded"`
	Safe     SafePolicy     `yaml:"safe_state"`
	Clock    ClockPolicy    `yaml:"clock"`
	SelfTest SelfTestPolicy `yaml:"selftest"`
	Stack    StackPolicy    `yaml:"stack"`
}

// MonitorPolicy configures the safety monitor cycle.
type MonitorPolicy struct {
	PeriodMs             int `yaml:"period_ms"`
	FlowVerifyIntervalMs int `yaml:"flow_verify_interval_ms"`
}

// WatchdogPolicy configures token-gated watchdog feeding.
type WatchdogPolicy struct {
	FeedPeriodMs   int   `yaml:"feed_period_ms"`
	TokenTimeoutMs int   `yaml:"token_timeout_ms"`
	RequiredTokens uint8 `yaml:"required_tokens"`

	// Windowed enables the secondary window watchdog. Its feed must land
	// inside [WindowOpenMs, feed period] after the previous feed; the
	// hardware resets on a miss.
	Windowed     bool `yaml:"windowed"`
	WindowOpenMs int  `yaml:"window_open_ms"`
}

// DegradedPolicy configures degraded-mode residency.
type DegradedPolicy struct {
	Enabled   bool `yaml:"enabled"`
	TimeoutMs int  `yaml:"timeout_ms"`
}

// SafePolicy selects the terminal safe-state behavior: keep feeding the
// watchdog so degraded hardware survives until external intervention, or
// stop feeding and let the watchdog force a reset.
type SafePolicy struct {
	FeedWatchdog bool `yaml:"feed_watchdog"`
}

// ClockPolicy configures the clock-frequency check.
type ClockPolicy struct {
	NominalHz        uint32 `yaml:"nominal_hz"`
	TolerancePercent int    `yaml:"tolerance_percent"`
}

// SelfTestPolicy configures the runtime self-test cadence.
type SelfTestPolicy struct {
	FlashCRCIntervalMs   int `yaml:"flash_crc_interval_ms"`
	FlashCRCBlockSize    int `yaml:"flash_crc_block_size"`
	ParamCheckIntervalMs int `yaml:"param_check_interval_ms"`
	StackCheckIntervalMs int `yaml:"stack_check_interval_ms"`
}

// StackPolicy configures stack usage thresholds.
type StackPolicy struct {
	WarningPercent  int `yaml:"warning_percent"`
	CriticalPercent int `yaml:"critical_percent"`
}

// Default returns the policy matching the reference hardware: a 100ms
// monitor cycle, 500ms feed period with an 800ms token timeout, degraded
// mode bounded at 30s, safe state holding the watchdog alive, a 168MHz
// system clock checked at ±5%, and a 4KB-block flash CRC every 5 minutes.
func Default() Policy {
	return Policy{
		Monitor: MonitorPolicy{
			PeriodMs:             100,
			FlowVerifyIntervalMs: 1000,
		},
		Watchdog: WatchdogPolicy{
			FeedPeriodMs:   500,
			TokenTimeoutMs: 800,
			RequiredTokens: 0x07,
			Windowed:       false,
			WindowOpenMs:   100,
		},
		Degraded: DegradedPolicy{
			Enabled:   true,
			TimeoutMs: 30000,
		},
		Safe: SafePolicy{
			FeedWatchdog: true,
		},
		Clock: ClockPolicy{
			NominalHz:        168000000,
			TolerancePercent: 5,
		},
		SelfTest: SelfTestPolicy{
			FlashCRCIntervalMs:   300000,
			FlashCRCBlockSize:    4096,
			ParamCheckIntervalMs: 60000,
			StackCheckIntervalMs: 100,
		},
		Stack: StackPolicy{
			WarningPercent:  70,
			CriticalPercent: 90,
		},
	}
}

// Load reads and parses a policy file, overlaying the defaults.
func Load(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML policy data, overlaying the defaults. The result is
// validated before it is returned.
func Parse(data []byte) (Policy, error) {
	p := Default()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy: %w", err)
	}
	if err := Validate(&p); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Duration accessors. The file carries integer milliseconds; code works
// in time.Duration.

func (m MonitorPolicy) Period() time.Duration { return msDur(m.PeriodMs) }

func (m MonitorPolicy) FlowVerifyInterval() time.Duration {
	return msDur(m.FlowVerifyIntervalMs)
}

func (w WatchdogPolicy) FeedPeriod() time.Duration { return msDur(w.FeedPeriodMs) }

func (w WatchdogPolicy) TokenTimeout() time.Duration { return msDur(w.TokenTimeoutMs) }

func (w WatchdogPolicy) WindowOpen() time.Duration { return msDur(w.WindowOpenMs) }

func (d DegradedPolicy) Timeout() time.Duration { return msDur(d.TimeoutMs) }

func (s SelfTestPolicy) FlashCRCInterval() time.Duration {
	return msDur(s.FlashCRCIntervalMs)
}

func (s SelfTestPolicy) ParamCheckInterval() time.Duration {
	return msDur(s.ParamCheckIntervalMs)
}

func (s SelfTestPolicy) StackCheckInterval() time.Duration {
	return msDur(s.StackCheckIntervalMs)
}

func msDur(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
