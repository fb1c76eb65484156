package safety

import (
	"context"
	"errors"
	"time"

	"github.com/ycx81/go-safekernel/config"
	"github.com/ycx81/go-safekernel/flow"
	"github.com/ycx81/go-safekernel/params"
	"github.com/ycx81/go-safekernel/selftest"
	"github.com/ycx81/go-safekernel/stack"
	"github.com/ycx81/go-safekernel/watchdog"
)

// MonitorStats counts monitor activity.
type MonitorStats struct {
	CycleCount     uint32
	FlowVerifies   uint32
	FlashCRCPasses uint32
	ParamChecks    uint32
	LastCycle      time.Time
}

// Monitor is the runtime safety monitor. Once Run starts it is the sole
// mutator of the watchdog, flow, and self-test state and the sole
// runtime caller of the manager's state-changing entry points.
//
// The watchdog monitor should be constructed with a violation handler
// that reports ErrWatchdog to the manager; the safety monitor keeps the
// watchdog's degraded flag in step with the safety state.
type Monitor struct {
	mgr    *Manager
	policy config.Policy

	wdg       *watchdog.Monitor
	flows     *flow.Monitor
	tests     *selftest.Sequencer
	stacks    *stack.Monitor
	validator *params.Validator

	// persisted returns the current persisted calibration bytes for
	// the periodic re-check.
	persisted func() []byte

	stats MonitorStats

	lastFlowVerify time.Time
	lastFlashCRC   time.Time
	lastParamCheck time.Time
	lastStackCheck time.Time

	logger Logger
	now    func() time.Time
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithWatchdogMonitor attaches the token liveness monitor.
func WithWatchdogMonitor(w *watchdog.Monitor) MonitorOption {
	return func(m *Monitor) { m.wdg = w }
}

// WithFlowMonitor attaches the program flow monitor.
func WithFlowMonitor(f *flow.Monitor) MonitorOption {
	return func(m *Monitor) { m.flows = f }
}

// WithSelfTest attaches the self-test sequencer for the incremental
// runtime flash check.
func WithSelfTest(s *selftest.Sequencer) MonitorOption {
	return func(m *Monitor) { m.tests = s }
}

// WithStackMonitor attaches the stack usage monitor.
func WithStackMonitor(s *stack.Monitor) MonitorOption {
	return func(m *Monitor) { m.stacks = s }
}

// WithParamCheck attaches the calibration validator and the source of
// the persisted record bytes it re-checks against.
func WithParamCheck(v *params.Validator, persisted func() []byte) MonitorOption {
	return func(m *Monitor) {
		m.validator = v
		m.persisted = persisted
	}
}

// WithMonitorLogger attaches a logger.
func WithMonitorLogger(l Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// WithMonitorNow overrides the time source, for tests.
func WithMonitorNow(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates the runtime monitor around a manager and a policy.
func NewMonitor(mgr *Manager, policy config.Policy, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		mgr:    mgr,
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	start := m.now()
	m.lastFlowVerify = start
	m.lastFlashCRC = start
	m.lastParamCheck = start
	m.lastStackCheck = start

	if m.wdg != nil {
		mgr.RegisterStateCallback(func(old, new State) {
			switch new {
			case StateDegraded, StateSafe:
				m.wdg.EnterDegraded()
			case StateNormal:
				if old == StateDegraded {
					m.wdg.ExitDegraded()
				}
			}
		})
	}

	return m
}

// Startup runs the one-shot startup sequence: transition into the test
// state, run the full self-test battery, and on success move to normal
// operation and arm the watchdog. Any test failure forces the safe
// state.
func (m *Monitor) Startup() error {
	if err := m.mgr.SetState(StateStartupTest); err != nil {
		return err
	}

	if m.flows != nil {
		m.flows.Checkpoint(flow.CPAppInit)
	}

	if m.tests != nil {
		if err := m.tests.RunStartup(); err != nil {
			code, p1, p2 := startupErrorCode(err)
			m.mgr.ReportError(code, p1, p2)
			return err
		}
	}
	m.mgr.MarkStartupTestPassed()

	if err := m.mgr.SetState(StateNormal); err != nil {
		return err
	}

	if m.wdg != nil {
		m.wdg.Start()
		m.mgr.SetWatchdogActive(true)
	}

	if m.logger != nil {
		m.logger.Info("startup tests passed, entering normal operation")
	}
	return nil
}

// Run executes monitor cycles at the policy period until the context is
// canceled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.policy.Monitor.Period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.RunCycle()
		}
	}
}

// RunCycle executes one monitor cycle.
func (m *Monitor) RunCycle() {
	now := m.now()
	m.stats.CycleCount++
	m.stats.LastCycle = now

	if m.flows != nil {
		m.flows.Checkpoint(flow.CPAppSafetyMonitor)
	}

	m.processWatchdog()
	m.checkStacks(now)
	m.verifyFlow(now)
	m.advanceFlashCheck(now)
	m.recheckParams(now)

	m.mgr.CheckDegradedTimeout()
}

// Stats returns a copy of the monitor counters.
func (m *Monitor) Stats() MonitorStats {
	return m.stats
}

func (m *Monitor) processWatchdog() {
	if m.wdg == nil {
		return
	}

	// In the safe state the feed policy decides: hold the hardware
	// alive for external intervention, or stop feeding and reset.
	if m.mgr.State() == StateSafe && !m.mgr.FeedInSafeState() {
		return
	}

	m.wdg.ReportToken(watchdog.TokenSafetyThread)
	m.wdg.Process()

	if m.flows != nil {
		m.flows.Checkpoint(flow.CPAppWatchdogFeed)
	}
}

func (m *Monitor) checkStacks(now time.Time) {
	if m.stacks == nil || now.Sub(m.lastStackCheck) < m.policy.SelfTest.StackCheckInterval() {
		return
	}
	m.lastStackCheck = now

	if err := m.stacks.CheckAll(); err != nil {
		var usage *stack.UsageError
		if errors.As(err, &usage) {
			m.mgr.ReportError(ErrStackOverflow, 0, uint32(usage.UsagePercent))
		}
	}
}

func (m *Monitor) verifyFlow(now time.Time) {
	if m.flows == nil || now.Sub(m.lastFlowVerify) < m.policy.Monitor.FlowVerifyInterval() {
		return
	}
	m.lastFlowVerify = now
	m.stats.FlowVerifies++

	if !m.flows.Verify() {
		m.mgr.ReportError(ErrFlowMonitor, m.flows.Signature(), 0)
		m.flows.Reset()
	}
	// reseed the window so the next verify sees this cycle
	m.flows.Checkpoint(flow.CPAppSafetyMonitor)
}

// advanceFlashCheck arms the incremental flash CRC on its interval and
// advances it one block per cycle, spreading the cost across the
// monitor period instead of stalling one cycle.
func (m *Monitor) advanceFlashCheck(now time.Time) {
	if m.tests == nil {
		return
	}

	if m.tests.FlashCRCInProgress() {
		done, err := m.tests.ContinueFlashCRC()
		if !done {
			return
		}
		if m.flows != nil {
			m.flows.Checkpoint(flow.CPAppSelfTestEnd)
		}
		if err != nil {
			var crcErr *selftest.FlashCRCError
			if errors.As(err, &crcErr) {
				m.mgr.ReportError(ErrFlashCRC, crcErr.Calculated, crcErr.Expected)
				return
			}
			m.mgr.ReportError(ErrRuntimeTest, 0, 0)
			return
		}
		m.stats.FlashCRCPasses++
		m.lastFlashCRC = now
		return
	}

	if now.Sub(m.lastFlashCRC) >= m.policy.SelfTest.FlashCRCInterval() {
		if m.flows != nil {
			m.flows.Checkpoint(flow.CPAppSelfTestStart)
		}
		_ = m.tests.RunFlashCRC(selftest.Runtime)
	}
}

func (m *Monitor) recheckParams(now time.Time) {
	if m.validator == nil || m.persisted == nil ||
		now.Sub(m.lastParamCheck) < m.policy.SelfTest.ParamCheckInterval() {
		return
	}
	m.lastParamCheck = now
	m.stats.ParamChecks++

	if m.flows != nil {
		m.flows.Checkpoint(flow.CPAppParamCheck)
	}

	if err := m.validator.PeriodicCheck(m.persisted()); err != nil {
		m.mgr.SetParamsValid(false)
		m.mgr.ReportError(ErrParamInvalid, 0, 0)
	}
}

// startupErrorCode maps a self-test failure to its taxonomy code and
// log parameters.
func startupErrorCode(err error) (ErrorCode, uint32, uint32) {
	var cpuErr *selftest.CPUTestError
	if errors.As(err, &cpuErr) {
		return ErrCPUTest, cpuErr.Pattern, cpuErr.Got
	}

	var ramErr *selftest.RAMTestError
	if errors.As(err, &ramErr) {
		return ErrRAMTest, uint32(ramErr.Phase), uint32(ramErr.Offset)
	}

	var crcErr *selftest.FlashCRCError
	if errors.As(err, &crcErr) {
		return ErrFlashCRC, crcErr.Calculated, crcErr.Expected
	}

	var clkErr *selftest.ClockError
	if errors.As(err, &clkErr) {
		return ErrClock, clkErr.Measured, clkErr.Nominal
	}

	return ErrRuntimeTest, 0, 0
}
