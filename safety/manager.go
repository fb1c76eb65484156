package safety

import (
	"sync"
	"time"
)

// ErrorLogSize is the capacity of the error log ring.
const ErrorLogSize = 16

// LogEntry is one error log record.
type LogEntry struct {
	Timestamp time.Time
	Code      ErrorCode
	Param1    uint32
	Param2    uint32
}

// OutputDriver drives the system outputs to their safe values. The safe
// state cannot complete without one; a nil driver makes entering the
// safe state a logged no-op on the output side, for bench setups.
type OutputDriver interface {
	SetSafeOutputs()
}

// ErrorCallback is notified after an error is logged.
type ErrorCallback func(code ErrorCode, param1, param2 uint32)

// StateCallback is notified after every state change.
type StateCallback func(old, new State)

// Manager owns the safety context. All mutating entry points are safe
// for concurrent use, though at runtime the monitor goroutine is the
// only caller by design.
type Manager struct {
	mu sync.Mutex

	state      State
	lastError  ErrorCode
	errorCount uint32

	startupTestPassed bool
	paramsValid       bool
	mpuEnabled        bool
	watchdogActive    bool

	degradedEnabled bool
	degradedTimeout time.Duration
	degradedSince   time.Time

	// feedInSafeState keeps the watchdog alive in the safe state;
	// otherwise the monitor stops feeding and the hardware resets.
	feedInSafeState bool

	log      [ErrorLogSize]LogEntry
	logIndex int
	logCount int

	errorCbs []ErrorCallback
	stateCbs []StateCallback

	outputs OutputDriver
	logger  Logger
	now     func() time.Time
	started time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger attaches a logger.
func WithLogger(l Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithOutputDriver sets the driver used to reach the safe output state.
func WithOutputDriver(d OutputDriver) ManagerOption {
	return func(m *Manager) {
		m.outputs = d
	}
}

// WithDegradedMode configures degraded-mode availability and its
// maximum residency. With enabled false, serious errors go straight to
// the safe state.
func WithDegradedMode(enabled bool, timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.degradedEnabled = enabled
		m.degradedTimeout = timeout
	}
}

// WithSafeStateFeed selects whether the watchdog keeps being fed in the
// safe state (hold for external intervention) or not (watchdog reset).
func WithSafeStateFeed(feed bool) ManagerOption {
	return func(m *Manager) {
		m.feedInSafeState = feed
	}
}

// WithManagerNow overrides the time source, for tests.
func WithManagerNow(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a safety manager in the Init state.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		state:           StateInit,
		degradedEnabled: true,
		degradedTimeout: 30 * time.Second,
		feedInSafeState: true,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.started = m.now()
	return m
}

// State returns the current safety state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsOperational reports whether the system may run application logic.
func (m *Manager) IsOperational() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateNormal || m.state == StateDegraded
}

// LastError returns the most recent error code.
func (m *Manager) LastError() ErrorCode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// ErrorCount returns the number of errors reported so far.
func (m *Manager) ErrorCount() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorCount
}

// Uptime returns the time since the manager was created.
func (m *Manager) Uptime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.started)
}

// FeedInSafeState reports the configured safe-state watchdog policy.
func (m *Manager) FeedInSafeState() bool {
	return m.feedInSafeState
}

// RegisterErrorCallback adds an error notification callback.
func (m *Manager) RegisterErrorCallback(cb ErrorCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCbs = append(m.errorCbs, cb)
}

// RegisterStateCallback adds a state-change notification callback.
func (m *Manager) RegisterStateCallback(cb StateCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCbs = append(m.stateCbs, cb)
}

// SetState performs an explicit state transition. Transitions outside
// the fixed table fail with an InvalidTransitionError and leave the
// state unchanged.
func (m *Manager) SetState(new State) error {
	m.mu.Lock()
	old := m.state
	if !canTransition(old, new) {
		m.mu.Unlock()
		return &InvalidTransitionError{From: old, To: new}
	}
	m.setStateLocked(new)
	cbs := append([]StateCallback(nil), m.stateCbs...)
	m.mu.Unlock()

	for _, cb := range cbs {
		cb(old, new)
	}
	return nil
}

// setStateLocked changes the state without re-checking the table.
func (m *Manager) setStateLocked(new State) {
	m.state = new
	if new == StateDegraded {
		m.degradedSince = m.now()
	}
	if m.logger != nil {
		m.logger.Info("safety state changed", "state", new.String())
	}
}

// MarkStartupTestPassed records a successful startup test run.
func (m *Manager) MarkStartupTestPassed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startupTestPassed = true
}

// StartupTestPassed reports whether the startup tests have passed.
func (m *Manager) StartupTestPassed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startupTestPassed
}

// SetParamsValid records the calibration validity flag.
func (m *Manager) SetParamsValid(valid bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paramsValid = valid
}

// SetMPUEnabled records the region guard status flag.
func (m *Manager) SetMPUEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mpuEnabled = enabled
}

// SetWatchdogActive records the watchdog status flag.
func (m *Manager) SetWatchdogActive(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchdogActive = active
}

// ReportError is the primary error entry point. The error is logged,
// then dispatched purely on its severity class: critical forces the
// safe state, serious degrades (or forces safe when already degraded or
// when degraded mode is unavailable), warning only notifies.
func (m *Manager) ReportError(code ErrorCode, param1, param2 uint32) {
	m.mu.Lock()
	m.logErrorLocked(code, param1, param2)
	state := m.state
	m.mu.Unlock()

	m.notifyError(code, param1, param2)

	if state == StateSafe {
		return
	}

	switch code.Severity() {
	case SeverityCritical:
		m.EnterSafe(code)
	case SeveritySerious:
		switch {
		case state == StateNormal && m.degradedEnabled:
			m.EnterDegraded(code)
		default:
			m.EnterSafe(code)
		}
	case SeverityWarning:
		if m.logger != nil {
			m.logger.Debug("warning-level safety error",
				"code", code.String(), "param1", param1, "param2", param2)
		}
	}
}

// EnterDegraded moves a normal system into degraded operation. The
// residency clock starts now; CheckDegradedTimeout enforces the limit.
func (m *Manager) EnterDegraded(code ErrorCode) error {
	m.mu.Lock()
	if !m.degradedEnabled {
		m.mu.Unlock()
		m.EnterSafe(code)
		return nil
	}

	old := m.state
	if !canTransition(old, StateDegraded) {
		m.mu.Unlock()
		return &InvalidTransitionError{From: old, To: StateDegraded}
	}

	m.setStateLocked(StateDegraded)
	m.lastError = code
	cbs := append([]StateCallback(nil), m.stateCbs...)
	m.mu.Unlock()

	for _, cb := range cbs {
		cb(old, StateDegraded)
	}
	return nil
}

// ExitDegraded returns a degraded system to normal operation after the
// underlying condition clears.
func (m *Manager) ExitDegraded() error {
	return m.SetState(StateNormal)
}

// EnterSafe forces the terminal safe state: outputs are driven to their
// safe values, the state changes, and callbacks fire. Irreversible
// within a boot cycle; calling it again in the safe state only updates
// the error bookkeeping.
func (m *Manager) EnterSafe(code ErrorCode) {
	m.mu.Lock()
	old := m.state
	m.lastError = code

	if old == StateSafe {
		m.mu.Unlock()
		return
	}

	if m.outputs != nil {
		m.outputs.SetSafeOutputs()
	}
	m.setStateLocked(StateSafe)
	cbs := append([]StateCallback(nil), m.stateCbs...)
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Error("entering safe state",
			"cause", code.String(), "feed_watchdog", m.feedInSafeState)
	}
	for _, cb := range cbs {
		cb(old, StateSafe)
	}
}

// CheckDegradedTimeout forces the safe state when the system has been
// degraded longer than the configured residency limit.
func (m *Manager) CheckDegradedTimeout() {
	m.mu.Lock()
	expired := m.state == StateDegraded &&
		m.degradedTimeout > 0 &&
		m.now().Sub(m.degradedSince) > m.degradedTimeout
	code := m.lastError
	m.mu.Unlock()

	if expired {
		if code == ErrNone {
			code = ErrInternal
		}
		m.EnterSafe(code)
	}
}

// ClearError resets the last-error bookkeeping. The state machine is
// untouched; errors that changed state stay changed.
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = ErrNone
}

// ErrorLog returns the logged errors, newest first.
func (m *Manager) ErrorLog() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]LogEntry, 0, m.logCount)
	for i := 0; i < m.logCount; i++ {
		idx := (m.logIndex - 1 - i + ErrorLogSize) % ErrorLogSize
		out = append(out, m.log[idx])
	}
	return out
}

// Fault hooks. Processor faults map into the taxonomy and force the
// safe state; the entry is logged first so it survives in the ring.

func (m *Manager) HardFault(msp, psp uint32) {
	m.ReportError(ErrHardFault, msp, psp)
}

func (m *Manager) MemManageFault(faultAddr, faultStatus uint32) {
	m.ReportError(ErrMPUFault, faultAddr, faultStatus)
}

func (m *Manager) BusFault(faultAddr, faultStatus uint32) {
	m.ReportError(ErrBusFault, faultAddr, faultStatus)
}

func (m *Manager) UsageFault(faultStatus uint32) {
	m.ReportError(ErrUsageFault, 0, faultStatus)
}

func (m *Manager) NMI() {
	m.ReportError(ErrNMI, 0, 0)
}

// logErrorLocked appends to the ring, overwriting oldest-first.
func (m *Manager) logErrorLocked(code ErrorCode, param1, param2 uint32) {
	m.log[m.logIndex] = LogEntry{
		Timestamp: m.now(),
		Code:      code,
		Param1:    param1,
		Param2:    param2,
	}
	m.logIndex = (m.logIndex + 1) % ErrorLogSize
	if m.logCount < ErrorLogSize {
		m.logCount++
	}

	m.lastError = code
	m.errorCount++
}

func (m *Manager) notifyError(code ErrorCode, param1, param2 uint32) {
	m.mu.Lock()
	cbs := append([]ErrorCallback(nil), m.errorCbs...)
	m.mu.Unlock()

	for _, cb := range cbs {
		cb(code, param1, param2)
	}
}
