package safety

import "fmt"

// Severity classifies an error code. The binding is fixed: dispatch in
// ReportError happens purely on this class, never on ad-hoc logic.
type Severity int

const (
	// SeverityWarning errors are logged and reported via callback only
	SeverityWarning Severity = iota

	// SeveritySerious errors degrade a normal system, and force the
	// safe state if the system is already degraded
	SeveritySerious

	// SeverityCritical errors force the safe state unconditionally
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "WARNING"
	case SeveritySerious:
		return "SERIOUS"
	case SeverityCritical:
		return "CRITICAL"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ErrorCode is the closed error taxonomy.
type ErrorCode uint8

const (
	ErrNone          ErrorCode = 0x00
	ErrCPUTest       ErrorCode = 0x01
	ErrRAMTest       ErrorCode = 0x02
	ErrFlashCRC      ErrorCode = 0x03
	ErrClock         ErrorCode = 0x04
	ErrWatchdog      ErrorCode = 0x05
	ErrStackOverflow ErrorCode = 0x06
	ErrFlowMonitor   ErrorCode = 0x07
	ErrParamInvalid  ErrorCode = 0x08
	ErrRuntimeTest   ErrorCode = 0x09
	ErrMPUFault      ErrorCode = 0x0A
	ErrHardFault     ErrorCode = 0x0B
	ErrBusFault      ErrorCode = 0x0C
	ErrUsageFault    ErrorCode = 0x0D
	ErrNMI           ErrorCode = 0x0E
	ErrInternal      ErrorCode = 0xFF
)

var errorNames = map[ErrorCode]string{
	ErrNone:          "NONE",
	ErrCPUTest:       "CPU_TEST",
	ErrRAMTest:       "RAM_TEST",
	ErrFlashCRC:      "FLASH_CRC",
	ErrClock:         "CLOCK",
	ErrWatchdog:      "WATCHDOG",
	ErrStackOverflow: "STACK_OVERFLOW",
	ErrFlowMonitor:   "FLOW_MONITOR",
	ErrParamInvalid:  "PARAM_INVALID",
	ErrRuntimeTest:   "RUNTIME_TEST",
	ErrMPUFault:      "MPU_FAULT",
	ErrHardFault:     "HARDFAULT",
	ErrBusFault:      "BUSFAULT",
	ErrUsageFault:    "USAGEFAULT",
	ErrNMI:           "NMI",
	ErrInternal:      "INTERNAL",
}

func (c ErrorCode) String() string {
	if name, ok := errorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(0x%02X)", uint8(c))
}

// severities binds every code to its class. Codes not listed (including
// ErrNone) default to warning.
var severities = map[ErrorCode]Severity{
	ErrCPUTest:    SeverityCritical,
	ErrRAMTest:    SeverityCritical,
	ErrHardFault:  SeverityCritical,
	ErrBusFault:   SeverityCritical,
	ErrUsageFault: SeverityCritical,
	ErrNMI:        SeverityCritical,
	ErrInternal:   SeverityCritical,

	ErrFlashCRC:    SeveritySerious,
	ErrClock:       SeveritySerious,
	ErrFlowMonitor: SeveritySerious,
	ErrMPUFault:    SeveritySerious,
	ErrWatchdog:    SeveritySerious,

	ErrStackOverflow: SeverityWarning,
	ErrParamInvalid:  SeverityWarning,
	ErrRuntimeTest:   SeverityWarning,
}

// Severity returns the fixed severity class of the code.
func (c ErrorCode) Severity() Severity {
	return severities[c]
}
