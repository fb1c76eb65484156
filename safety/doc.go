// Package safety implements the safety state machine at the center of
// the kernel. A single Manager owns the safety context: the current
// state, the error log, the validity flags, and the callbacks. Errors
// enter through ReportError and dispatch purely on their fixed severity
// class: critical errors force the terminal safe state, serious errors
// degrade a normal system (or finish off an already degraded one), and
// warnings are logged and reported without a state change.
//
// The safe state is irreversible within a boot cycle. Entering it
// drives all outputs to their configured safe values and, depending on
// policy, either keeps the watchdog alive until external intervention
// or stops feeding and lets the watchdog force a reset.
//
// The runtime Monitor in this package is the sole mutator of all safety
// state once the system is running: it reports the safety thread's own
// liveness token, runs the watchdog feed gate, verifies program flow,
// advances the incremental flash check, re-checks calibration, scans
// stacks, and enforces the degraded-mode residency limit, all on a
// fixed cycle.
package safety
