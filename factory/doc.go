// Package factory implements the debugger-mediated calibration protocol.
//
// Calibration is deliberately not reachable over any communication bus.
// The only channel is a fixed mailbox in core-coupled RAM that an
// attached debugger reads and writes directly; the firmware polls it
// while the debug session lasts. Losing the debugger attachment outside
// the Complete state aborts the session as an authorization failure.
//
// The mailbox follows a sender-writes, receiver-clears discipline: the
// debugger posts a command word, the firmware answers busy before
// processing and ok/error after, then clears the command slot. An
// external reader therefore never observes an indeterminate state.
package factory
