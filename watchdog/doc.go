// Package watchdog implements the multi-thread liveness monitor gating
// the hardware watchdog feed.
//
// Every participating thread owns one token bit and reports it each
// monitoring cycle. Token reporting is a lock-free, idempotent bit-OR:
// each bit has exactly one writer and the monitor cycle is the only
// reader, so no mutex sits between application threads and the feed
// decision.
//
// Process, called once per monitor cycle, feeds the primary watchdog only
// when every required token has been re-reported within the token
// timeout. A missing or stale token raises a violation, switches the
// monitor into degraded mode (dropping the token requirement so the
// hardware watchdog keeps being fed and a false reset is avoided), and
// still feeds.
//
// When the dual-watchdog configuration is enabled, a second, windowed
// watchdog must additionally be refreshed inside a bounded window each
// cycle. Missing the window is fatal at the hardware level; the
// early-wakeup hook exists only to salvage the feed if tokens allow it,
// or to get the violation logged before the reset.
package watchdog
