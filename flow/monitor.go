package flow

import (
	"math/bits"
	"sync/atomic"
	"time"
)

// Signature algorithm constants.
const (
	// SignatureSeed is the initial signature value (0x5A5A5A5A)
	SignatureSeed = 0x5A5A5A5A

	// MixConstant is the 32-bit golden-ratio multiplier used to spread
	// checkpoint identifiers across the signature word
	MixConstant = 0x9E3779B9
)

// Checkpoint identifiers. Boot-stage checkpoints occupy 0x01-0x0F,
// application checkpoints 0x10-0x3F.
const (
	CPBootInit          = 0x01
	CPBootSelfTestStart = 0x02
	CPBootSelfTestCPU   = 0x03
	CPBootSelfTestRAM   = 0x04
	CPBootSelfTestFlash = 0x05
	CPBootSelfTestClock = 0x06
	CPBootSelfTestEnd   = 0x07
	CPBootParamsCheck   = 0x08
	CPBootConfigCheck   = 0x09
	CPBootFactoryMode   = 0x0A
	CPBootAppVerify     = 0x0B
	CPBootJumpPrepare   = 0x0C
	CPBootJumpExecute   = 0x0D

	CPAppInit          = 0x10
	CPAppSafetyMonitor = 0x11
	CPAppWatchdogFeed  = 0x12
	CPAppSelfTestStart = 0x13
	CPAppSelfTestEnd   = 0x14
	CPAppMainLoop      = 0x15
	CPAppCommHandler   = 0x16
	CPAppParamCheck    = 0x17
)

// Monitor accumulates and verifies program-flow signatures.
type Monitor struct {
	signature atomic.Uint32
	expected  atomic.Uint32
	count     atomic.Uint32

	lastCheckpoint atomic.Uint32
	lastSeen       atomic.Int64 // unix nanoseconds

	errorDetected    atomic.Bool
	sequenceComplete atomic.Bool

	now func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithNow overrides the time source, for tests.
func WithNow(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a flow monitor seeded and ready for checkpoints.
func New(opts ...Option) *Monitor {
	m := &Monitor{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.signature.Store(SignatureSeed)
	return m
}

// Checkpoint folds id into the signature and records it as the most
// recent checkpoint. Safe to call from any goroutine.
func (m *Monitor) Checkpoint(id uint8) {
	for {
		old := m.signature.Load()
		if m.signature.CompareAndSwap(old, Fold(old, id)) {
			break
		}
	}

	m.lastCheckpoint.Store(uint32(id))
	m.lastSeen.Store(m.now().UnixNano())
	m.count.Add(1)

	if exp := m.expected.Load(); exp != 0 && m.signature.Load() == exp {
		m.sequenceComplete.Store(true)
	}
}

// Verify checks the window that ends now. It fails if an expected
// signature is set and the accumulated one differs, or if no checkpoint
// was reported since the last window. On success the accumulator and
// checkpoint count reset for the next measurement window; the
// sequence-complete flag survives until Reset.
func (m *Monitor) Verify() bool {
	if exp := m.expected.Load(); exp != 0 {
		if m.signature.Load() != exp {
			m.errorDetected.Store(true)
			return false
		}
	}

	// Liveness: something must have checked in this window.
	if m.count.Load() == 0 {
		m.errorDetected.Store(true)
		return false
	}

	m.signature.Store(SignatureSeed)
	m.count.Store(0)
	return true
}

// Reset restores the seed signature and clears the window state. The
// expected signature is preserved.
func (m *Monitor) Reset() {
	m.signature.Store(SignatureSeed)
	m.count.Store(0)
	m.lastCheckpoint.Store(0)
	m.sequenceComplete.Store(false)
	m.errorDetected.Store(false)
}

// SetExpected sets the signature Verify compares against. Zero disables
// the comparison, leaving only the liveness check.
func (m *Monitor) SetExpected(sig uint32) {
	m.expected.Store(sig)
}

// Signature returns the current accumulated signature.
func (m *Monitor) Signature() uint32 {
	return m.signature.Load()
}

// ErrorDetected reports whether any Verify has failed since the last
// Reset.
func (m *Monitor) ErrorDetected() bool {
	return m.errorDetected.Load()
}

// SequenceComplete reports whether the accumulated signature has reached
// the expected value.
func (m *Monitor) SequenceComplete() bool {
	return m.sequenceComplete.Load()
}

// CheckpointRecent reports whether id was the most recent checkpoint and
// was reported within timeout.
func (m *Monitor) CheckpointRecent(id uint8, timeout time.Duration) bool {
	if m.lastCheckpoint.Load() != uint32(id) {
		return false
	}
	elapsed := m.now().UnixNano() - m.lastSeen.Load()
	return elapsed >= 0 && time.Duration(elapsed) <= timeout
}

// Fold mixes one checkpoint identifier into a signature: rotate left one
// bit, XOR with the scaled identifier. Order-sensitive by construction.
func Fold(sig uint32, id uint8) uint32 {
	return bits.RotateLeft32(sig, 1) ^ (uint32(id) * MixConstant)
}

// ExpectedSignature computes the signature produced by visiting the given
// checkpoints in order, starting from the seed. Used by the boot sequencer
// to derive the value it verifies before the application jump.
func ExpectedSignature(ids []uint8) uint32 {
	sig := uint32(SignatureSeed)
	for _, id := range ids {
		sig = Fold(sig, id)
	}
	return sig
}
