package flow

import (
	"sync"
	"testing"
	"time"
)

func TestCheckpointOrderSensitive(t *testing.T) {
	tests := []struct {
		name string
		a    []uint8
		b    []uint8
	}{
		{name: "swapped pair", a: []uint8{1, 2, 3}, b: []uint8{1, 3, 2}},
		{name: "reversed", a: []uint8{0x10, 0x11, 0x12}, b: []uint8{0x12, 0x11, 0x10}},
		{name: "repeated checkpoint", a: []uint8{5, 5}, b: []uint8{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ExpectedSignature(tt.a) == ExpectedSignature(tt.b) {
				t.Errorf("sequences %v and %v yield equal signatures", tt.a, tt.b)
			}
		})
	}
}

func TestCheckpointDeterministic(t *testing.T) {
	seq := []uint8{CPBootInit, CPBootSelfTestStart, CPBootSelfTestEnd, CPBootJumpPrepare}

	m1 := New()
	m2 := New()
	for _, id := range seq {
		m1.Checkpoint(id)
		m2.Checkpoint(id)
	}

	if m1.Signature() != m2.Signature() {
		t.Error("identical sequences yield different signatures")
	}
	if m1.Signature() != ExpectedSignature(seq) {
		t.Error("Monitor signature differs from ExpectedSignature")
	}
}

func TestVerifyAgainstExpected(t *testing.T) {
	seq := []uint8{CPAppInit, CPAppSafetyMonitor, CPAppWatchdogFeed}

	m := New()
	m.SetExpected(ExpectedSignature(seq))

	for _, id := range seq {
		m.Checkpoint(id)
	}

	if !m.Verify() {
		t.Fatal("Verify() failed on matching signature")
	}
	if !m.SequenceComplete() {
		t.Error("sequence not marked complete")
	}
	if m.ErrorDetected() {
		t.Error("spurious error flag")
	}
}

func TestVerifyDetectsWrongOrder(t *testing.T) {
	m := New()
	m.SetExpected(ExpectedSignature([]uint8{1, 2, 3}))

	for _, id := range []uint8{1, 3, 2} {
		m.Checkpoint(id)
	}

	if m.Verify() {
		t.Fatal("Verify() passed on out-of-order sequence")
	}
	if !m.ErrorDetected() {
		t.Error("error flag not set")
	}
}

func TestVerifyLiveness(t *testing.T) {
	m := New()
	m.Checkpoint(CPAppMainLoop)

	if !m.Verify() {
		t.Fatal("first window with a checkpoint failed")
	}

	// No checkpoint in the second window: the liveness check must fail
	// even without an expected signature.
	if m.Verify() {
		t.Error("Verify() passed with zero checkpoints in window")
	}
}

func TestResetPreservesExpected(t *testing.T) {
	m := New()
	m.SetExpected(0x1234)
	m.Checkpoint(7)
	m.Reset()

	if m.Signature() != SignatureSeed {
		t.Errorf("signature after Reset = 0x%08X, want seed", m.Signature())
	}
	if m.ErrorDetected() {
		t.Error("error flag survives Reset")
	}

	// Expected still armed: empty window plus mismatch must fail.
	if m.Verify() {
		t.Error("Verify() passed after Reset with armed expected signature")
	}
}

func TestCheckpointRecent(t *testing.T) {
	current := time.Unix(1000, 0)
	m := New(WithNow(func() time.Time { return current }))

	m.Checkpoint(CPAppCommHandler)

	if !m.CheckpointRecent(CPAppCommHandler, 50*time.Millisecond) {
		t.Error("fresh checkpoint not recent")
	}
	if m.CheckpointRecent(CPAppMainLoop, 50*time.Millisecond) {
		t.Error("different checkpoint reported recent")
	}

	current = current.Add(100 * time.Millisecond)
	if m.CheckpointRecent(CPAppCommHandler, 50*time.Millisecond) {
		t.Error("stale checkpoint reported recent")
	}
}

func TestCheckpointConcurrent(t *testing.T) {
	m := New()

	const goroutines = 8
	const perGoroutine = 1000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(id uint8) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				m.Checkpoint(id)
			}
		}(uint8(0x10 + g))
	}
	wg.Wait()

	// Interleaving is nondeterministic, so the signature value is not
	// predictable; the liveness accounting must still be exact.
	if !m.Verify() {
		t.Error("Verify() failed after concurrent checkpoints")
	}
}
