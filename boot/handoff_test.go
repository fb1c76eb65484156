package boot

import (
	"errors"
	"reflect"
	"testing"
)

// fakePort records hand-off port calls in order.
type fakePort struct {
	calls  []string
	vector uint32
	sp     uint32
	jumped uint32
	resets int
}

func (p *fakePort) DisableInterrupts()   { p.calls = append(p.calls, "DisableInterrupts") }
func (p *fakePort) DisableAndClearIRQs() { p.calls = append(p.calls, "DisableAndClearIRQs") }
func (p *fakePort) DisableSysTick()      { p.calls = append(p.calls, "DisableSysTick") }
func (p *fakePort) Barrier()             { p.calls = append(p.calls, "Barrier") }

func (p *fakePort) SetVectorTable(base uint32) {
	p.calls = append(p.calls, "SetVectorTable")
	p.vector = base
}

func (p *fakePort) SetStackPointer(sp uint32) {
	p.calls = append(p.calls, "SetStackPointer")
	p.sp = sp
}

func (p *fakePort) Jump(entry uint32) {
	p.calls = append(p.calls, "Jump")
	p.jumped = entry
}

func (p *fakePort) SystemReset() {
	p.calls = append(p.calls, "SystemReset")
	p.resets++
}

func TestHandoffOrder(t *testing.T) {
	port := &fakePort{}
	h := NewHandoff(port)

	err := h.Execute(0x08010000, 0x20010000, 0x08010401)
	if !errors.Is(err, ErrJumpReturned) {
		t.Fatalf("Execute() error = %v, want ErrJumpReturned", err)
	}

	want := []string{
		"DisableInterrupts",
		"DisableAndClearIRQs",
		"DisableSysTick",
		"SetVectorTable",
		"Barrier",
		"SetStackPointer",
		"Barrier",
		"Jump",
	}
	if !reflect.DeepEqual(port.calls, want) {
		t.Errorf("call order = %v, want %v", port.calls, want)
	}

	if port.vector != 0x08010000 {
		t.Errorf("vector base = 0x%08X, want 0x08010000", port.vector)
	}
	if port.sp != 0x20010000 {
		t.Errorf("stack pointer = 0x%08X, want 0x20010000", port.sp)
	}
	if port.jumped != 0x08010401 {
		t.Errorf("entry = 0x%08X, want 0x08010401", port.jumped)
	}
}
