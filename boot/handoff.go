package boot

import "errors"

// ErrJumpReturned indicates the hand-off port's jump came back, which
// on hardware means the transfer of control failed.
var ErrJumpReturned = errors.New("application jump returned")

// Port is the processor-level surface of the hand-off and of the
// factory-mode restart. Jump and SystemReset do not return on hardware;
// test fakes record the call and return.
type Port interface {
	// DisableInterrupts masks interrupts globally.
	DisableInterrupts()

	// DisableAndClearIRQs disables every interrupt source and clears
	// all pending interrupts.
	DisableAndClearIRQs()

	// DisableSysTick stops the system tick and clears its pending bit.
	DisableSysTick()

	// SetVectorTable relocates the vector table to the given base.
	SetVectorTable(base uint32)

	// SetStackPointer loads the main stack pointer. Nothing may touch
	// the old stack afterwards.
	SetStackPointer(sp uint32)

	// Barrier issues the data and instruction synchronization barriers.
	Barrier()

	// Jump transfers control to the application entry point.
	Jump(entry uint32)

	// SystemReset restarts the processor.
	SystemReset()
}

// Handoff performs the irreversible jump into the application.
type Handoff struct {
	port Port
}

// NewHandoff wraps a hand-off port.
func NewHandoff(port Port) *Handoff {
	return &Handoff{port: port}
}

// Execute runs the jump sequence in strict order: global interrupt
// disable, disabling and clearing every interrupt source, stopping the
// system tick, relocating the vector table, then with barriers between
// the hardware-state-affecting steps, loading the application stack
// pointer and jumping to its entry point. It returns only if the jump
// itself returns, which is a failure.
func (h *Handoff) Execute(vectorBase, sp, entry uint32) error {
	h.port.DisableInterrupts()
	h.port.DisableAndClearIRQs()
	h.port.DisableSysTick()

	h.port.SetVectorTable(vectorBase)
	h.port.Barrier()

	h.port.SetStackPointer(sp)
	h.port.Barrier()

	h.port.Jump(entry)
	return ErrJumpReturned
}
