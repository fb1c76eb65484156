package factory

import (
	"sync"
	"sync/atomic"

	"github.com/ycx81/go-safekernel/params"
)

// Command words, posted by the debugger into the command slot.
const (
	// CmdNone means no command is pending
	CmdNone = 0x00000000

	// CmdReadCal copies the current calibration record into the data buffer ("CALR")
	CmdReadCal = 0x43414C52

	// CmdWriteCal validates and persists the record in the data buffer ("CALW")
	CmdWriteCal = 0x43414C57

	// CmdVerify re-reads and fully re-validates the persisted record ("CALV")
	CmdVerify = 0x43414C56

	// CmdExit ends the session, accepted only after a successful verify ("CALX")
	CmdExit = 0x43414C58

	// CmdAbort ends the session unconditionally ("CALA")
	CmdAbort = 0x43414C41
)

// Response words, written by the firmware into the response slot.
const (
	// RspReady signals the session is initialized and idle ("REDY")
	RspReady = 0x52454459

	// RspBusy signals a command is being processed ("BUSY")
	RspBusy = 0x42555359

	// RspOK signals the last command succeeded ("OKOK")
	RspOK = 0x4F4B4F4B

	// RspError signals the last command failed ("ERRO")
	RspError = 0x4552524F
)

// Mailbox is the firmware-side view of the shared command region: a
// command slot, a response slot, and a data buffer holding exactly one
// serialized calibration record.
type Mailbox interface {
	// Command returns the pending command word.
	Command() uint32

	// ClearCommand resets the command slot to CmdNone.
	ClearCommand()

	// SetResponse publishes a response word.
	SetResponse(code uint32)

	// ReadData copies the data buffer into buf.
	ReadData(buf []byte)

	// WriteData copies data into the data buffer.
	WriteData(data []byte)
}

// SharedMailbox is an in-memory mailbox with the debugger-facing side
// exposed as Post and Response. On hardware the same layout lives at a
// fixed CCM RAM address; this implementation backs host builds and the
// protocol tests.
type SharedMailbox struct {
	cmd atomic.Uint32
	rsp atomic.Uint32

	mu   sync.Mutex
	data [params.RecordSize]byte
}

// NewSharedMailbox creates an empty mailbox.
func NewSharedMailbox() *SharedMailbox {
	return &SharedMailbox{}
}

// Post writes a command word. This is the debugger side.
func (m *SharedMailbox) Post(cmd uint32) {
	m.cmd.Store(cmd)
}

// Response returns the current response word. This is the debugger side.
func (m *SharedMailbox) Response() uint32 {
	return m.rsp.Load()
}

// Command returns the pending command word.
func (m *SharedMailbox) Command() uint32 {
	return m.cmd.Load()
}

// ClearCommand resets the command slot.
func (m *SharedMailbox) ClearCommand() {
	m.cmd.Store(CmdNone)
}

// SetResponse publishes a response word.
func (m *SharedMailbox) SetResponse(code uint32) {
	m.rsp.Store(code)
}

// ReadData copies the data buffer into buf.
func (m *SharedMailbox) ReadData(buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(buf, m.data[:])
}

// WriteData copies data into the data buffer.
func (m *SharedMailbox) WriteData(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.data[:], data)
}
