package factory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ycx81/go-safekernel/params"
	"github.com/ycx81/go-safekernel/safety"
	"github.com/ycx81/go-safekernel/watchdog"
)

// State is the calibration session state.
type State uint8

const (
	StateInit     State = 0x00
	StateIdle     State = 0x01
	StateReadCal  State = 0x02
	StateWriteCal State = 0x03
	StateVerify   State = 0x04
	StateComplete State = 0x05
	StateError    State = 0xFF
)

var sessionStateNames = map[State]string{
	StateInit:     "INIT",
	StateIdle:     "IDLE",
	StateReadCal:  "READ_CAL",
	StateWriteCal: "WRITE_CAL",
	StateVerify:   "VERIFY",
	StateComplete: "COMPLETE",
	StateError:    "ERROR",
}

func (s State) String() string {
	if name, ok := sessionStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(0x%02X)", uint8(s))
}

// ErrNotAuthorized indicates the debugger was not attached, or detached
// before the session completed.
var ErrNotAuthorized = errors.New("factory session not authorized: debugger not attached")

// ErrAborted indicates the debugger posted an abort.
var ErrAborted = errors.New("factory session aborted")

// DebugProbe reports whether a debugger session is attached. On a
// Cortex-M part this reads the C_DEBUGEN bit of the DHCSR register.
type DebugProbe interface {
	Attached() bool
}

// Store is the calibration persistence surface the session needs,
// satisfied by the boot config-sector store.
type Store interface {
	ReadCalibration(ctx context.Context) ([]byte, error)
	WriteCalibration(ctx context.Context, record []byte) error
}

// DefaultPollPeriod is the mailbox polling interval.
const DefaultPollPeriod = 10 * time.Millisecond

// Session runs the calibration command loop over a mailbox. All methods
// are called from a single goroutine.
type Session struct {
	mailbox   Mailbox
	probe     DebugProbe
	store     Store
	validator *params.Validator
	feeder    watchdog.Feeder
	logger    safety.Logger

	pollPeriod time.Duration
	state      State
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionFeeder keeps the hardware watchdog fed between commands.
func WithSessionFeeder(f watchdog.Feeder) SessionOption {
	return func(s *Session) {
		s.feeder = f
	}
}

// WithPollPeriod sets the mailbox polling interval.
func WithPollPeriod(d time.Duration) SessionOption {
	return func(s *Session) {
		s.pollPeriod = d
	}
}

// WithSessionLogger attaches a logger.
func WithSessionLogger(l safety.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// NewSession creates a calibration session over a mailbox, a debug
// probe, and a calibration store.
func NewSession(mailbox Mailbox, probe DebugProbe, store Store, opts ...SessionOption) *Session {
	s := &Session{
		mailbox:    mailbox,
		probe:      probe,
		store:      store,
		validator:  params.NewValidator(),
		pollPeriod: DefaultPollPeriod,
		state:      StateInit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state
}

// Begin authorizes and initializes the session: the debugger must be
// attached, the command slot is cleared, and the ready response is
// published.
func (s *Session) Begin() error {
	if !s.probe.Attached() {
		s.state = StateError
		return ErrNotAuthorized
	}

	s.mailbox.ClearCommand()
	s.mailbox.SetResponse(RspReady)
	s.state = StateIdle

	if s.logger != nil {
		s.logger.Info("factory session open")
	}
	return nil
}

// Run executes the session until a successful exit, an abort, an
// authorization failure, or context cancellation.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Begin(); err != nil {
		return err
	}

	ticker := time.NewTicker(s.pollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		done, err := s.Step(ctx)
		if done || err != nil {
			return err
		}
	}
}

// Step runs one poll iteration: attachment check, watchdog feed, and at
// most one command. It reports done when the session ended.
func (s *Session) Step(ctx context.Context) (done bool, err error) {
	if !s.probe.Attached() {
		if s.state == StateComplete {
			return true, nil
		}
		s.state = StateError
		return true, ErrNotAuthorized
	}

	if s.feeder != nil {
		// a feed failure here is not actionable; the watchdog will bite
		_ = s.feeder.Refresh()
	}

	return s.processCommand(ctx)
}

// processCommand handles one pending command with the busy-then-result
// response discipline.
func (s *Session) processCommand(ctx context.Context) (done bool, err error) {
	cmd := s.mailbox.Command()
	if cmd == CmdNone {
		return false, nil
	}

	s.mailbox.SetResponse(RspBusy)
	defer s.mailbox.ClearCommand()

	switch cmd {
	case CmdReadCal:
		s.state = StateReadCal
		s.respond(s.handleRead(ctx))
		return false, nil

	case CmdWriteCal:
		s.state = StateWriteCal
		s.respond(s.handleWrite(ctx))
		return false, nil

	case CmdVerify:
		verifyErr := s.handleVerify(ctx)
		if verifyErr == nil {
			s.state = StateComplete
		} else {
			s.state = StateVerify
		}
		s.respond(verifyErr)
		return false, nil

	case CmdExit:
		if s.state != StateComplete {
			// not verified yet, refuse without killing the session
			s.respond(errors.New("exit before verified calibration"))
			return false, nil
		}
		s.mailbox.SetResponse(RspOK)
		if s.logger != nil {
			s.logger.Info("factory session complete")
		}
		return true, nil

	case CmdAbort:
		s.state = StateError
		s.mailbox.SetResponse(RspOK)
		return true, ErrAborted

	default:
		s.respond(fmt.Errorf("unknown command 0x%08X", cmd))
		return false, nil
	}
}

// respond publishes the result of a command and logs failures.
func (s *Session) respond(err error) {
	if err == nil {
		s.mailbox.SetResponse(RspOK)
		return
	}
	if s.logger != nil {
		s.logger.Error("factory command failed", "state", s.state.String(), "error", err.Error())
	}
	s.mailbox.SetResponse(RspError)
}

// handleRead copies the persisted calibration record into the mailbox
// data buffer for the debugger to read.
func (s *Session) handleRead(ctx context.Context) error {
	record, err := s.store.ReadCalibration(ctx)
	if err != nil {
		return err
	}
	s.mailbox.WriteData(record)
	return nil
}

// handleWrite validates the debugger-supplied record and persists it.
// The firmware owns the integrity fields: the incoming record is sealed
// here, so the debugger tool only fills in the calibration values.
// Records that fail validation are rejected without touching flash.
func (s *Session) handleWrite(ctx context.Context) error {
	buf := make([]byte, params.RecordSize)
	s.mailbox.ReadData(buf)

	record, err := params.Unmarshal(buf)
	if err != nil {
		return err
	}

	record.Seal()
	if err := s.validator.Validate(record); err != nil {
		return err
	}

	return s.store.WriteCalibration(ctx, record.Marshal())
}

// handleVerify re-reads the persisted record and runs the full
// validation pipeline against it.
func (s *Session) handleVerify(ctx context.Context) error {
	record, err := s.store.ReadCalibration(ctx)
	if err != nil {
		return err
	}
	return s.validator.ValidateBytes(record)
}
