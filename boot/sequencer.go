package boot

import (
	"context"
	"errors"
	"fmt"

	"github.com/ycx81/go-safekernel/flow"
	"github.com/ycx81/go-safekernel/memmap"
	"github.com/ycx81/go-safekernel/params"
	"github.com/ycx81/go-safekernel/safety"
	"github.com/ycx81/go-safekernel/selftest"
)

// State is the boot sequencer state. The sequence is one-shot and
// strictly ordered; the safe state is reachable from every step.
type State int

const (
	StateInit State = iota
	StateSelfTest
	StateValidateParams
	StateCheckConfig
	StateFactoryMode
	StateVerifyApp
	StateJumpToApp
	StateSafe
)

var bootStateNames = map[State]string{
	StateInit:           "INIT",
	StateSelfTest:       "SELFTEST",
	StateValidateParams: "VALIDATE_PARAMS",
	StateCheckConfig:    "CHECK_CONFIG",
	StateFactoryMode:    "FACTORY_MODE",
	StateVerifyApp:      "VERIFY_APP",
	StateJumpToApp:      "JUMP_TO_APP",
	StateSafe:           "SAFE",
}

func (s State) String() string {
	if name, ok := bootStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// SafeStateError is returned by Run when the boot sequence ends in the
// safe state instead of handing off.
type SafeStateError struct {
	Code  safety.ErrorCode
	State State
	Cause error
}

func (e *SafeStateError) Error() string {
	return fmt.Sprintf("boot entered safe state from %s: %s: %v", e.State, e.Code, e.Cause)
}

func (e *SafeStateError) Unwrap() error {
	return e.Cause
}

// FactoryHandler runs a factory calibration session. A nil return means
// the session completed and the factory flag may be cleared.
type FactoryHandler func(ctx context.Context) error

// bootSequence is the checkpoint trail of a clean boot up to the final
// flow verification.
var bootSequence = []uint8{
	flow.CPBootInit,
	flow.CPBootSelfTestStart,
	flow.CPBootSelfTestCPU,
	flow.CPBootSelfTestRAM,
	flow.CPBootSelfTestFlash,
	flow.CPBootSelfTestClock,
	flow.CPBootSelfTestEnd,
	flow.CPBootParamsCheck,
	flow.CPBootConfigCheck,
	flow.CPBootAppVerify,
	flow.CPBootJumpPrepare,
}

// Sequencer orchestrates the boot sequence.
type Sequencer struct {
	store        *Store
	handoff      *Handoff
	port         Port
	flows        *flow.Monitor
	validator    *params.Validator
	selftestOpts []selftest.Option
	factory      FactoryHandler
	outputs      safety.OutputDriver
	logger       safety.Logger

	state State
	cfg   *Config
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithSelfTestOptions forwards options (RAM window, clock check, block
// size) to the startup self-test.
func WithSelfTestOptions(opts ...selftest.Option) SequencerOption {
	return func(s *Sequencer) {
		s.selftestOpts = opts
	}
}

// WithFactoryHandler sets the factory-mode session runner.
func WithFactoryHandler(h FactoryHandler) SequencerOption {
	return func(s *Sequencer) {
		s.factory = h
	}
}

// WithOutputDriver sets the driver used to reach safe outputs when the
// boot sequence fails.
func WithOutputDriver(d safety.OutputDriver) SequencerOption {
	return func(s *Sequencer) {
		s.outputs = d
	}
}

// WithSequencerLogger attaches a logger.
func WithSequencerLogger(l safety.Logger) SequencerOption {
	return func(s *Sequencer) {
		s.logger = l
	}
}

// NewSequencer creates a boot sequencer over a config store and a
// processor port.
func NewSequencer(store *Store, port Port, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		store:     store,
		handoff:   NewHandoff(port),
		port:      port,
		flows:     flow.New(),
		validator: params.NewValidator(),
		state:     StateInit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current boot state.
func (s *Sequencer) State() State {
	return s.state
}

// Config returns the boot configuration read during Run.
func (s *Sequencer) Config() *Config {
	return s.cfg
}

// Validator returns the calibration validator, holding the cached
// record after a successful ValidateParams step.
func (s *Sequencer) Validator() *params.Validator {
	return s.validator
}

// Run executes the boot sequence. On hardware it does not return from a
// successful hand-off; in any other environment a returned nil means
// the jump was issued. Every failure path returns a SafeStateError.
func (s *Sequencer) Run(ctx context.Context) error {
	// Init
	s.state = StateInit
	s.flows.Checkpoint(flow.CPBootInit)

	cfg, err := s.store.ReadConfig(ctx)
	if err != nil && s.logger != nil {
		s.logger.Info("boot config unusable, starting from defaults", "reason", err.Error())
	}
	s.cfg = cfg

	cfg.BootCount++
	if err := s.store.WriteConfig(ctx, cfg); err != nil && s.logger != nil {
		s.logger.Error("boot counter not persisted", "error", err.Error())
	}

	// SelfTest
	s.state = StateSelfTest
	s.flows.Checkpoint(flow.CPBootSelfTestStart)

	image, err := s.store.ReadApplication(ctx)
	if err != nil {
		return s.enterSafe(ctx, safety.ErrInternal, err)
	}

	tests, err := selftest.New(image, s.selftestOpts...)
	if err != nil {
		return s.enterSafe(ctx, safety.ErrFlashCRC, err)
	}

	if err := s.runSelfTests(tests); err != nil {
		return s.enterSafe(ctx, selfTestErrorCode(err), err)
	}
	s.flows.Checkpoint(flow.CPBootSelfTestEnd)

	// ValidateParams
	s.state = StateValidateParams
	s.flows.Checkpoint(flow.CPBootParamsCheck)

	record, err := s.store.ReadCalibration(ctx)
	if err != nil {
		return s.enterSafe(ctx, safety.ErrParamInvalid, err)
	}
	if err := s.validator.ValidateBytes(record); err != nil {
		return s.enterSafe(ctx, safety.ErrParamInvalid, err)
	}

	// CheckConfig
	s.state = StateCheckConfig
	s.flows.Checkpoint(flow.CPBootConfigCheck)

	if cfg.FactoryMode != 0 {
		return s.runFactoryMode(ctx)
	}

	// VerifyApp
	s.state = StateVerifyApp
	s.flows.Checkpoint(flow.CPBootAppVerify)

	crc, err := VerifyAppCRC(image)
	if err != nil {
		return s.enterSafe(ctx, safety.ErrFlashCRC, err)
	}
	if cfg.AppCRC != crc {
		cfg.AppCRC = crc
		if err := s.store.WriteConfig(ctx, cfg); err != nil && s.logger != nil {
			s.logger.Error("app crc cache not persisted", "error", err.Error())
		}
	}

	// JumpToApp
	s.state = StateJumpToApp
	s.flows.Checkpoint(flow.CPBootJumpPrepare)

	s.flows.SetExpected(flow.ExpectedSignature(bootSequence))
	if !s.flows.Verify() {
		return s.enterSafe(ctx, safety.ErrFlowMonitor,
			fmt.Errorf("boot flow signature 0x%08X diverged", s.flows.Signature()))
	}

	s.flows.Checkpoint(flow.CPBootJumpExecute)

	if s.logger != nil {
		s.logger.Info("handing off to application", "boot_count", cfg.BootCount)
	}

	sp, entry := EntryPoints(image)
	if err := s.handoff.Execute(memmap.AppFlashStart, sp, entry); !errors.Is(err, ErrJumpReturned) && err != nil {
		return s.enterSafe(ctx, safety.ErrInternal, err)
	}
	return nil
}

// runSelfTests runs the startup battery with a checkpoint per test.
func (s *Sequencer) runSelfTests(tests *selftest.Sequencer) error {
	if err := tests.RunCPU(); err != nil {
		return err
	}
	s.flows.Checkpoint(flow.CPBootSelfTestCPU)

	if err := tests.RunRAM(selftest.Startup); err != nil {
		return err
	}
	s.flows.Checkpoint(flow.CPBootSelfTestRAM)

	if err := tests.RunFlashCRC(selftest.Startup); err != nil {
		return err
	}
	s.flows.Checkpoint(flow.CPBootSelfTestFlash)

	if err := tests.RunClock(); err != nil {
		return err
	}
	s.flows.Checkpoint(flow.CPBootSelfTestClock)

	return nil
}

// runFactoryMode diverts into the factory calibration session. On
// completion the factory flag is cleared and the processor resets, so
// the boot sequence restarts from Init rather than falling through into
// a jump with stale state.
func (s *Sequencer) runFactoryMode(ctx context.Context) error {
	s.state = StateFactoryMode
	s.flows.Checkpoint(flow.CPBootFactoryMode)

	if s.logger != nil {
		s.logger.Info("factory mode flag set, diverting into calibration session")
	}

	if s.factory != nil {
		if err := s.factory(ctx); err != nil {
			return s.enterSafe(ctx, safety.ErrInternal, fmt.Errorf("factory session: %w", err))
		}
	}

	s.cfg.FactoryMode = 0
	s.cfg.CalValid = 1
	if err := s.store.WriteConfig(ctx, s.cfg); err != nil {
		return s.enterSafe(ctx, safety.ErrInternal, fmt.Errorf("clear factory flag: %w", err))
	}

	s.port.SystemReset()
	return nil
}

// enterSafe records the failure, drives safe outputs, and pins the
// sequencer in the safe state.
func (s *Sequencer) enterSafe(ctx context.Context, code safety.ErrorCode, cause error) error {
	from := s.state
	s.state = StateSafe

	if s.logger != nil {
		s.logger.Error("boot failure",
			"state", from.String(), "code", code.String(), "error", cause.Error())
	}

	if s.cfg != nil {
		s.cfg.LastError = uint32(code)
		// best effort: the safe state does not depend on persistence
		_ = s.store.WriteConfig(ctx, s.cfg)
	}

	if s.outputs != nil {
		s.outputs.SetSafeOutputs()
	}

	return &SafeStateError{Code: code, State: from, Cause: cause}
}

// selfTestErrorCode maps a startup self-test failure into the taxonomy.
func selfTestErrorCode(err error) safety.ErrorCode {
	var cpuErr *selftest.CPUTestError
	if errors.As(err, &cpuErr) {
		return safety.ErrCPUTest
	}
	var ramErr *selftest.RAMTestError
	if errors.As(err, &ramErr) {
		return safety.ErrRAMTest
	}
	var crcErr *selftest.FlashCRCError
	if errors.As(err, &crcErr) {
		return safety.ErrFlashCRC
	}
	var clkErr *selftest.ClockError
	if errors.As(err, &clkErr) {
		return safety.ErrClock
	}
	return safety.ErrRuntimeTest
}
