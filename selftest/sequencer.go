package selftest

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/ycx81/go-safekernel/integrity"
)

// Mode selects between the exhaustive startup variant of a test and its
// bounded runtime variant.
type Mode int

const (
	// Startup runs the test to completion before the application starts
	Startup Mode = iota

	// Runtime runs the bounded variant suitable for a monitor cycle
	Runtime
)

// CPU test patterns.
const (
	patternAlternatingA = 0xAAAAAAAA
	patternAlternating5 = 0x55555555
)

// DefaultBlockSize is the incremental flash check block size (4KB).
const DefaultBlockSize = 4096

// cpuScratch receives the CPU test patterns. Atomic stores keep the
// compiler from collapsing the write/readback pairs.
var cpuScratch atomic.Uint32

// Sequencer runs the self-test battery over an application image, a RAM
// test window, and a clock source.
//
// The incremental flash-check state is not safe for concurrent use; the
// safety monitor is its sole caller.
type Sequencer struct {
	image       []byte // application region, stored CRC in the last word
	expectedCRC uint32

	ram []uint32

	measureClock     func() uint32
	nominalHz        uint32
	tolerancePercent int

	blockSize int

	// incremental flash check state
	inc        *integrity.CRC32
	offset     int
	inProgress bool
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithRAMWindow sets the RAM test window the march test runs over.
func WithRAMWindow(window []uint32) Option {
	return func(s *Sequencer) {
		s.ram = window
	}
}

// WithClockCheck enables the clock test: measure returns the current
// system clock frequency, checked against nominal ± tolerance percent.
func WithClockCheck(measure func() uint32, nominalHz uint32, tolerancePercent int) Option {
	return func(s *Sequencer) {
		s.measureClock = measure
		s.nominalHz = nominalHz
		s.tolerancePercent = tolerancePercent
	}
}

// WithBlockSize sets the incremental flash check block size in bytes.
// The size must be a multiple of 4.
func WithBlockSize(size int) Option {
	return func(s *Sequencer) {
		s.blockSize = size
	}
}

// New creates a self-test sequencer for the given application image. The
// image must be word-aligned and large enough to carry its trailing CRC
// word.
func New(image []byte, opts ...Option) (*Sequencer, error) {
	if len(image) < 8 {
		return nil, &ImageError{Size: len(image), Reason: "too small to hold code and CRC"}
	}
	if len(image)%4 != 0 {
		return nil, &ImageError{Size: len(image), Reason: "not word-aligned"}
	}

	s := &Sequencer{
		image:       image,
		expectedCRC: binary.LittleEndian.Uint32(image[len(image)-4:]),
		blockSize:   DefaultBlockSize,
		inc:         integrity.NewCRC32(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.blockSize <= 0 || s.blockSize%4 != 0 {
		return nil, &ImageError{Size: s.blockSize, Reason: "block size must be a positive multiple of 4"}
	}

	return s, nil
}

// RunStartup runs the full battery in order, failing fast: CPU pattern
// test, RAM march test, full image CRC, clock tolerance.
func (s *Sequencer) RunStartup() error {
	if err := s.RunCPU(); err != nil {
		return err
	}
	if err := s.RunRAM(Startup); err != nil {
		return err
	}
	if err := s.RunFlashCRC(Startup); err != nil {
		return err
	}
	return s.RunClock()
}

// RunCPU writes alternating and walking-one patterns through a scratch
// word and verifies each readback.
func (s *Sequencer) RunCPU() error {
	for _, pattern := range []uint32{patternAlternatingA, patternAlternating5} {
		cpuScratch.Store(pattern)
		if got := cpuScratch.Load(); got != pattern {
			return &CPUTestError{Pattern: pattern, Got: got}
		}
	}

	for i := 0; i < 32; i++ {
		pattern := uint32(1) << i
		cpuScratch.Store(pattern)
		if got := cpuScratch.Load(); got != pattern {
			return &CPUTestError{Pattern: pattern, Got: got}
		}
	}

	return nil
}

// RunRAM runs the six-phase march test over the test window in Startup
// mode. Runtime mode is a no-op: the window belongs to the application
// once it is running. Original contents are restored on success and on
// every failure path.
func (s *Sequencer) RunRAM(mode Mode) error {
	if mode != Startup || len(s.ram) == 0 {
		return nil
	}
	return marchTest(s.ram)
}

// RunFlashCRC verifies the application image CRC. Startup mode computes
// the full CRC in one pass. Runtime mode arms the incremental check;
// ContinueFlashCRC then advances it one block at a time.
func (s *Sequencer) RunFlashCRC(mode Mode) error {
	if mode == Startup {
		calc := integrity.Checksum32(s.payload())
		if calc != s.expectedCRC {
			return &FlashCRCError{Calculated: calc, Expected: s.expectedCRC}
		}
		return nil
	}

	s.ResetFlashCRC()
	s.inProgress = true
	return nil
}

// ContinueFlashCRC advances the incremental flash check by one block.
// It returns done=false while blocks remain. When the walk reaches the
// end of the image the accumulated CRC is compared against the stored
// value and done=true is returned, with a FlashCRCError on mismatch.
func (s *Sequencer) ContinueFlashCRC() (done bool, err error) {
	if !s.inProgress {
		return false, ErrNotStarted
	}

	payload := s.payload()
	if s.offset >= len(payload) {
		s.inProgress = false
		calc := s.inc.Sum()
		if calc != s.expectedCRC {
			return true, &FlashCRCError{Calculated: calc, Expected: s.expectedCRC}
		}
		return true, nil
	}

	end := s.offset + s.blockSize
	if end > len(payload) {
		end = len(payload)
	}
	s.inc.Update(payload[s.offset:end])
	s.offset = end

	return false, nil
}

// FlashCRCInProgress reports whether an incremental check is armed.
func (s *Sequencer) FlashCRCInProgress() bool {
	return s.inProgress
}

// FlashCRCProgress returns the incremental check position and the total
// number of bytes to cover.
func (s *Sequencer) FlashCRCProgress() (offset, total int) {
	return s.offset, len(s.payload())
}

// ResetFlashCRC abandons any incremental check in progress.
func (s *Sequencer) ResetFlashCRC() {
	s.inc.Reset()
	s.offset = 0
	s.inProgress = false
}

// RunClock checks the measured system clock against the tolerance band.
// Without a configured clock source the test passes.
func (s *Sequencer) RunClock() error {
	if s.measureClock == nil {
		return nil
	}

	measured := s.measureClock()
	min := uint64(s.nominalHz) * uint64(100-s.tolerancePercent) / 100
	max := uint64(s.nominalHz) * uint64(100+s.tolerancePercent) / 100

	if uint64(measured) < min || uint64(measured) > max {
		return &ClockError{
			Measured:         measured,
			Nominal:          s.nominalHz,
			TolerancePercent: s.tolerancePercent,
		}
	}

	return nil
}

// ExpectedCRC returns the CRC stored in the image's last word.
func (s *Sequencer) ExpectedCRC() uint32 {
	return s.expectedCRC
}

// payload is the image contents covered by the CRC: everything but the
// stored CRC word itself.
func (s *Sequencer) payload() []byte {
	return s.image[:len(s.image)-4]
}

// marchTest runs a six-phase March C variant over the window: write 0
// ascending; read 0/write 1 ascending; read 1/write 0 ascending; read 0/
// write 1 descending; read 1/write 0 descending; final read 0 ascending.
// The window contents are saved first and restored on every exit path.
func marchTest(w []uint32) (err error) {
	saved := make([]uint32, len(w))
	copy(saved, w)
	defer copy(w, saved)

	// phase 1: write 0 ascending
	for i := range w {
		w[i] = 0x00000000
	}

	// phase 2: read 0, write 1 ascending
	for i := range w {
		if w[i] != 0x00000000 {
			return &RAMTestError{Phase: 2, Offset: i, Expected: 0x00000000, Got: w[i]}
		}
		w[i] = 0xFFFFFFFF
	}

	// phase 3: read 1, write 0 ascending
	for i := range w {
		if w[i] != 0xFFFFFFFF {
			return &RAMTestError{Phase: 3, Offset: i, Expected: 0xFFFFFFFF, Got: w[i]}
		}
		w[i] = 0x00000000
	}

	// phase 4: read 0, write 1 descending
	for i := len(w) - 1; i >= 0; i-- {
		if w[i] != 0x00000000 {
			return &RAMTestError{Phase: 4, Offset: i, Expected: 0x00000000, Got: w[i]}
		}
		w[i] = 0xFFFFFFFF
	}

	// phase 5: read 1, write 0 descending
	for i := len(w) - 1; i >= 0; i-- {
		if w[i] != 0xFFFFFFFF {
			return &RAMTestError{Phase: 5, Offset: i, Expected: 0xFFFFFFFF, Got: w[i]}
		}
		w[i] = 0x00000000
	}

	// phase 6: final read 0 ascending
	for i := range w {
		if w[i] != 0x00000000 {
			return &RAMTestError{Phase: 6, Offset: i, Expected: 0x00000000, Got: w[i]}
		}
	}

	return nil
}
