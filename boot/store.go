package boot

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ycx81/go-safekernel/memmap"
	"github.com/ycx81/go-safekernel/params"
	"github.com/ycx81/go-safekernel/safety"
)

// CalibrationAddr is where the calibration record lives, directly after
// the boot configuration in the config sector.
const CalibrationAddr = memmap.ConfigFlashStart + ConfigSize

// Flash is the flash controller surface the store needs. Every
// implementation must bound its hardware waits (write-enable, busy
// flag, erase completion) with a timeout derived from the context and
// convert expiry into an error; no store operation may block forever.
type Flash interface {
	// Read copies len(buf) bytes starting at the absolute address.
	Read(ctx context.Context, addr uint32, buf []byte) error

	// EraseSector erases the erase unit containing addr.
	EraseSector(ctx context.Context, addr uint32) error

	// Program writes data at the absolute address. The target range
	// must be erased.
	Program(ctx context.Context, addr uint32, data []byte) error
}

// VerifyError reports a post-program readback mismatch.
type VerifyError struct {
	Addr uint32
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("flash verify failed at 0x%08X", e.Addr)
}

// Store reads and writes the config sector. The boot config and the
// calibration record share one erase unit, so every write is a full
// read-modify-erase-program-verify cycle that carries the other
// resident through the erase.
type Store struct {
	flash  Flash
	logger safety.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger attaches a logger.
func WithStoreLogger(l safety.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates a config-sector store over the given flash.
func NewStore(flash Flash, opts ...StoreOption) *Store {
	s := &Store{flash: flash}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadConfig reads and verifies the boot configuration. A missing or
// corrupt configuration returns fresh defaults together with the parse
// error, so first boot and corruption are distinguishable but still
// yield a usable value.
func (s *Store) ReadConfig(ctx context.Context) (*Config, error) {
	buf := make([]byte, ConfigSize)
	if err := s.flash.Read(ctx, memmap.ConfigFlashStart, buf); err != nil {
		return DefaultConfig(), fmt.Errorf("read boot config: %w", err)
	}

	cfg, err := UnmarshalConfig(buf)
	if err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}

// WriteConfig seals and persists the boot configuration, carrying the
// calibration record through the sector erase.
func (s *Store) WriteConfig(ctx context.Context, cfg *Config) error {
	cfg.Seal()
	return s.rewriteSector(ctx, cfg.Marshal(), nil)
}

// ReadCalibration reads the raw calibration record bytes.
func (s *Store) ReadCalibration(ctx context.Context) ([]byte, error) {
	buf := make([]byte, params.RecordSize)
	if err := s.flash.Read(ctx, CalibrationAddr, buf); err != nil {
		return nil, fmt.Errorf("read calibration record: %w", err)
	}
	return buf, nil
}

// WriteCalibration persists a serialized calibration record, carrying
// the boot configuration through the sector erase.
func (s *Store) WriteCalibration(ctx context.Context, record []byte) error {
	if len(record) != params.RecordSize {
		return fmt.Errorf("calibration record size %d, want %d", len(record), params.RecordSize)
	}
	return s.rewriteSector(ctx, nil, record)
}

// ReadApplication reads the whole application region.
func (s *Store) ReadApplication(ctx context.Context) ([]byte, error) {
	buf := make([]byte, memmap.AppFlashSize)
	if err := s.flash.Read(ctx, memmap.AppFlashStart, buf); err != nil {
		return nil, fmt.Errorf("read application region: %w", err)
	}
	return buf, nil
}

// rewriteSector replaces the config sector contents. Nil arguments keep
// the bytes currently in flash for that resident.
func (s *Store) rewriteSector(ctx context.Context, cfgBytes, calBytes []byte) error {
	if cfgBytes == nil {
		existing := make([]byte, ConfigSize)
		if err := s.flash.Read(ctx, memmap.ConfigFlashStart, existing); err != nil {
			return fmt.Errorf("preserve boot config: %w", err)
		}
		cfgBytes = existing
	}
	if calBytes == nil {
		existing := make([]byte, params.RecordSize)
		if err := s.flash.Read(ctx, CalibrationAddr, existing); err != nil {
			return fmt.Errorf("preserve calibration record: %w", err)
		}
		calBytes = existing
	}

	if err := s.flash.EraseSector(ctx, memmap.ConfigFlashStart); err != nil {
		return fmt.Errorf("erase config sector: %w", err)
	}

	image := make([]byte, ConfigSize+params.RecordSize)
	copy(image, cfgBytes)
	copy(image[ConfigSize:], calBytes)

	if err := s.flash.Program(ctx, memmap.ConfigFlashStart, image); err != nil {
		return fmt.Errorf("program config sector: %w", err)
	}

	// verify after program
	check := make([]byte, len(image))
	if err := s.flash.Read(ctx, memmap.ConfigFlashStart, check); err != nil {
		return fmt.Errorf("verify config sector: %w", err)
	}
	if !bytes.Equal(check, image) {
		return &VerifyError{Addr: memmap.ConfigFlashStart}
	}

	if s.logger != nil {
		s.logger.Debug("config sector rewritten", "bytes", len(image))
	}
	return nil
}
