package boot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ycx81/go-safekernel/memmap"
	"github.com/ycx81/go-safekernel/params"
)

// fakeFlash simulates the config sector and the application region.
// The config sector starts erased.
type fakeFlash struct {
	config []byte
	app    []byte

	erases   int
	programs int

	readErr    error
	eraseErr   error
	programErr error

	// corruptAfterProgram flips a byte after every program, so the
	// read-back verify fails.
	corruptAfterProgram bool
}

func newFakeFlash() *fakeFlash {
	f := &fakeFlash{
		config: make([]byte, memmap.ConfigFlashSize),
		app:    make([]byte, memmap.AppFlashSize),
	}
	for i := range f.config {
		f.config[i] = 0xFF
	}
	return f
}

func (f *fakeFlash) Read(_ context.Context, addr uint32, buf []byte) error {
	if f.readErr != nil {
		return f.readErr
	}
	switch {
	case addr >= memmap.ConfigFlashStart && addr <= memmap.ConfigFlashEnd:
		copy(buf, f.config[addr-memmap.ConfigFlashStart:])
	case addr >= memmap.AppFlashStart && addr <= memmap.AppFlashEnd:
		copy(buf, f.app[addr-memmap.AppFlashStart:])
	default:
		return fmt.Errorf("read outside mapped flash: 0x%08X", addr)
	}
	return nil
}

func (f *fakeFlash) EraseSector(_ context.Context, addr uint32) error {
	if f.eraseErr != nil {
		return f.eraseErr
	}
	if addr != memmap.ConfigFlashStart {
		return fmt.Errorf("erase outside config sector: 0x%08X", addr)
	}
	f.erases++
	for i := range f.config {
		f.config[i] = 0xFF
	}
	return nil
}

func (f *fakeFlash) Program(_ context.Context, addr uint32, data []byte) error {
	if f.programErr != nil {
		return f.programErr
	}
	f.programs++
	copy(f.config[addr-memmap.ConfigFlashStart:], data)
	if f.corruptAfterProgram {
		f.config[0] ^= 0x01
	}
	return nil
}

func TestReadConfigErasedSector(t *testing.T) {
	store := NewStore(newFakeFlash())

	cfg, err := store.ReadConfig(context.Background())
	if err == nil {
		t.Error("ReadConfig() on an erased sector returned no error")
	}
	if cfg == nil {
		t.Fatal("ReadConfig() returned nil config")
	}
	if cfg.Magic != ConfigMagic || cfg.BootCount != 0 {
		t.Errorf("ReadConfig() defaults = %+v", cfg)
	}
}

func TestWriteReadConfig(t *testing.T) {
	flash := newFakeFlash()
	store := NewStore(flash)
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.BootCount = 3
	cfg.AppCRC = 0xCAFEF00D
	if err := store.WriteConfig(ctx, cfg); err != nil {
		t.Fatalf("WriteConfig() error = %v", err)
	}
	if flash.erases != 1 {
		t.Errorf("erases = %d, want 1", flash.erases)
	}

	got, err := store.ReadConfig(ctx)
	if err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}
	if got.BootCount != 3 || got.AppCRC != 0xCAFEF00D {
		t.Errorf("ReadConfig() = %+v", got)
	}
}

func TestWriteConfigPreservesCalibration(t *testing.T) {
	flash := newFakeFlash()
	store := NewStore(flash)
	ctx := context.Background()

	record := params.Default().Marshal()
	if err := store.WriteCalibration(ctx, record); err != nil {
		t.Fatalf("WriteCalibration() error = %v", err)
	}

	cfg := DefaultConfig()
	cfg.BootCount = 1
	if err := store.WriteConfig(ctx, cfg); err != nil {
		t.Fatalf("WriteConfig() error = %v", err)
	}

	got, err := store.ReadCalibration(ctx)
	if err != nil {
		t.Fatalf("ReadCalibration() error = %v", err)
	}
	if !bytes.Equal(got, record) {
		t.Error("calibration record not carried through the config rewrite")
	}
}

func TestWriteCalibrationPreservesConfig(t *testing.T) {
	flash := newFakeFlash()
	store := NewStore(flash)
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.BootCount = 9
	if err := store.WriteConfig(ctx, cfg); err != nil {
		t.Fatalf("WriteConfig() error = %v", err)
	}

	if err := store.WriteCalibration(ctx, params.Default().Marshal()); err != nil {
		t.Fatalf("WriteCalibration() error = %v", err)
	}

	got, err := store.ReadConfig(ctx)
	if err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}
	if got.BootCount != 9 {
		t.Errorf("BootCount = %d, want 9", got.BootCount)
	}
}

func TestWriteCalibrationWrongSize(t *testing.T) {
	store := NewStore(newFakeFlash())

	if err := store.WriteCalibration(context.Background(), make([]byte, 10)); err == nil {
		t.Error("WriteCalibration() accepted a short record")
	}
}

func TestWriteConfigVerifyFailure(t *testing.T) {
	flash := newFakeFlash()
	flash.corruptAfterProgram = true
	store := NewStore(flash)

	err := store.WriteConfig(context.Background(), DefaultConfig())
	var verifyErr *VerifyError
	if !errors.As(err, &verifyErr) {
		t.Fatalf("WriteConfig() error = %v, want VerifyError", err)
	}
	if verifyErr.Addr != memmap.ConfigFlashStart {
		t.Errorf("VerifyError.Addr = 0x%08X, want 0x%08X",
			verifyErr.Addr, uint32(memmap.ConfigFlashStart))
	}
}

func TestWriteConfigEraseFailure(t *testing.T) {
	flash := newFakeFlash()
	flash.eraseErr = errors.New("flash busy")
	store := NewStore(flash)

	if err := store.WriteConfig(context.Background(), DefaultConfig()); err == nil {
		t.Error("WriteConfig() swallowed an erase failure")
	}
	if flash.programs != 0 {
		t.Errorf("programs = %d after failed erase, want 0", flash.programs)
	}
}
