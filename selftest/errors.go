package selftest

import (
	"errors"
	"fmt"
)

// ErrNotStarted is returned by ContinueFlashCRC when no incremental
// check has been armed.
var ErrNotStarted = errors.New("incremental flash check not started")

// CPUTestError indicates a register pattern did not read back intact.
type CPUTestError struct {
	Pattern uint32
	Got     uint32
}

func (e *CPUTestError) Error() string {
	return fmt.Sprintf("cpu test failed: wrote 0x%08X, read 0x%08X", e.Pattern, e.Got)
}

// RAMTestError indicates a march-test readback mismatch. Phase is the
// failing march phase (1-6), Offset the failing word index within the
// test window.
type RAMTestError struct {
	Phase    int
	Offset   int
	Expected uint32
	Got      uint32
}

func (e *RAMTestError) Error() string {
	return fmt.Sprintf("ram test failed: phase %d, word %d: expected 0x%08X, got 0x%08X",
		e.Phase, e.Offset, e.Expected, e.Got)
}

// FlashCRCError indicates the application image CRC does not match the
// stored value.
type FlashCRCError struct {
	Calculated uint32
	Expected   uint32
}

func (e *FlashCRCError) Error() string {
	return fmt.Sprintf("flash crc mismatch: calculated 0x%08X, expected 0x%08X",
		e.Calculated, e.Expected)
}

// ClockError indicates the measured clock frequency is outside the
// configured tolerance band around nominal.
type ClockError struct {
	Measured         uint32
	Nominal          uint32
	TolerancePercent int
}

func (e *ClockError) Error() string {
	return fmt.Sprintf("clock out of tolerance: measured %d Hz, nominal %d Hz (±%d%%)",
		e.Measured, e.Nominal, e.TolerancePercent)
}

// ImageError indicates the application image cannot be checked at all.
type ImageError struct {
	Size   int
	Reason string
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("invalid application image (%d bytes): %s", e.Size, e.Reason)
}
