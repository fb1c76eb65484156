// Package mpu programs the Cortex-M4 memory protection unit through a
// narrow hardware port. Regions are validated before any register write;
// a partially applied region table is never an acceptable intermediate
// state, so all programming happens with interrupts masked and is closed
// by memory barriers.
package mpu

import "fmt"

// Region indices of the fixed protection table.
const (
	// RegionAppFlash covers the application image (read-only, executable)
	RegionAppFlash = 0

	// RegionRAM covers main RAM (read-write, never executable)
	RegionRAM = 1

	// RegionCCM covers CCM RAM holding the stacks and error log
	RegionCCM = 2

	// RegionPeriph covers the peripheral window (device memory)
	RegionPeriph = 3

	// RegionConfigFlash covers the calibration sector (read-only)
	RegionConfigFlash = 4

	// RegionBootFlash covers the bootloader (privileged read-only)
	RegionBootFlash = 5

	// RegionCount is the number of regions in the fixed table
	RegionCount = 6

	// MaxRegions is the Cortex-M4 hardware region count
	MaxRegions = 8
)

// Size classes. The hardware encodes a region size of 2^(class+1) bytes.
const (
	Size16KB  = 13
	Size32KB  = 14
	Size64KB  = 15
	Size128KB = 16
	Size256KB = 17
	Size512KB = 18
	Size512MB = 28
)

// Access permissions (RASR AP field).
const (
	APNoAccess   = 0x00
	APPrivRW     = 0x01
	APFullAccess = 0x03
	APPrivRO     = 0x05
	APReadOnly   = 0x06
)

// Memory type encodings (RASR TEX field).
const (
	TEXStronglyOrdered = 0x0
	TEXDevice          = 0x0
	TEXNormalWT        = 0x0
	TEXNormalWB        = 0x1
)

// RASR field layout.
const (
	rasrEnable    = 1 << 0
	rasrSizeShift = 1
	rasrSRDShift  = 8
	rasrBShift    = 16
	rasrCShift    = 17
	rasrSShift    = 18
	rasrTEXShift  = 19
	rasrAPShift   = 24
	rasrXNShift   = 28
)

// Control register bits.
const (
	// CtrlEnable turns the MPU on
	CtrlEnable = 1 << 0

	// CtrlHFNMIEnable keeps the MPU active during hard fault and NMI
	CtrlHFNMIEnable = 1 << 1

	// CtrlPrivDefault keeps the default memory map for privileged access
	// outside any defined region
	CtrlPrivDefault = 1 << 2
)

// Region describes one protection region.
type Region struct {
	// Base is the region base address, aligned to the region size
	Base uint32

	// Index selects the hardware region slot (0..MaxRegions-1)
	Index uint8

	// Size is the size class (Size16KB and friends)
	Size uint8

	// AccessPermission is the AP field value
	AccessPermission uint8

	// ExecuteNever forbids instruction fetch from the region
	ExecuteNever bool

	// Shareable, Cacheable, Bufferable and TEX select the memory type
	Shareable  bool
	Cacheable  bool
	Bufferable bool
	TEX        uint8

	// SubregionDisable masks out eighths of the region, one bit each
	SubregionDisable uint8

	// Enabled arms the region
	Enabled bool
}

// RegionError reports a region that failed validation.
type RegionError struct {
	Index  uint8
	Reason string
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("mpu region %d: %s", e.Index, e.Reason)
}

// SizeBytes returns the region size in bytes.
func (r Region) SizeBytes() uint64 {
	return 1 << (uint(r.Size) + 1)
}

// Validate checks the region before it is allowed near the hardware:
// the index must fit the hardware slot count, the size class must be in
// the architectural range, and the base address must be aligned to the
// region size.
func (r Region) Validate() error {
	if r.Index >= MaxRegions {
		return &RegionError{Index: r.Index, Reason: "index out of range"}
	}
	if r.Size < 4 || r.Size > 31 {
		return &RegionError{Index: r.Index, Reason: fmt.Sprintf("invalid size class %d", r.Size)}
	}
	if r.TEX > 0x7 {
		return &RegionError{Index: r.Index, Reason: fmt.Sprintf("invalid tex %#x", r.TEX)}
	}
	switch r.AccessPermission {
	case APNoAccess, APPrivRW, 0x02, APFullAccess, APPrivRO, APReadOnly:
	default:
		return &RegionError{Index: r.Index,
			Reason: fmt.Sprintf("invalid access permission %#x", r.AccessPermission)}
	}

	mask := uint32(r.SizeBytes() - 1)
	if r.Base&mask != 0 {
		return &RegionError{Index: r.Index,
			Reason: fmt.Sprintf("base 0x%08X not aligned to %d bytes", r.Base, r.SizeBytes())}
	}

	return nil
}

// Attributes encodes the RASR register value for the region.
func (r Region) Attributes() uint32 {
	var rasr uint32

	if r.Enabled {
		rasr |= rasrEnable
	}
	rasr |= uint32(r.Size) << rasrSizeShift
	rasr |= uint32(r.SubregionDisable) << rasrSRDShift
	if r.Bufferable {
		rasr |= 1 << rasrBShift
	}
	if r.Cacheable {
		rasr |= 1 << rasrCShift
	}
	if r.Shareable {
		rasr |= 1 << rasrSShift
	}
	rasr |= uint32(r.TEX&0x7) << rasrTEXShift
	rasr |= uint32(r.AccessPermission&0x7) << rasrAPShift
	if r.ExecuteNever {
		rasr |= 1 << rasrXNShift
	}

	return rasr
}
